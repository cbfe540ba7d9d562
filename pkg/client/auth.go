package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

var validate = validator.New()

type Credentials struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// Authenticator issues sessions; a nil error means the username may be established.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) error
	Register(ctx context.Context, creds Credentials) error
}

// AuthClient talks to POST /login and POST /register.
type AuthClient struct {
	ServerURL  string
	HTTPClient *http.Client
}

func NewAuthClient(serverURL string, httpClient *http.Client) *AuthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AuthClient{ServerURL: serverURL, HTTPClient: httpClient}
}

func (a *AuthClient) Login(ctx context.Context, creds Credentials) error {
	return a.post(ctx, utils.LoginPath, creds)
}

func (a *AuthClient) Register(ctx context.Context, creds Credentials) error {
	return a.post(ctx, utils.RegisterPath, creds)
}

func (a *AuthClient) post(ctx context.Context, path string, creds Credentials) error {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := validate.Struct(creds); err != nil {
		return &chat.AuthRejectedError{Detail: "username and password are required"}
	}

	body, err := json.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "encode credentials")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, utils.Endpoint(a.ServerURL, path), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build auth request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	var failure struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&failure)
	return &chat.AuthRejectedError{Status: resp.StatusCode, Detail: failure.Detail}
}
