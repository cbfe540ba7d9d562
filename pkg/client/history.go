package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

// HistoryFetcher performs the one-shot backfill.
type HistoryFetcher interface {
	Fetch(ctx context.Context) ([]chat.Message, error)
}

// HistoryClient reads GET /messages, oldest first.
type HistoryClient struct {
	ServerURL  string
	HTTPClient *http.Client
}

func NewHistoryClient(serverURL string, httpClient *http.Client) *HistoryClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HistoryClient{ServerURL: serverURL, HTTPClient: httpClient}
}

// Fetch returns errors wrapping chat.ErrFetchFailed.
func (h *HistoryClient) Fetch(ctx context.Context) ([]chat.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, utils.Endpoint(h.ServerURL, utils.MessagesPath), nil)
	if err != nil {
		return nil, errors.Wrap(chat.ErrFetchFailed, err.Error())
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(chat.ErrFetchFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(chat.ErrFetchFailed, "unexpected status %d", resp.StatusCode)
	}
	var messages []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, errors.Wrapf(chat.ErrFetchFailed, "decode history: %v", err)
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}
