package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	Addr  string
	Store Store

	chat     *Chat
	upgrader websocket.Upgrader
}

func NewServer(address string, store Store) (*Server, error) {
	if store == nil {
		return nil, errors.New("server: nil store")
	}
	server := &Server{
		Addr:  address,
		Store: store,
		chat:  NewChat(store),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// any origin, like the original CORS policy
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	return server, nil
}

func (s *Server) Chat() *Chat {
	return s.chat
}

// Handler serves the REST endpoints and the channel. Broadcasts are only
// delivered while Chat().ListenToBroadcast runs; Run takes care of that.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(utils.RegisterPath, s.handleRegister)
	mux.HandleFunc(utils.LoginPath, s.handleLogin)
	mux.HandleFunc(utils.MessagesPath, s.handleMessages)
	mux.HandleFunc(utils.ChannelPath, s.handleChannel)
	return withCORS(mux)
}

func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.chat.ListenToBroadcast(ctx)
		return nil
	})
	eg.Go(func() error {
		log.Info().Str("component", "server").Str("addr", s.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Str("component", "server").Msg("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeLogin(w http.ResponseWriter, r *http.Request) (LoginInput, bool) {
	var input LoginInput
	if r.Method != http.MethodPost {
		utils.WriteDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return input, false
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.WriteDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return input, false
	}
	if err := validate.Struct(input); err != nil {
		utils.WriteDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return input, false
	}
	return input, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeLogin(w, r)
	if !ok {
		return
	}
	hash, err := HashPassword(input.Password)
	if err != nil {
		log.Error().Err(err).Str("component", "server").Msg("hash failed")
		utils.WriteDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.Store.CreateUser(r.Context(), input.Username, hash); err != nil {
		if errors.Is(err, ErrUserExists) {
			utils.WriteDetail(w, http.StatusBadRequest, ErrUserExists.Error())
			return
		}
		log.Error().Err(err).Str("component", "server").Msg("create user failed")
		utils.WriteDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	log.Info().Str("component", "server").Str("username", input.Username).Msg("user registered")
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "User registered successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeLogin(w, r)
	if !ok {
		return
	}
	hash, err := s.Store.PasswordHash(r.Context(), input.Username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		log.Error().Err(err).Str("component", "server").Msg("lookup user failed")
		utils.WriteDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err != nil || !ComparePassword(input.Password, hash) {
		utils.WriteDetail(w, http.StatusBadRequest, "invalid username or password")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Login successful", "username": input.Username})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		messages, err := s.chat.History(r.Context())
		if err != nil {
			log.Error().Err(err).Str("component", "server").Msg("list messages failed")
			utils.WriteDetail(w, http.StatusInternalServerError, "internal error")
			return
		}
		utils.WriteJSON(w, http.StatusOK, messages)
	case http.MethodPost:
		var frame chat.OutboundFrame
		if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
			utils.WriteDetail(w, http.StatusUnprocessableEntity, "invalid request body")
			return
		}
		message, err := s.chat.Post(r.Context(), frame)
		if errors.Is(err, ErrInvalidMessage) {
			utils.WriteDetail(w, http.StatusUnprocessableEntity, ErrInvalidMessage.Error())
			return
		}
		if err != nil {
			log.Error().Err(err).Str("component", "server").Msg("store message failed")
			utils.WriteDetail(w, http.StatusInternalServerError, "internal error")
			return
		}
		utils.WriteJSON(w, http.StatusOK, message)
	default:
		utils.WriteDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "server").Msg("upgrade failed")
		return
	}
	s.chat.HandleConnection(r.Context(), conn)
}
