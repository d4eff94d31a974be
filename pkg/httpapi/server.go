// Package httpapi exposes the dispatcher over HTTP for the agent runtime:
// one dispatch endpoint, the catalogue export, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Asygurare/salespilot/agent/action"
	"github.com/Asygurare/salespilot/agent/contract"
)

type Config struct {
	Addr            string        `split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"10s"`
	WriteTimeout    time.Duration `split_words:"true" default:"30s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

// Authenticator turns a bearer token into the caller the dispatcher trusts.
// The zero UserID means the token was rejected.
type Authenticator func(ctx context.Context, token string) (userID, timezone string, err error)

type Server struct {
	cfg        Config
	dispatcher *action.Dispatcher
	auth       Authenticator
	httpServer *http.Server
}

func NewServer(cfg Config, dispatcher *action.Dispatcher, auth Authenticator) *Server {
	s := &Server{cfg: cfg, dispatcher: dispatcher, auth: auth}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/actions", s.handleActions)
		r.Post("/dispatch", s.handleDispatch)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// handleActions exports the catalogue as chat-completion tool schemas for the
// model prompt.
func (s *Server) handleActions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.dispatcher.ToolParams()})
}

type dispatchRequest struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, contract.Failure(err))
		return
	}

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			contract.Failure(fmt.Errorf("%w: malformed request body", contract.ErrInvalidInput)))
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest,
			contract.Failure(fmt.Errorf("%w: action is required", contract.ErrInvalidInput)))
		return
	}

	start := time.Now()
	result := s.dispatcher.Dispatch(r.Context(), req.Action, req.Args, caller)
	observeDispatch(req.Action, result, time.Since(start))

	writeJSON(w, statusCode(result), result)
}

func (s *Server) authenticate(r *http.Request) (contract.CallerContext, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return contract.CallerContext{}, fmt.Errorf("%w: missing bearer token", contract.ErrUnauthorized)
	}

	userID, timezone, err := s.auth(r.Context(), strings.TrimSpace(token))
	if err != nil {
		return contract.CallerContext{}, fmt.Errorf("%w: %v", contract.ErrUnauthorized, err)
	}
	if userID == "" {
		return contract.CallerContext{}, fmt.Errorf("%w: token rejected", contract.ErrUnauthorized)
	}

	loc := time.UTC
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		}
	}

	return contract.CallerContext{UserID: userID, Timezone: loc, Now: time.Now()}, nil
}

// statusCode maps a dispatch outcome onto the transport. The result body is
// authoritative either way; codes exist for load balancers and logs.
func statusCode(res contract.ActionResult) int {
	switch res.Status {
	case contract.StatusOk, contract.StatusRequiresConfirmation:
		return http.StatusOK
	default:
		switch res.Kind {
		case contract.KindInvalidInput:
			return http.StatusBadRequest
		case contract.KindUnauthorized:
			return http.StatusUnauthorized
		case contract.KindNotFound, contract.KindUnknownAction:
			return http.StatusNotFound
		case contract.KindInvalidState:
			return http.StatusConflict
		case contract.KindNotConnected, contract.KindRefreshFailed, contract.KindProviderCall:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("encoding response failed")
	}
}
