package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
)

// ErrUnauthorized is reported when a request lacks the configured API key.
var ErrUnauthorized = errors.New("unauthorized: api key required")

// Submitter queues intents. *engine.Engine satisfies it.
type Submitter interface {
	Submit(ctx context.Context, intent core.Intent) (string, error)
}

// Results hands out stored results. *engine.ResponseStore satisfies it.
type Results interface {
	Get(id string) (core.Result, bool)
	Wait(ctx context.Context, id string) (core.Result, error)
}

// Options configures a Server.
type Options struct {
	Addr string
	// WaitTimeout bounds how long a WebSocket client waits for its result.
	WaitTimeout time.Duration
	// MaxBodyBytes caps POST /intents bodies.
	MaxBodyBytes int64
	// AllowedOrigins are accepted WebSocket origins given as scheme://host
	// with an optional :port. An entry without a port accepts any port and
	// "*" accepts everything. Requests without an Origin header are always
	// accepted.
	AllowedOrigins []string
	// APIKey, when set, is required on every route except /healthz as
	// "Authorization: Bearer <key>" or "X-API-Key: <key>". WebSocket clients
	// may pass it as ?token=<key> instead.
	APIKey string
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	// Health reports readiness on /healthz. Nil means always healthy.
	Health func(ctx context.Context) error
	Logger logging.Logger
}

// Server serves the gateway routes.
type Server struct {
	submitter Submitter
	results   Results
	opts      Options
	logger    logging.Logger
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
	handler   http.Handler
}

// New creates a Server.
func New(s Submitter, r Results, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:           ":8080",
		WaitTimeout:    30 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"},
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	srv := &Server{submitter: s, results: r, opts: opts, logger: opts.Logger, mux: http.NewServeMux()}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.checkOrigin,
	}
	srv.mux.HandleFunc("POST /intents", srv.handleSubmit)
	srv.mux.HandleFunc("GET /intents/{id}", srv.handleResult)
	srv.mux.HandleFunc("GET /ws/{id}", srv.handleWebSocket)
	srv.mux.HandleFunc("GET /healthz", srv.handleHealth)
	if opts.Metrics != nil {
		srv.mux.Handle("GET /metrics", opts.Metrics)
	}
	srv.handler = srv.authenticate(srv.mux)
	return srv
}

// Handler returns the routes wrapped in API key checking.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()
	s.logger.Info("gateway listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var intent core.Intent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err := dec.Decode(&intent); err != nil {
		s.writeError(w, http.StatusBadRequest, &core.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if intent == nil {
		s.writeError(w, http.StatusBadRequest, &core.ValidationError{Field: "body", Reason: "must be a JSON object"})
		return
	}
	if v, ok := intent[core.KeyIntent]; ok {
		if _, isString := v.(string); !isString {
			s.writeError(w, http.StatusBadRequest, &core.ValidationError{Field: core.KeyIntent, Reason: "must be a string"})
			return
		}
	}

	id, err := s.submitter.Submit(r.Context(), intent)
	switch {
	case errors.Is(err, core.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.logger.Error("submit intent failed", "intent", intent.Type(), "error", err)
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.logger.Debug("intent queued", "intent", intent.Type(), "intent_id", id)
	writeJSON(w, http.StatusAccepted, map[string]any{core.KeyStatus: "queued", core.KeyIntentID: id})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, ok := s.results.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			core.KeyStatus:   "pending",
			core.KeyIntentID: id,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "intent_id", id, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.WaitTimeout)
	defer cancel()

	// A client closing early cancels the wait.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	res, err := s.results.Wait(ctx, id)
	if err != nil {
		res = core.ErrorResult(&core.TimeoutError{Name: "result " + id, Timeout: s.opts.WaitTimeout})
		res[core.KeyIntentID] = id
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(res); err != nil {
		s.logger.Warn("websocket write failed", "intent_id", id, "error", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{core.KeyStatus: "unhealthy", core.KeyMessage: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{core.KeyStatus: "ok"})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil {
		for _, allowed := range s.opts.AllowedOrigins {
			if allowed == "*" || originMatches(u, allowed) {
				return true
			}
		}
	}
	s.logger.Warn("rejected websocket origin", "origin", origin)
	return false
}

func originMatches(origin *url.URL, allowed string) bool {
	a, err := url.Parse(allowed)
	if err != nil || a.Host == "" {
		return false
	}
	if !strings.EqualFold(origin.Scheme, a.Scheme) || !strings.EqualFold(origin.Hostname(), a.Hostname()) {
		return false
	}
	return a.Port() == "" || a.Port() == origin.Port()
}

// authenticate rejects requests without the configured API key. /healthz
// stays public so health checks work without credentials.
func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.opts.APIKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || tokenValid(requestToken(r), s.opts.APIKey) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="lattice"`)
		s.writeError(w, http.StatusUnauthorized, ErrUnauthorized)
	})
}

func requestToken(r *http.Request) string {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	if strings.HasPrefix(r.URL.Path, "/ws/") {
		return r.URL.Query().Get("token")
	}
	return ""
}

func tokenValid(provided, expected string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, core.ErrorResult(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
