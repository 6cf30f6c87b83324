// Package rpc serves a ledger over JSON-RPC 2.0 for ledgerd.
package rpc

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/platform/metrics"
	"royalty-exchange/go-backend/internal/platform/ratelimiter"
)

const (
	DefaultRPCAddr = "127.0.0.1:8787"
	// TokenHeader carries the RPC token. Authorization: Bearer works too.
	TokenHeader = "X-Ledger-RPC-Token"
	// AutoToken asks the server to generate a token at start.
	AutoToken = "auto"
)

type Backend = ledger.Ledger

type Config struct {
	Addr string
	// Token is required from every caller when set. AutoToken generates one.
	Token          string
	RequireToken   bool
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        *metrics.Ledgerd
	// Gatherer backs /metrics. Nil leaves /metrics unmounted.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type Server struct {
	httpServer   *http.Server
	backend      Backend
	rpcToken     string
	requireToken bool
	limiter      *ratelimiter.MapLimiter
	metrics      *metrics.Ledgerd
	log          *slog.Logger
}

func NewServer(backend Backend, cfg Config) (*Server, error) {
	if backend == nil {
		return nil, errors.New("rpc: backend is required")
	}
	token, err := resolveRPCToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	if cfg.RequireToken && token == "" {
		return nil, errors.New("rpc: a token is required")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultRPCAddr
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewLedgerd(nil)
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		backend:      backend,
		rpcToken:     token,
		requireToken: cfg.RequireToken,
		limiter:      ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute),
		metrics:      m,
		log:          log.With("component", "rpc"),
	}
	if s.rpcToken == "" {
		s.log.Warn("rpc token is not set; RPC auth disabled")
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	if cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return s, nil
}

func (s *Server) Token() string { return s.rpcToken }

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Addr() string { return s.httpServer.Addr }

func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	s.log.Info("rpc listening", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.handleHealth(w, r)
}

func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	s.handleRPC(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.backend.Status(r.Context())
	if err != nil {
		http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
		return
	}
	s.metrics.LastRound.Set(float64(st.LastRound))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "last_round": st.LastRound})
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !isAllowedOrigin(origin) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return false
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+TokenHeader)
	return true
}

func (s *Server) authorizeRPC(w http.ResponseWriter, r *http.Request) bool {
	if s.rpcToken == "" && !s.requireToken {
		return true
	}
	if subtle.ConstantTimeCompare([]byte(s.extractRPCToken(r)), []byte(s.rpcToken)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) extractRPCToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(TokenHeader))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

func isAllowedOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func resolveRPCToken(configured string) (string, error) {
	token := strings.TrimSpace(configured)
	if !strings.EqualFold(token, AutoToken) {
		return token, nil
	}
	return generateRPCToken()
}

func generateRPCToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "rpc_" + hex.EncodeToString(buf), nil
}
