// Package api serves the read side over HTTP: recent events, the has-new
// indicator, the seen marker, scanner status, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"whaleScope/internal/feed"
	"whaleScope/internal/scanner"
	"whaleScope/internal/storage"
)

const (
	defaultLimit = 100
	maxLimit     = 2000
)

// Reader is the consumer read path of feed.Reader.
type Reader interface {
	LoadRecentEvents(ctx context.Context, chain string, limit int) ([]feed.RecentEvent, error)
	HasNewSince(ctx context.Context, chain string, lastSeen uint64) (bool, error)
	HasNew(ctx context.Context, chain string) (bool, error)
	MarkSeen(ctx context.Context, chain string) (storage.SeenMarker, error)
}

// Options configures a Server. Status, Ready and Gatherer are optional.
type Options struct {
	Chains   []string
	Reader   Reader
	Status   func() []scanner.Status
	Ready    func(ctx context.Context) bool
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server is the HTTP read API.
type Server struct {
	opts   Options
	chains map[string]struct{}
	router *mux.Router
	logger *zap.Logger
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		opts:   opts,
		chains: make(map[string]struct{}, len(opts.Chains)),
		router: mux.NewRouter(),
		logger: opts.Logger,
	}
	for _, c := range opts.Chains {
		s.chains[c] = struct{}{}
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/chains", s.handleChains).Methods(http.MethodGet)
	api.HandleFunc("/chains/{chain}/events", s.withChain(s.handleEvents)).Methods(http.MethodGet)
	api.HandleFunc("/chains/{chain}/has-new", s.withChain(s.handleHasNew)).Methods(http.MethodGet)
	api.HandleFunc("/chains/{chain}/seen", s.withChain(s.handleMarkSeen)).Methods(http.MethodPost)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type chainHandler func(w http.ResponseWriter, r *http.Request, chain string)

func (s *Server) withChain(h chainHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chain := mux.Vars(r)["chain"]
		if _, ok := s.chains[chain]; !ok {
			writeError(w, http.StatusNotFound, "unknown chain "+strconv.Quote(chain))
			return
		}
		h(w, r, chain)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil && !s.opts.Ready(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	statuses := []scanner.Status{}
	if s.opts.Status != nil {
		statuses = s.opts.Status()
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleChains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"chains": s.opts.Chains})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, chain string) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}
	events, err := s.opts.Reader.LoadRecentEvents(r.Context(), chain, limit)
	if err != nil {
		s.logger.Error("load recent events", zap.String("chain", chain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load events failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chain": chain, "events": events})
}

func (s *Server) handleHasNew(w http.ResponseWriter, r *http.Request, chain string) {
	var (
		has bool
		err error
	)
	if v := r.URL.Query().Get("since"); v != "" {
		since, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "since must be a block number")
			return
		}
		has, err = s.opts.Reader.HasNewSince(r.Context(), chain, since)
	} else {
		has, err = s.opts.Reader.HasNew(r.Context(), chain)
	}
	if err != nil {
		s.logger.Error("has new", zap.String("chain", chain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "checkpoint read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chain": chain, "has_new": has})
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request, chain string) {
	marker, err := s.opts.Reader.MarkSeen(r.Context(), chain)
	if err != nil {
		s.logger.Error("mark seen", zap.String("chain", chain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "mark seen failed")
		return
	}
	s.logger.Info("marked seen", zap.String("chain", chain), zap.Uint64("seen_block", marker.Block), zap.String("hash", marker.Hash))
	writeJSON(w, http.StatusOK, marker)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
