// Package api exposes the analytics engine over an HTTP JSON API and a gRPC
// service. Both transports share the request types and the mapping from
// domain errors to status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"autoindex/internal/backtest"
	"autoindex/internal/engine"
	"autoindex/internal/metrics"
	"autoindex/internal/store"
	"autoindex/internal/strategy"
)

// maxBodyBytes bounds request bodies; price histories dominate their size.
const maxBodyBytes = 32 << 20

// Deps are the collaborators of a Server. Engine and Registry are required;
// each store is optional and the endpoints that need a missing one answer
// 404.
type Deps struct {
	Engine     *engine.Engine
	Registry   *strategy.Registry
	Prices     store.PriceStore
	Strategies store.StrategyStore
	Runs       store.RunStore
	Artifacts  store.RunArtifactStore

	// Capital, Grid and Optimize fill in what a request leaves unset.
	Capital  float64
	Grid     backtest.Grid
	Optimize backtest.OptimizeOptions

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Logger    *slog.Logger
}

// Server hosts the HTTP and gRPC endpoints.
type Server struct {
	Deps
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewServer creates a Server from deps.
func NewServer(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{Deps: deps, log: log.With("component", "api")}
	if deps.RateLimit > 0 {
		burst := deps.Burst
		if burst <= 0 {
			burst = int(deps.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(deps.RateLimit), burst)
	}
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/returns", s.handleReturns)
	mux.HandleFunc("POST /api/v1/total-return", s.handleTotalReturn)
	mux.HandleFunc("POST /api/v1/annualized-return", s.handleAnnualizedReturn)
	mux.HandleFunc("POST /api/v1/volatility", s.handleVolatility)
	mux.HandleFunc("POST /api/v1/sharpe-ratio", s.handleSharpe)
	mux.HandleFunc("POST /api/v1/max-drawdown", s.handleMaxDrawdown)
	mux.HandleFunc("POST /api/v1/portfolio-metrics", s.handlePortfolioMetrics)
	mux.HandleFunc("POST /api/v1/asset-metrics", s.handleAssetMetrics)
	mux.HandleFunc("POST /api/v1/weights", s.handleWeights)
	mux.HandleFunc("POST /api/v1/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/v1/optimize", s.handleOptimize)

	mux.HandleFunc("GET /api/v1/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /api/v1/strategies/{name}", s.handleGetStrategy)
	mux.HandleFunc("PUT /api/v1/strategies/{name}", s.handlePutStrategy)
	mux.HandleFunc("GET /api/v1/strategies/{name}/versions", s.handleStrategyVersions)

	mux.HandleFunc("GET /api/v1/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/report", s.handleRunReport)
	mux.HandleFunc("GET /api/v1/runs/{id}/chart.png", s.handleRunChart)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the routed API wrapped in metrics, rate limiting and CORS
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.instrument(s.rateLimit(corsMiddleware(mux)))
}

// ListenAndServe serves HTTP on httpAddr and gRPC on grpcAddr until ctx is
// cancelled, then shuts both down gracefully. An empty address disables
// that listener.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, grpcAddr string) error {
	g, gctx := errgroup.WithContext(ctx)

	if httpAddr != "" {
		httpServer := &http.Server{
			Addr:              httpAddr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			s.log.Info("HTTP server listening", "addr", httpAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", grpcAddr, err)
		}
		gs := grpc.NewServer()
		s.RegisterGRPC(gs)
		g.Go(func() error {
			s.log.Info("gRPC server listening", "addr", grpcAddr)
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by matched route pattern and status code.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// fail writes err with its mapped status; server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
