package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// --- ANSI color codes ---
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

// Router is a chi mux with request logging. With Pretty set, each request
// is printed as one colored line to Out; otherwise it goes to Logger as a
// structured record.
type Router struct {
	mux    chi.Router
	Logger *slog.Logger
	Pretty bool
	Out    io.Writer
}

func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:    chi.NewRouter(),
		Logger: logger,
		Out:    os.Stderr,
	}

	r.mux.Use(middleware.RequestID)
	r.mux.Use(middleware.RealIP)
	r.mux.Use(r.logRequests)
	r.mux.Use(middleware.Recoverer)

	return r
}

// --- Register paths ---
func (r *Router) GET(path string, handler http.HandlerFunc) { r.mux.Get(path, handler) }

// Handler returns the router as an http.Handler.
func (r *Router) Handler() http.Handler { return r.mux }

// Routes lists registered routes as "METHOD /path", sorted.
func (r *Router) Routes() []string {
	var routes []string
	chi.Walk(r.mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	})
	sort.Strings(routes)
	return routes
}

// --- Start server ---

// Start serves on addr until ctx is done, then shuts down, giving in-flight
// requests up to shutdownTimeout to finish.
func (r *Router) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.Logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	r.Logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (r *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, req)

		duration := time.Since(start)
		if r.Pretty {
			fmt.Fprintf(r.Out, "%s[%s]%s %s%s%s %s %s%d%s %s(%v)%s\n",
				colorCyan, start.Format("2006-01-02 15:04:05"), colorReset,
				methodColor(req.Method), req.Method, colorReset,
				req.URL.Path,
				statusColor(lrw.statusCode), lrw.statusCode, colorReset,
				colorBlue, duration, colorReset,
			)
			return
		}

		r.Logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", lrw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"request_id", middleware.GetReqID(req.Context()),
		)
	})
}

// --- Logging response writer to capture status codes ---
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if lrw.wroteHeader {
		return
	}
	lrw.statusCode = code
	lrw.wroteHeader = true
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if !lrw.wroteHeader {
		lrw.WriteHeader(http.StatusOK)
	}
	return lrw.ResponseWriter.Write(b)
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

// --- Color helpers ---
func statusColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return colorGreen
	case code >= 300 && code < 400:
		return colorCyan
	case code >= 400 && code < 500:
		return colorYellow
	default:
		return colorRed
	}
}

func methodColor(method string) string {
	switch method {
	case http.MethodGet:
		return colorGreen
	case http.MethodPost:
		return colorBlue
	case http.MethodPut, http.MethodPatch:
		return colorYellow
	case http.MethodDelete:
		return colorRed
	default:
		return colorCyan
	}
}
