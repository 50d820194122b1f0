// Package web serves the HTTP API over the catalog and history, and the
// operator HTML application.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/angora-org/angora/internal/logger"
)

// Server hosts a chi handler with graceful shutdown.
type Server struct {
	host       string
	port       int
	jsonLog    bool
	httpServer *http.Server
}

// NewServer builds a server for the given bind address.
func NewServer(host string, port int, jsonLog bool) *Server {
	return &Server{host: host, port: port, jsonLog: jsonLog}
}

// Serve mounts the routes and blocks until the context is canceled, then
// shuts down gracefully.
func (srv *Server) Serve(ctx context.Context, routes func(chi.Router)) error {
	requestLogger := httplog.NewLogger("http", httplog.Options{
		LogLevel:         slog.LevelDebug,
		JSON:             srv.jsonLog,
		Concise:          true,
		MessageFieldName: "msg",
	})

	r := chi.NewMux()
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(withRecoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	routes(r)

	addr := net.JoinHostPort(srv.host, strconv.Itoa(srv.port))
	srv.httpServer = &http.Server{
		Handler:           r,
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Server is starting", "addr", addr)
		if err := srv.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.httpServer.SetKeepAlivesEnabled(false)
	if err := srv.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Failed to shutdown server", "err", err)
		return err
	}
	logger.Info(ctx, "Server shutdown complete")
	return nil
}

// withRecoverer is adapted from chi's recoverer middleware, routed
// through the application logger.
func withRecoverer(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				st := string(debug.Stack())
				logger.Error(r.Context(), "Panic occurred", "err", rvr, "st", st)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
