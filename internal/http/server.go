// README: API gateway; owns the listener and delegates to module services.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"transfer/internal/infra"
	"transfer/internal/logger"
	"transfer/internal/modules/availability"
	"transfer/internal/modules/location"
	"transfer/internal/modules/ride"
)

type ServerDeps struct {
	Rides    *ride.Service
	Pool     *availability.Pool
	Location *location.Service
	Events   EventStream
	Verifier infra.TokenVerifier
	Log      logger.Logger
	Gatherer prometheus.Gatherer
}

type Server struct {
	srv *http.Server
	log logger.Logger
}

func NewServer(addr string, deps ServerDeps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: deps.Log,
	}
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, drain time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	s.log.Info("http server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}
