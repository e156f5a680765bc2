package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ecolisting-chat-backend/internal/chat"
	internaljwt "ecolisting-chat-backend/internal/jwt"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/queue"
	"ecolisting-chat-backend/internal/service/conversation"
	"ecolisting-chat-backend/internal/service/policy"
	"ecolisting-chat-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// Services are what route registrars build endpoints from. A server only
// needs the ones its routes use.
type Services struct {
	Chat          *chat.Service
	Conversations *conversation.Service
	Policy        *policy.Decider
	Auth          *internaljwt.Authenticator
	WS            *websocket.Handler
}

type Options struct {
	AllowedOrigins []string
	// FunctionsKey guards the policy RPC; empty disables the check.
	FunctionsKey string
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	services            Services
	options             Options
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
	log                 *logger.Logger
}

func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, services Services, options Options, log *logger.Logger, registrars ...RouteRegistrar) *APIServer {
	return NewAPIServerWithRegistry(prometheus.DefaultRegisterer, listenAddr, rqm, services, options, log, registrars...)
}

// NewAPIServerWithRegistry registers the HTTP metrics with reg instead of
// the default registry.
func NewAPIServerWithRegistry(reg prometheus.Registerer, listenAddr string, rqm *queue.RequestQueueManager, services Services, options Options, log *logger.Logger, registrars ...RouteRegistrar) *APIServer {
	if len(options.AllowedOrigins) == 0 {
		options.AllowedOrigins = []string{"http://localhost:3000"}
	}
	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		services:            services,
		options:             options,
		routeRegistrars:     registrars,
		metrics:             newMetrics(reg, listenAddr, rqm),
		log:                 logger.OrNop(log).With("component", "api", "addr", listenAddr),
	}
}

// Routes builds the instrumented mux.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())
	return s.metrics.instrument(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("server listening")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

func (s *APIServer) Services() Services {
	return s.services
}

func (s *APIServer) Options() Options {
	return s.options
}

func (s *APIServer) Logger() *logger.Logger {
	return s.log
}

func (s *APIServer) Handler() *websocket.Handler {
	return s.services.WS
}
