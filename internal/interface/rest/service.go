package restservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nftmarket/marketd/internal/config"
	"github.com/nftmarket/marketd/internal/core/application"
	interfaces "github.com/nftmarket/marketd/internal/interface"
	"github.com/nftmarket/marketd/internal/interface/rest/handlers"
	"github.com/nftmarket/marketd/internal/interface/rest/interceptors"
	"github.com/nftmarket/marketd/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type service struct {
	version           string
	config            Config
	appConfig         *config.Config
	appSvc            application.Service
	server            *http.Server
	readinessSvc      *interceptors.ReadinessService
	appSvcStarted     atomic.Bool
	otelShutdown      func(context.Context) error
	pyroscopeShutdown func() error
}

func NewService(
	version string, svcConfig Config, appConfig *config.Config,
) (interfaces.Service, error) {
	if err := svcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}

	return &service{
		version:      version,
		config:       svcConfig,
		appConfig:    appConfig,
		readinessSvc: interceptors.NewReadinessService(),
	}, nil
}

func (s *service) Start() error {
	if s.appConfig.OtelCollectorEndpoint != "" {
		pushInterval := time.Duration(s.appConfig.OtelPushInterval) * time.Second
		otelShutdown, err := telemetry.InitOtelSDK(
			context.Background(), s.appConfig.OtelCollectorEndpoint, pushInterval,
		)
		if err != nil {
			return err
		}
		s.otelShutdown = otelShutdown

		pyroscopeShutdown, err := telemetry.InitPyroscope(s.appConfig.PyroscopeServerURL)
		if err != nil {
			return err
		}
		s.pyroscopeShutdown = pyroscopeShutdown
	}

	appSvc, err := s.appConfig.AppService()
	if err != nil {
		return fmt.Errorf("failed to create app service: %w", err)
	}
	s.appSvc = appSvc

	handler := h2c.NewHandler(newRouter(appSvc, s.readinessSvc, s.version), &http2.Server{})
	s.server = &http.Server{
		Addr:              s.config.address(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server stopped unexpectedly")
		}
	}()
	log.Infof("started listening at %s", s.config.address())

	return s.startAppServices(appSvc)
}

func (s *service) Stop() {
	if s.appSvcStarted.CompareAndSwap(true, false) {
		s.readinessSvc.MarkAppServiceStopped()
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to gracefully shutdown http server")
			// nolint:all
			s.server.Close()
		}
		cancel()
	}

	// Stop the app service only once no request can reach it anymore.
	if s.appSvc != nil {
		s.appSvc.Stop()
	}

	if s.pyroscopeShutdown != nil {
		if err := s.pyroscopeShutdown(); err != nil {
			log.Errorf("failed to shutdown pyroscope: %s", err)
		}
		log.Info("shutdown pyroscope")
	}
	if s.otelShutdown != nil {
		if err := s.otelShutdown(context.Background()); err != nil {
			log.Errorf("failed to shutdown otel: %s", err)
		}
	}
	log.Info("shutdown service")
}

func (s *service) startAppServices(appSvc application.Service) error {
	if !s.appSvcStarted.CompareAndSwap(false, true) {
		return nil
	}

	if err := appSvc.Start(); err != nil {
		s.appSvcStarted.Store(false)
		return fmt.Errorf("failed to start app service: %w", err)
	}
	log.Info("started app service")

	s.readinessSvc.MarkAppServiceStarted()
	log.Info("market service is now ready")
	return nil
}

type healthResponse struct {
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
}

func newRouter(
	appSvc application.Service, readinessSvc *interceptors.ReadinessService, version string,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		interceptors.RequestId,
		interceptors.Logger,
		interceptors.PanicRecovery,
		interceptors.Cors,
		interceptors.Caller,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		if !readinessSvc.Ready() {
			status = http.StatusServiceUnavailable
		}
		interceptors.WriteJSON(w, status, healthResponse{readinessSvc.Ready(), version})
	})

	r.Group(func(r chi.Router) {
		r.Use(readinessSvc.Handler)
		handlers.NewHandler(appSvc).Register(r)
	})

	return otelhttp.NewHandler(
		r, "marketd",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
	)
}
