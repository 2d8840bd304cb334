package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/fxnlabs/occupancy/fixtures"
	"github.com/fxnlabs/occupancy/internal/advisor"
	"github.com/fxnlabs/occupancy/internal/config"
	"github.com/fxnlabs/occupancy/internal/gpu"
	"github.com/fxnlabs/occupancy/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module provides the advisor HTTP service. It needs a *config.Config and a *zap.Logger.
var Module = fx.Options(
	fx.Provide(
		NewCatalog,
		NewKernels,
		NewEnvironment,
		NewMux,
		New,
	),
	fx.Invoke(func(*Server) {}),
)

// NewApp builds the service application.
func NewApp(cfg *config.Config, log *zap.Logger, opts ...fx.Option) *fx.App {
	options := []fx.Option{
		fx.Supply(cfg, log),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		Module,
	}
	return fx.New(append(options, opts...)...)
}

// NewCatalog loads the built-in device presets plus the configured extra catalog.
func NewCatalog(cfg *config.Config, log *zap.Logger) (*gpu.Catalog, error) {
	catalog, err := gpu.NewDefaultCatalog(log.Named("catalog"))
	if err != nil {
		return nil, err
	}
	if path := cfg.ResolvePath(cfg.Devices.CatalogPath); path != "" {
		if err := catalog.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load device catalog %s: %w", path, err)
		}
	}
	return catalog, nil
}

// NewKernels loads the kernel catalog, or the built-in template when none is configured.
func NewKernels(cfg *config.Config) (*config.KernelConfig, error) {
	path := cfg.ResolvePath(cfg.KernelsPath)
	if path == "" {
		return config.ParseKernelConfig(fixtures.KernelsTemplate)
	}
	kernels, err := config.LoadKernelConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load kernel config %s: %w", path, err)
	}
	return kernels, nil
}

func NewEnvironment(cfg *config.Config, catalog *gpu.Catalog, kernels *config.KernelConfig) (*advisor.Environment, error) {
	if _, err := catalog.Lookup(cfg.Devices.Default); err != nil {
		return nil, fmt.Errorf("default device: %w", err)
	}
	return &advisor.Environment{
		Catalog:       catalog,
		Kernels:       kernels,
		DefaultDevice: cfg.Devices.Default,
		State:         cfg.DeviceState,
	}, nil
}

func NewMux(env *advisor.Environment, log *zap.Logger) *http.ServeMux {
	log = log.Named("advisor")

	mux := http.NewServeMux()
	mux.Handle("/v1/query", metrics.Middleware(advisor.QueryHandler(log, env), "/v1/query"))
	mux.Handle("/v1/devices", metrics.Middleware(advisor.DevicesHandler(env), "/v1/devices"))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Server is the advisor's HTTP server, started and stopped with the application.
type Server struct {
	srv      *http.Server
	listener net.Listener
	log      *zap.Logger
}

func New(lc fx.Lifecycle, cfg *config.Config, mux *http.ServeMux, log *zap.Logger) *Server {
	s := &Server{
		srv: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.ListenAddress, strconv.Itoa(cfg.Server.ListenPort)),
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		log: log.Named("server"),
	}

	lc.Append(fx.Hook{
		OnStart: s.start,
		OnStop:  s.srv.Shutdown,
	})
	return s
}

func (s *Server) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.log.Info("Starting server", zap.String("address", listener.Addr().String()))
	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the address the server listens on, once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}
