package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"alertmanager/internal/api"
	"alertmanager/internal/clock"
	"alertmanager/internal/config"
	"alertmanager/internal/ingest"
	"alertmanager/internal/logging"
	"alertmanager/internal/metrics"
	"alertmanager/internal/notify"
	"alertmanager/internal/processor"
	"alertmanager/internal/tracing"
)

const tracerName = "alertmanager/processor"

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable alert manager service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	clock     clock.Clock
	collector *metrics.Collector
	runtime   *Runtime
	processor *processor.Processor
	handler   http.Handler
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	traceStop tracing.ShutdownFunc
	readyFlag atomic.Bool
	addr      atomic.Value
}

// NewService loads config from source and builds the service.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}
	return New(cfg, clk)
}

// New builds the service from a validated config snapshot.
// Params: config and clock.
// Returns: initialized service or setup error; partially built resources are released.
func New(cfg config.Config, clk clock.Clock) (*Service, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = logger.With("service", cfg.Service.Name)

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
	}
	if err := service.build(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	return service, nil
}

func (s *Service) build() error {
	provider, traceStop, err := tracing.NewProvider(context.Background(), s.cfg.Tracing, s.logger)
	if err != nil {
		return err
	}
	s.traceStop = traceStop

	if s.cfg.Metrics.Enabled {
		collector, err := metrics.NewCollector(s.cfg.Metrics.Namespace, s.liveAlerts)
		if err != nil {
			return fmt.Errorf("metrics collector: %w", err)
		}
		s.collector = collector
	}

	runtime, err := BuildRuntime(s.cfg, BuildDeps{
		Clock:   s.clock,
		Logger:  s.logger,
		Metrics: s.collector,
		Notify:  notify.Options{Logger: s.logger},
	})
	if err != nil {
		return err
	}
	s.runtime = runtime

	observers := processor.Observers{processor.NewLogObserver(s.logger)}
	if s.collector != nil {
		observers = append(observers, processor.ObserverFunc(s.collector.Event))
	}
	s.processor = processor.New(runtime.Router,
		processor.WithClock(s.clock),
		processor.WithLogger(s.logger),
		processor.WithObserver(observers),
		processor.WithFlushers(runtime.Flushers...),
		processor.WithTick(time.Duration(s.cfg.Service.TickIntervalMS)*time.Millisecond),
		processor.WithTracer(provider.Tracer(tracerName)),
	)

	s.buildHTTPServer()
	return s.buildNATSSubscriber()
}

func (s *Service) liveAlerts() int {
	if s.processor == nil {
		return 0
	}
	return s.processor.Len()
}

// Processor returns the alert processor.
func (s *Service) Processor() *processor.Processor {
	return s.processor
}

// Handler returns HTTP handler serving API, health, readiness and metrics.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Addr returns bound listen address once Run started serving.
func (s *Service) Addr() string {
	addr, _ := s.addr.Load().(string)
	return addr
}

// Ready reports readiness flag.
func (s *Service) Ready() bool {
	return s.readyFlag.Load()
}

// Run starts HTTP and processing loops and blocks until shutdown.
// Params: root context; cancellation or SIGINT/SIGTERM trigger shutdown.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.HTTP.Listen)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Listen, err)
	}
	s.addr.Store(listener.Addr().String())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", listener.Addr().String())
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		_ = s.processor.Run(runCtx)
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		runErr = fmt.Errorf("http server failed: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	}
	s.readyFlag.Store(false)
	cancel()
	<-processorDone
	return errors.Join(runErr, s.shutdown())
}

// shutdown closes runtime resources in dependency order.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Service.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	s.processor.Stop()
	if err := s.runtime.Close(); err != nil {
		s.logger.Error("receiver close failed", "error", err.Error())
		markErr(fmt.Errorf("receiver close: %w", err))
	}
	if err := s.traceStop(ctx); err != nil {
		s.logger.Error("tracing shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("tracing shutdown: %w", err))
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.runtime != nil {
		_ = s.runtime.Close()
		s.runtime = nil
	}
	if s.traceStop != nil {
		_ = s.traceStop(context.Background())
		s.traceStop = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires API, health, readiness and metrics endpoints.
func (s *Service) buildHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	if s.collector != nil {
		mux.Handle(s.cfg.Metrics.Path, s.collector.Handler())
	}

	var authorizer api.Authorizer = api.AllowAll{}
	if s.cfg.HTTP.Auth.Type == config.AuthBasic {
		authorizer = api.NewBasicAuthorizer(s.cfg.HTTP.Auth.Users)
	}
	apiHandler := api.NewHandler(s.processor, api.Options{
		BasePath:      s.cfg.HTTP.BasePath,
		MaxBodyBytes:  s.cfg.HTTP.MaxBodyBytes,
		DefaultExpiry: time.Duration(s.cfg.Service.DefaultExpirySec) * time.Second,
		Authorizer:    authorizer,
		Clock:         s.clock,
		Logger:        s.logger,
	})
	mux.Handle(strings.TrimSuffix(s.cfg.HTTP.BasePath, "/")+"/", apiHandler)

	s.handler = mux
	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildNATSSubscriber starts NATS ingest when enabled.
func (s *Service) buildNATSSubscriber() error {
	if !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.processor, ingest.Options{
		DefaultExpiry: time.Duration(s.cfg.Service.DefaultExpirySec) * time.Second,
		Clock:         s.clock,
		Logger:        s.logger,
	})
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}
