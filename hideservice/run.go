package hideservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/api"
	"github.com/hideapp/hide/internal/cards"
	"github.com/hideapp/hide/internal/commands"
	"github.com/hideapp/hide/internal/config"
	"github.com/hideapp/hide/internal/debounce"
	"github.com/hideapp/hide/internal/events"
	"github.com/hideapp/hide/internal/factory"
	"github.com/hideapp/hide/internal/health"
	"github.com/hideapp/hide/internal/ingest"
	"github.com/hideapp/hide/internal/logger"
	"github.com/hideapp/hide/internal/messaging"
	"github.com/hideapp/hide/internal/store"
)

// Run starts the hide service and blocks until shutdown or error.
func Run() error {
	log := logger.New("hide-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	return RunWithConfig(cfg, log)
}

// RunWithConfig is Run with an already loaded configuration.
func RunWithConfig(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("store_driver", cfg.StoreDriver).
		Int("http_port", cfg.HTTPPort).
		Msg("Hide service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	a.startExecutor(ctx)

	svcHealth := startHealthCheckers(ctx, cfg, log, a)
	a.health.set(svcHealth)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, a.router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

const executorDrainTimeout = 10 * time.Second

// app holds the wired components of one service instance.
type app struct {
	store     store.Store
	closer    io.Closer
	broker    *events.Broker
	cards     *cards.Service
	coalescer *debounce.Coalescer
	pipeline  *ingest.Pipeline
	queue     *commands.Queue
	executor  *commands.Executor
	messenger messaging.Client
	health    *lateHealth
	router    http.Handler
	log       zerolog.Logger

	// closed when the executor goroutine returns; nil until startExecutor
	executorDone chan struct{}
}

// newApp constructs every component; the executor is not started.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	st, closer, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}

	codec, err := commands.NewCodec(cfg.Location())
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	a := &app{store: st, closer: closer, health: &lateHealth{}, log: log}
	a.broker = events.NewBroker(cfg.SubscriberBuffer, logger.Component(log, "events"))
	a.cards = cards.NewService(st, a.broker, log)
	a.coalescer = debounce.New(logger.Component(log, "debounce"))
	a.pipeline = ingest.New(a.coalescer, factory.NewSummarizer(cfg, log), a.cards, st.Mutes(), ingest.Config{
		Delay:            cfg.DebounceDelay(),
		HistoryLimit:     cfg.HistoryLimit,
		MaxConversations: cfg.HistoryConversations,
		OmitGroups:       cfg.OmitGroupMessages,
	}, log)

	a.queue = commands.NewQueue(cfg.CommandQueueSize)
	a.messenger = factory.NewMessenger(cfg, log)
	a.executor = commands.NewExecutor(a.queue, codec, a.cards, st.Mutes(), a.messenger, factory.NewCalendar(cfg, log),
		commands.Config{
			DedupeWindow: cfg.CalendarDedupeWindow(),
			OnMute:       a.pipeline.Cancel,
		}, log)

	a.router = api.NewRouter(api.Deps{
		Cards:     a.cards,
		Broker:    a.broker,
		Codec:     codec,
		Commands:  a.queue,
		Mutes:     st.Mutes(),
		Ingest:    a.pipeline,
		Health:    a.health,
		KeepAlive: cfg.StreamKeepalive(),
		Log:       log,
	})
	return a, nil
}

// startExecutor runs the command executor until ctx ends or the queue closes.
func (a *app) startExecutor(ctx context.Context) {
	a.executorDone = make(chan struct{})
	go func() {
		defer close(a.executorDone)
		if err := a.executor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Stack().Err(err).Msg("command executor exited")
		}
	}()
}

// close stops intake before the components it feeds. Queued commands are
// drained by the executor before the store is closed.
func (a *app) close() {
	a.queue.Close()
	if a.executorDone != nil {
		select {
		case <-a.executorDone:
		case <-time.After(executorDrainTimeout):
			a.log.Warn().Dur("timeout", executorDrainTimeout).Msg("command executor still running at shutdown")
		}
	}
	a.coalescer.Close()
	a.broker.Close()
	if err := a.closer.Close(); err != nil {
		a.log.Error().Err(err).Msg("failed to close store")
	}
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, a *app) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := healthInterval(cfg)

	storeChecker := store.NewStoreHealthChecker(a.store, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	msgChecker := messaging.NewHealthChecker(a.messenger, log, probeTimeout)
	go msgChecker.Start(ctx, interval)
	checkers = append(checkers, msgChecker)

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func healthInterval(cfg *config.Config) time.Duration {
	if cfg.HealthIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(cfg.HealthIntervalSeconds) * time.Second
}

// lateHealth lets the router be built before the health checkers start.
type lateHealth struct {
	svc atomic.Pointer[health.ServiceHealthChecker]
}

func (l *lateHealth) set(svc *health.ServiceHealthChecker) { l.svc.Store(svc) }

func (l *lateHealth) IsHealthy() bool {
	svc := l.svc.Load()
	return svc != nil && svc.IsHealthy()
}

func (l *lateHealth) Components() map[string]bool {
	svc := l.svc.Load()
	if svc == nil {
		return map[string]bool{}
	}
	return svc.Components()
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// stream handlers clear their own write deadline
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var _ api.ServiceHealth = (*lateHealth)(nil)
