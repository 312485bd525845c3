package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AnomalyReplay/internal/handler/ws"
	mid "AnomalyReplay/internal/middleware"
	"AnomalyReplay/internal/service/ratelimit"
	"AnomalyReplay/internal/usecase"
	"AnomalyReplay/pkg/config"
	xhttp "AnomalyReplay/pkg/http"
	pkgkafka "AnomalyReplay/pkg/kafka"
	applogger "AnomalyReplay/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	driver     *usecase.Driver
	pipeline   *mid.ViewPipeline
	hub        *ws.Hub
	consumer   *pkgkafka.Consumer
	httpServer *xhttp.Server
	limiter    *ratelimit.Limiter
}

// New creates a new App instance with all dependencies. consumer may be nil
// when Kafka control is disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	driver *usecase.Driver,
	pipeline *mid.ViewPipeline,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
	limiter *ratelimit.Limiter,
) *App {
	return &App{
		cfg:        cfg,
		log:        log.Component("app"),
		driver:     driver,
		pipeline:   pipeline,
		hub:        hub,
		consumer:   consumer,
		httpServer: httpServer,
		limiter:    limiter,
	}
}

// Run starts the pipeline, the playback loop, the control consumer and the
// HTTP server, then blocks until ctx is done, a termination signal arrives
// or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()

	a.pipeline.Start(loopCtx)
	driverDone := make(chan error, 1)
	go func() { driverDone <- a.driver.Run(loopCtx) }()

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			cancelLoop()
			<-driverDone
			a.pipeline.Stop()
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.shutdown(cancelLoop, driverDone)
		return err
	}
	go a.pruneLimiter(loopCtx)

	a.log.Info("replay started",
		applogger.String("dataset", a.cfg.Dataset.Path),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("sinks", a.pipeline.Sinks()),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-a.httpServer.Err():
		runErr = err
	case err := <-driverDone:
		// Run only returns early on a programming error; keep the exit visible
		runErr = fmt.Errorf("playback loop exited: %v", err)
		driverDone <- err
	}

	a.shutdown(cancelLoop, driverDone)
	return runErr
}

// shutdown stops intake first (Kafka, HTTP), then the playback loop, which
// persists the cursor, then the sinks.
func (a *App) shutdown(cancelLoop context.CancelFunc, driverDone <-chan error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	cancelLoop()
	select {
	case <-driverDone:
	case <-ctx.Done():
		a.log.Warn("playback loop did not stop in time")
	}
	a.pipeline.Stop()
	a.hub.Close()
	a.log.Info("shutdown complete")
}

func (a *App) pruneLimiter(ctx context.Context) {
	if a.limiter == nil {
		return
	}
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Prune(10 * time.Minute); n > 0 {
				a.log.Debug("rate limiter pruned", applogger.Int("buckets", n))
			}
		}
	}
}
