package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	xhttp "FinSignal/pkg/http"
	applogger "FinSignal/pkg/logger"
)

// Runner is the periodic engine loop.
type Runner interface {
	Init(ctx context.Context) error
	Start(ctx context.Context, interval time.Duration, runNow bool)
}

// Closer is a resource released on shutdown, in registration order.
type Closer struct {
	Name  string
	Close func() error
}

// LoopConfig controls the engine loop.
type LoopConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// App encapsulates the entire application lifecycle.
type App struct {
	loop    LoopConfig
	l       *applogger.Logger
	runner  Runner
	http    *xhttp.Server
	closers []Closer
}

// New creates a new App instance with all dependencies.
func New(loop LoopConfig, l *applogger.Logger, runner Runner, httpServer *xhttp.Server, closers ...Closer) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{loop: loop, l: l, runner: runner, http: httpServer, closers: closers}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve restores state, starts the worker loop and the HTTP server, and
// shuts everything down once ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.runner.Init(ctx); err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runner.Start(loopCtx, a.loop.Interval, a.loop.RunOnStart)
	}()
	a.l.Info("worker started", applogger.Duration("interval", a.loop.Interval))

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("start http: %w", err)
		}
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	cancel()
	wg.Wait()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	if a.http != nil {
		if err := a.http.Stop(context.Background()); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
	return nil
}
