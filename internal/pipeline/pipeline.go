// Package pipeline wires an event source, the event queue, the dispatcher
// and the processor into one running watch.
//
// Shutdown is driven by a single context. Cancelling it stops the source,
// which removes its watch and closes the queue behind it. The dispatcher then
// drains whatever is still queued, waits for every spawned task and Run
// returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/steveyegge/ffs/internal/config"
	"github.com/steveyegge/ffs/internal/dashboard"
	"github.com/steveyegge/ffs/internal/dispatch"
	"github.com/steveyegge/ffs/internal/event"
	"github.com/steveyegge/ffs/internal/limiter"
	"github.com/steveyegge/ffs/internal/logging"
	"github.com/steveyegge/ffs/internal/process"
	"github.com/steveyegge/ffs/internal/watch"
)

// StatsInterval is how often the dashboard receives a stats message.
const StatsInterval = time.Second

// Config holds everything a Pipeline needs.
type Config struct {
	// Root is the directory to watch recursively.
	Root string

	// Settings defaults to config.Default().
	Settings *config.Config

	// Worker handles each path. Defaults to process.StubWorker.
	Worker process.PathWorker

	// Source overrides the backend named in Settings.
	Source watch.Source

	// Logger defaults to the process logger.
	Logger logrus.FieldLogger
}

// Stats is a snapshot of the whole pipeline.
type Stats struct {
	Root     string         `json:"root"`
	Dispatch dispatch.Stats `json:"dispatch"`
	Process  process.Stats  `json:"process"`
}

// Pipeline is a configured watch. It runs once.
type Pipeline struct {
	root   string
	logger logrus.FieldLogger

	source     watch.Source
	queue      *dispatch.Queue
	limiter    *limiter.Limiter
	processor  *process.Processor
	dispatcher *dispatch.Dispatcher

	dashboard *dashboard.Server
	observer  *dashboard.Handler

	// drain is the dispatcher's context. It outlives Run's ctx so queued
	// notifications are still processed during shutdown.
	drain context.Context

	ready     chan struct{}
	readyOnce sync.Once
}

// New builds a pipeline without starting it.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Root == "" {
		return nil, errors.New("root cannot be empty")
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Log()
	}

	p := &Pipeline{
		root:   filepath.Clean(cfg.Root),
		logger: logger,
		drain:  context.Background(),
		ready:  make(chan struct{}),
	}

	p.source = cfg.Source
	if p.source == nil {
		source, err := watch.New(settings.Watch.Backend, watch.Options{
			RenameWindow: settings.Watch.RenameWindow,
			Logger:       logger,
			OnReady:      p.markReady,
		})
		if err != nil {
			return nil, err
		}
		p.source = source
	}

	processorConfig := process.Config{Worker: cfg.Worker, Logger: logger}
	if addr := settings.Dashboard.Addr; addr != "" {
		p.dashboard = dashboard.NewServer(dashboard.Config{
			Addr:   addr,
			Stats:  func() any { return p.Stats() },
			Logger: logger,
		})
		p.observer = dashboard.NewHandler(p.dashboard, nil, logger)
		processorConfig.Observer = p.observer
	}

	p.queue = dispatch.NewQueue(settings.Queue.Capacity)
	p.limiter = limiter.New(settings.Dispatch.MaxParallel)
	p.processor = process.New(processorConfig)

	dispatcher, err := dispatch.New(dispatch.Config{
		Queue:     p.queue,
		Limiter:   p.limiter,
		Processor: p.processor,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	p.dispatcher = dispatcher

	return p, nil
}

// Watch builds a pipeline from cfg and runs it until ctx is cancelled.
func Watch(ctx context.Context, cfg Config) error {
	p, err := New(cfg)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

// Run watches until ctx is cancelled or the source fails to start. It
// returns nil after a clean shutdown, the source's *watch.SetupError if the
// watch could not be established, or the dispatcher's error if it stopped
// before end-of-stream.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.dashboard != nil {
		if err := p.dashboard.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := p.dashboard.Stop(); err != nil {
				p.logger.Warnf("Dashboard stop: %v", err)
			}
		}()

		statsCtx, stopStats := context.WithCancel(context.Background())
		defer stopStats()
		go p.observer.RunStats(statsCtx, StatsInterval)
	}

	p.logger.Infof("Watching %s", p.root)

	sourceDone := make(chan error, 1)
	go func() {
		defer p.queue.Close()
		sourceDone <- p.source.Watch(ctx, p.root, func(r event.Result) {
			p.send(ctx, r)
		})
	}()

	// The dispatcher normally exits only at end-of-stream, so everything the
	// source queued before it stopped is still processed.
	dispatchErr := p.dispatcher.Run(p.drain)
	if dispatchErr != nil {
		p.logger.Errorf("Dispatcher stopped early: %v", dispatchErr)
	}

	if err := <-sourceDone; err != nil {
		return err
	}
	if dispatchErr != nil {
		return fmt.Errorf("dispatcher: %w", dispatchErr)
	}
	p.logger.Debug("Pipeline stopped")
	return nil
}

func (p *Pipeline) send(ctx context.Context, r event.Result) {
	if err := p.queue.Push(ctx, r); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.logger.Debugf("Discarding event during shutdown: %v", err)
			return
		}
		p.logger.Errorf("Failed to send event: %v", err)
	}
}

func (p *Pipeline) markReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}

// Ready is closed once the built-in source has attached its watch. It is
// never closed when Config.Source was supplied.
func (p *Pipeline) Ready() <-chan struct{} {
	return p.ready
}

// DashboardAddr reports the dashboard's listening address, or "" when the
// dashboard is disabled.
func (p *Pipeline) DashboardAddr() string {
	if p.dashboard == nil {
		return ""
	}
	return p.dashboard.Addr()
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Root:     p.root,
		Dispatch: p.dispatcher.Stats(),
		Process:  p.processor.Stats(),
	}
}
