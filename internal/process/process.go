// Package process runs the work for a single notification: it logs the
// classifier's actions and fans out one task per affected path.
package process

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/steveyegge/ffs/internal/event"
	"github.com/steveyegge/ffs/internal/logging"
)

// PathWorker performs the blocking work for one path. Implementations must
// not depend on sibling paths of the same notification.
type PathWorker interface {
	ProcessPath(path string) error
}

// PathWorkerFunc adapts a function to PathWorker.
type PathWorkerFunc func(path string) error

// ProcessPath calls f(path).
func (f PathWorkerFunc) ProcessPath(path string) error {
	return f(path)
}

// Observer is told about the actions of every processed notification.
type Observer interface {
	OnActions(n event.Notification, actions []event.Action)
}

// Config holds the collaborators of a Processor.
type Config struct {
	// Worker handles each path. Defaults to StubWorker.
	Worker PathWorker
	// Observer is optional.
	Observer Observer
	// Logger defaults to the process logger.
	Logger logrus.FieldLogger
}

// Stats is a snapshot of processor counters.
type Stats struct {
	Notifications uint64 `json:"notifications"`
	Actions       uint64 `json:"actions"`
	Paths         uint64 `json:"paths"`
	PathFailures  uint64 `json:"path_failures"`
}

// Processor processes notifications. It is safe for concurrent use.
type Processor struct {
	worker   PathWorker
	observer Observer
	logger   logrus.FieldLogger

	notifications atomic.Uint64
	actions       atomic.Uint64
	paths         atomic.Uint64
	pathFailures  atomic.Uint64
}

// New creates a Processor.
func New(config Config) *Processor {
	logger := config.Logger
	if logger == nil {
		logger = logging.Log()
	}
	worker := config.Worker
	if worker == nil {
		worker = StubWorker{Logger: logger}
	}
	return &Processor{
		worker:   worker,
		observer: config.Observer,
		logger:   logger,
	}
}

// Process logs the notification's actions, then runs one task per path and
// waits for all of them. Per-path work runs even when classification logged
// nothing. A failing path is logged and does not affect its siblings.
func (p *Processor) Process(n event.Notification) {
	p.notifications.Add(1)

	actions := event.Classify(n)
	for _, action := range actions {
		p.logger.Info(action.String())
	}
	p.actions.Add(uint64(len(actions)))

	if p.observer != nil && len(actions) > 0 {
		p.observer.OnActions(n, actions)
	}

	var wg conc.WaitGroup
	for _, path := range n.Paths {
		wg.Go(func() {
			p.processPath(n, path)
		})
	}
	wg.Wait()
}

func (p *Processor) processPath(n event.Notification, path string) {
	var err error
	if recovered := panics.Try(func() { err = p.worker.ProcessPath(path) }); recovered != nil {
		err = fmt.Errorf("panic: %v", recovered.Value)
		p.logger.WithFields(logrus.Fields{
			"event_id": n.ID,
			"path":     path,
		}).Debugf("Panic stack:\n%s", recovered.Stack)
	}

	p.paths.Add(1)
	if err != nil {
		p.pathFailures.Add(1)
		p.logger.WithFields(logrus.Fields{
			"event_id": n.ID,
			"path":     path,
		}).Errorf("Task failed: %v", err)
	}
}

// Stats returns current counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Notifications: p.notifications.Load(),
		Actions:       p.actions.Load(),
		Paths:         p.paths.Load(),
		PathFailures:  p.pathFailures.Load(),
	}
}

// StubWorker is the placeholder path worker. It only logs.
type StubWorker struct {
	Logger logrus.FieldLogger
}

// ProcessPath logs the path and runs one nested parallel unit for it.
func (w StubWorker) ProcessPath(path string) error {
	logger := w.Logger
	if logger == nil {
		logger = logging.Log()
	}
	logger.Debugf("Processing file: %s", path)

	var wg conc.WaitGroup
	wg.Go(func() {
		logger.WithField("path", path).Tracef("Parallel processing for: %s", path)
	})
	wg.Wait()
	return nil
}
