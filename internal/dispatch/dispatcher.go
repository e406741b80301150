// Package dispatch moves results from the event queue into bounded-parallel
// processing tasks.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"

	"github.com/steveyegge/ffs/internal/event"
	"github.com/steveyegge/ffs/internal/limiter"
	"github.com/steveyegge/ffs/internal/logging"
)

// State is what the dispatch loop is doing.
type State int32

const (
	// StateIdle means the dispatcher is waiting on the queue.
	StateIdle State = iota
	// StateDispatching means a notification was popped and is waiting for
	// a permit or being spawned.
	StateDispatching
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Processor handles one notification. Process must return only once all work
// for the notification is finished.
type Processor interface {
	Process(n event.Notification)
}

// Config holds the collaborators of a Dispatcher.
type Config struct {
	Queue     *Queue
	Limiter   *limiter.Limiter
	Processor Processor
	// Logger defaults to the process logger.
	Logger logrus.FieldLogger
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	State        string `json:"state"`
	Received     uint64 `json:"received"`
	Dispatched   uint64 `json:"dispatched"`
	SourceErrors uint64 `json:"source_errors"`
	Invalid      uint64 `json:"invalid"`
	TaskFailures uint64 `json:"task_failures"`
	InFlight     int64  `json:"in_flight"`
	Permits      int    `json:"permits"`
	MaxPermits   int    `json:"max_permits"`
	PermitsPeak  int    `json:"permits_peak"`
	Queued       int    `json:"queued"`
	QueueCap     int    `json:"queue_cap"`
}

// Dispatcher drains a Queue and runs each notification in its own goroutine,
// holding a limiter permit for the lifetime of that goroutine.
type Dispatcher struct {
	queue     *Queue
	limiter   *limiter.Limiter
	processor Processor
	logger    logrus.FieldLogger

	state    atomic.Int32
	inflight sync.WaitGroup
	active   atomic.Int64

	received     atomic.Uint64
	dispatched   atomic.Uint64
	sourceErrors atomic.Uint64
	invalid      atomic.Uint64
	taskFailures atomic.Uint64
}

// New creates a Dispatcher.
func New(config Config) (*Dispatcher, error) {
	if config.Queue == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if config.Limiter == nil {
		return nil, errors.New("limiter cannot be nil")
	}
	if config.Processor == nil {
		return nil, errors.New("processor cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Log()
	}
	return &Dispatcher{
		queue:     config.Queue,
		limiter:   config.Limiter,
		processor: config.Processor,
		logger:    logger,
	}, nil
}

// Run dispatches until the queue reports end-of-stream or ctx is done, then
// waits for every spawned task to finish. Started tasks are never cancelled.
//
// Run returns nil after end-of-stream and ctx's error after cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.state.Store(int32(StateIdle))

	for {
		d.state.Store(int32(StateIdle))

		result, ok := d.queue.Pop(ctx)
		if !ok {
			break
		}
		d.received.Add(1)

		if result.Err != nil {
			d.sourceErrors.Add(1)
			d.logger.Errorf("Error: %v", result.Err)
			continue
		}

		n := result.Notification
		if err := n.Validate(); err != nil {
			d.invalid.Add(1)
			d.logger.Warnf("Dropping notification: %v", err)
			continue
		}

		d.state.Store(int32(StateDispatching))
		permit, err := d.limiter.Acquire(ctx)
		if err != nil {
			d.logger.WithField("event_id", n.ID).Debugf("Dropping notification while stopping: %s", n)
			break
		}
		d.spawn(n, permit)
	}

	d.logger.Debug("Dispatcher waiting for in-flight tasks")
	d.inflight.Wait()

	return ctx.Err()
}

func (d *Dispatcher) spawn(n event.Notification, permit *limiter.Permit) {
	d.dispatched.Add(1)
	d.active.Add(1)
	d.inflight.Add(1)

	go func() {
		defer d.inflight.Done()
		defer d.active.Add(-1)
		defer permit.Release()

		if recovered := panics.Try(func() { d.processor.Process(n) }); recovered != nil {
			d.taskFailures.Add(1)
			d.logger.WithField("event_id", n.ID).Errorf("Task failed: %v", recovered.Value)
		}
	}()
}

// State reports what the dispatch loop is doing.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		State:        d.State().String(),
		Received:     d.received.Load(),
		Dispatched:   d.dispatched.Load(),
		SourceErrors: d.sourceErrors.Load(),
		Invalid:      d.invalid.Load(),
		TaskFailures: d.taskFailures.Load(),
		InFlight:     d.active.Load(),
		Permits:      d.limiter.Outstanding(),
		MaxPermits:   d.limiter.Capacity(),
		PermitsPeak:  d.limiter.HighWater(),
		Queued:       d.queue.Len(),
		QueueCap:     d.queue.Cap(),
	}
}
