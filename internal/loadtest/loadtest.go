// Package loadtest floods the dispatch pipeline with synthetic notifications
// and reports how it keeps up.
//
// The run goes through the real queue, limiter, dispatcher and processor.
// Only the event source and the per-path work are simulated, so the numbers
// reflect dispatch overhead plus the configured per-path latency.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/steveyegge/ffs/internal/dispatch"
	"github.com/steveyegge/ffs/internal/event"
	"github.com/steveyegge/ffs/internal/limiter"
	"github.com/steveyegge/ffs/internal/process"
)

// Options configure a load run. Zero values pick the defaults noted per field.
type Options struct {
	// Notifications to send (default 1000).
	Notifications int `json:"notifications"`
	// PathsPerNotification (default 1).
	PathsPerNotification int `json:"paths_per_notification"`
	// Latency is the simulated work per path (default none).
	Latency time.Duration `json:"latency_ns"`
	// QueueCapacity (default dispatch.DefaultQueueCapacity).
	QueueCapacity int `json:"queue_capacity"`
	// MaxParallel is the permit count (default runtime.NumCPU()).
	MaxParallel int `json:"max_parallel"`
	// Logger receives the pipeline's logs. Defaults to discarding them, since
	// every notification logs at info level.
	Logger logrus.FieldLogger `json:"-"`
}

func (o Options) withDefaults() Options {
	if o.Notifications < 1 {
		o.Notifications = 1000
	}
	if o.PathsPerNotification < 1 {
		o.PathsPerNotification = 1
	}
	if o.QueueCapacity < 1 {
		o.QueueCapacity = dispatch.DefaultQueueCapacity
	}
	if o.MaxParallel < 1 {
		o.MaxParallel = runtime.NumCPU()
	}
	if o.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		o.Logger = logger
	}
	return o
}

// LatencyStats captures end-to-end notification latency, from creation to
// the last of its paths finishing.
type LatencyStats struct {
	Min       time.Duration   `json:"min_ns"`
	Max       time.Duration   `json:"max_ns"`
	Mean      time.Duration   `json:"mean_ns"`
	P50       time.Duration   `json:"p50_ns"` // Median
	P95       time.Duration   `json:"p95_ns"`
	P99       time.Duration   `json:"p99_ns"`
	Count     int             `json:"count"`
	Durations []time.Duration `json:"-"`
}

// Result is the outcome of a load run.
type Result struct {
	Options     Options        `json:"options"`
	Elapsed     time.Duration  `json:"elapsed_ns"`
	Throughput  float64        `json:"throughput"` // notifications per second
	Latency     *LatencyStats  `json:"latency"`
	PermitsPeak int            `json:"permits_peak"`
	Dispatch    dispatch.Stats `json:"dispatch"`
	Process     process.Stats  `json:"process"`
}

// timingProcessor records how long each notification took to complete.
type timingProcessor struct {
	next dispatch.Processor

	mu        sync.Mutex
	durations []time.Duration
}

func (p *timingProcessor) Process(n event.Notification) {
	p.next.Process(n)
	elapsed := time.Since(n.Observed)

	p.mu.Lock()
	p.durations = append(p.durations, elapsed)
	p.mu.Unlock()
}

// kinds rotates the synthetic notifications through the classified kinds.
var kinds = []event.Kind{
	event.Create{Entry: event.EntryFile},
	event.Modify{Change: event.ModifyData{}},
	event.Modify{Change: event.ModifyMetadata{}},
	event.Remove{Entry: event.EntryFile},
}

// Run sends opts.Notifications notifications as fast as the queue accepts
// them, then waits for all of them to be processed. If ctx is cancelled the
// producer stops early, the already queued notifications still drain, and
// ctx's error is returned with the partial result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	var worker process.PathWorker = process.PathWorkerFunc(func(string) error { return nil })
	if opts.Latency > 0 {
		latency := opts.Latency
		worker = process.PathWorkerFunc(func(string) error {
			time.Sleep(latency)
			return nil
		})
	}

	queue := dispatch.NewQueue(opts.QueueCapacity)
	lim := limiter.New(opts.MaxParallel)
	proc := process.New(process.Config{Worker: worker, Logger: opts.Logger})
	timing := &timingProcessor{next: proc}

	dispatcher, err := dispatch.New(dispatch.Config{
		Queue:     queue,
		Limiter:   lim,
		Processor: timing,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dispatcher.Run(context.Background())
	}()

	start := time.Now()
	var sendErr error
	for i := 0; i < opts.Notifications; i++ {
		paths := make([]string, opts.PathsPerNotification)
		for j := range paths {
			paths[j] = fmt.Sprintf("/bench/n%d/p%d", i, j)
		}
		n := event.New(kinds[i%len(kinds)], paths...)
		if sendErr = queue.Push(ctx, event.Ok(n)); sendErr != nil {
			break
		}
	}
	queue.Close()
	<-done
	elapsed := time.Since(start)

	result := &Result{
		Options:     opts,
		Elapsed:     elapsed,
		Latency:     computeLatencyStats(timing.durations),
		PermitsPeak: lim.HighWater(),
		Dispatch:    dispatcher.Stats(),
		Process:     proc.Stats(),
	}
	if elapsed > 0 {
		result.Throughput = float64(result.Dispatch.Dispatched) / elapsed.Seconds()
	}
	return result, sendErr
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      sum / time.Duration(len(sorted)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Count:     len(sorted),
		Durations: sorted,
	}
}

// Print writes a human-readable report.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Load Test Results:\n")
	fmt.Fprintf(w, "  Notifications:  %d (%d paths each)\n", r.Dispatch.Dispatched, r.Options.PathsPerNotification)
	fmt.Fprintf(w, "  Path latency:   %v\n", r.Options.Latency)
	fmt.Fprintf(w, "  Elapsed:        %v\n", r.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "  Throughput:     %.0f notifications/s\n", r.Throughput)
	fmt.Fprintf(w, "  Permits:        %d peak of %d\n", r.PermitsPeak, r.Options.MaxParallel)
	fmt.Fprintf(w, "  Path failures:  %d\n", r.Process.PathFailures)
	r.Latency.Print(w)
}

// Print writes the latency percentiles.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Count:         %d\n", s.Count)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
