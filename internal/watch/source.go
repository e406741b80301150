// Package watch adapts native filesystem watch facilities into a stream of
// event.Result values.
//
// A Source watches a root recursively and calls a handler for every change
// until its context is cancelled. The handler runs on the source's own
// goroutine; a handler that blocks (for example on a full queue) stalls the
// source, and the kernel may drop events if that lasts long enough. Those
// drops surface as error results.
//
// Both backends correlate renames: the two halves of a move within the tree
// become a single notification of kind Modify{ModifyName{RenameBoth}}
// carrying [old, new]. Halves are linked by the old path fsnotify records or
// by the inotify move cookie. Where the backend offers neither, a rename
// followed by a create of another path inside the window is taken as one.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/steveyegge/ffs/internal/event"
	"github.com/steveyegge/ffs/internal/logging"
)

// Backend names.
const (
	BackendFSNotify = "fsnotify"
	BackendNotify   = "notify"
)

// DefaultRenameWindow is how long one half of a rename waits for the other.
const DefaultRenameWindow = 50 * time.Millisecond

// ErrNotDirectory is wrapped by SetupError when the root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Handler receives every result a source produces.
type Handler func(event.Result)

// Source is a recursive filesystem watch.
type Source interface {
	// Watch monitors root until ctx is done, calling handler for each change.
	// It returns a *SetupError if the watch cannot be established and nil
	// after ctx is cancelled and the watch has been removed.
	Watch(ctx context.Context, root string, handler Handler) error
}

// Options configure a Source.
type Options struct {
	// RenameWindow bounds how long a rename waits for its create. Zero uses
	// DefaultRenameWindow; a negative value disables correlation.
	RenameWindow time.Duration
	// Logger defaults to the process logger.
	Logger logrus.FieldLogger
	// OnReady, if set, is called once the watch is attached.
	OnReady func()
}

func (o Options) withDefaults() Options {
	if o.RenameWindow == 0 {
		o.RenameWindow = DefaultRenameWindow
	}
	if o.Logger == nil {
		o.Logger = logging.Log()
	}
	return o
}

func (o Options) ready() {
	if o.OnReady != nil {
		o.OnReady()
	}
}

// New returns the source for a backend name.
func New(backend string, options Options) (Source, error) {
	switch backend {
	case "", BackendFSNotify:
		return NewFSNotify(options), nil
	case BackendNotify:
		return NewNotify(options), nil
	default:
		return nil, fmt.Errorf("unknown watch backend %q", backend)
	}
}

// SetupError reports a failure to establish a watch. It is fatal; sources do
// not retry.
type SetupError struct {
	Op   string
	Path string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("watch setup: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// checkRoot verifies root exists and is a directory.
func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return &SetupError{Op: "stat", Path: root, Err: err}
	}
	if !info.IsDir() {
		return &SetupError{Op: "stat", Path: root, Err: ErrNotDirectory}
	}
	return nil
}
