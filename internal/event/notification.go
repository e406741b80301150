// Package event defines filesystem change notifications and the classifier
// that turns them into log actions.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoPaths is returned by Validate for a notification without paths.
var ErrNoPaths = errors.New("notification has no paths")

// Notification is one reported filesystem change.
type Notification struct {
	// ID correlates log lines produced while processing the notification.
	ID string
	// Kind is what happened.
	Kind Kind
	// Paths are the affected paths in source order. A correlated rename
	// carries the old path followed by the new path.
	Paths []string
	// Observed is when the event source reported the change.
	Observed time.Time
}

// New creates a notification with a fresh ID.
func New(kind Kind, paths ...string) Notification {
	return Notification{
		ID:       uuid.NewString(),
		Kind:     kind,
		Paths:    paths,
		Observed: time.Now(),
	}
}

// Rename creates a correlated rename notification.
func Rename(from, to string) Notification {
	return New(Modify{Change: ModifyName{Mode: RenameBoth}}, from, to)
}

// Validate checks the invariants every notification must hold.
func (n Notification) Validate() error {
	if n.Kind == nil {
		return fmt.Errorf("notification %s: kind is nil", n.ID)
	}
	if len(n.Paths) == 0 {
		return fmt.Errorf("notification %s: %w", n.ID, ErrNoPaths)
	}
	return nil
}

// String returns a compact description used in debug logs.
func (n Notification) String() string {
	kind := "<nil>"
	if n.Kind != nil {
		kind = n.Kind.String()
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(n.Paths, ", "))
}

// Result is what an event source hands to its handler: a notification, or
// the error the source hit instead of producing one.
type Result struct {
	Notification Notification
	Err          error
}

// Ok wraps a notification.
func Ok(n Notification) Result {
	return Result{Notification: n}
}

// Failed wraps a source error.
func Failed(err error) Result {
	return Result{Err: err}
}
