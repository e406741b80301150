package watch

import (
	"context"
	"path/filepath"

	"github.com/rjeczalik/notify"
	"github.com/sirupsen/logrus"

	"github.com/steveyegge/ffs/internal/event"
)

// notifyBuffer is the capacity of the channel handed to notify. notify never
// blocks on a full channel, it drops the event instead.
const notifyBuffer = 100

// Notify watches a tree with rjeczalik/notify, which registers recursive
// watches natively where the platform supports it.
type Notify struct {
	options Options
}

// NewNotify creates a notify-backed source.
func NewNotify(options Options) *Notify {
	return &Notify{options: options.withDefaults()}
}

// Watch implements Source.
func (s *Notify) Watch(ctx context.Context, root string, handler Handler) error {
	if err := checkRoot(root); err != nil {
		return err
	}

	infos := make(chan notify.EventInfo, notifyBuffer)
	if err := notify.Watch(filepath.Join(root, "..."), infos, notify.All); err != nil {
		return &SetupError{Op: "watch", Path: root, Err: err}
	}
	defer notify.Stop(infos)

	s.options.Logger.WithFields(logrus.Fields{
		"root":    root,
		"backend": BackendNotify,
	}).Debug("Watch established")
	s.options.ready()

	c := newCorrelator(s.options.RenameWindow, notifyLinksRenames, handler)
	for {
		select {
		case <-ctx.Done():
			c.flush()
			return nil

		case info := <-infos:
			if raw, ok := decodeNotify(info); ok {
				c.add(raw)
			}

		case <-c.expired():
			c.flush()
		}
	}
}

// decodeNotify converts a notify event. notify reports a move into the tree
// as Create and a move out of it as Rename. The two halves of one move can
// arrive in either order and share a cookie where the platform has one.
func decodeNotify(info notify.EventInfo) (rawEvent, bool) {
	path := info.Path()
	switch e := info.Event(); {
	case e&notify.Create != 0:
		return rawEvent{op: opCreate, path: path, entry: statEntry(path), cookie: moveCookie(info)}, true
	case e&notify.Write != 0:
		return rawEvent{op: opWrite, path: path}, true
	case e&notify.Remove != 0:
		return rawEvent{op: opRemove, path: path, entry: event.EntryAny}, true
	case e&notify.Rename != 0:
		return rawEvent{op: opRename, path: path, cookie: moveCookie(info)}, true
	default:
		return rawEvent{}, false
	}
}
