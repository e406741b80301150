package watch

import (
	"time"

	"github.com/steveyegge/ffs/internal/event"
)

// rawOp is the backend-neutral operation a native event reports.
type rawOp int

const (
	opCreate rawOp = iota
	opWrite
	opChmod
	opRemove
	opRename
)

// String returns the lower-case operation name.
func (o rawOp) String() string {
	switch o {
	case opCreate:
		return "create"
	case opWrite:
		return "write"
	case opChmod:
		return "chmod"
	case opRemove:
		return "remove"
	case opRename:
		return "rename"
	default:
		return "unknown"
	}
}

// rawEvent is a single native event after backend decoding.
//
// A backend that knows which rename a create belongs to says so with from
// (the old path) or with cookie (an inotify move cookie, set on both halves).
type rawEvent struct {
	op     rawOp
	path   string
	entry  event.EntryKind
	from   string
	cookie uint32
}

// kind maps every non-rename op to its notification kind.
func (e rawEvent) kind() event.Kind {
	switch e.op {
	case opCreate:
		return event.Create{Entry: e.entry}
	case opWrite:
		return event.Modify{Change: event.ModifyData{}}
	case opChmod:
		return event.Modify{Change: event.ModifyMetadata{}}
	case opRemove:
		return event.Remove{Entry: e.entry}
	case opRename:
		return event.Modify{Change: event.ModifyName{Mode: event.RenameFrom}}
	default:
		return event.Other{}
	}
}

// correlator joins the two halves of a rename into one notification. It
// holds a rename, or a create carrying a move cookie, for up to window while
// it waits for the other half. Any event that does not complete the pair
// flushes the held one first, so source order is kept.
//
// In exact mode only halves the backend linked (by from or cookie) are
// joined. Otherwise a held rename pairs with the next create of a different
// path. It is owned by a single backend goroutine and is not safe for
// concurrent use.
type correlator struct {
	window time.Duration
	exact  bool
	emit   Handler

	held  *rawEvent
	timer *time.Timer
}

func newCorrelator(window time.Duration, exact bool, emit Handler) *correlator {
	return &correlator{window: window, exact: exact, emit: emit}
}

// expired fires when the held event's window closes. It is nil while nothing
// is held, so a select on it never wakes.
func (c *correlator) expired() <-chan time.Time {
	if c.held == nil {
		return nil
	}
	return c.timer.C
}

// add feeds one raw event through the correlator.
func (c *correlator) add(ev rawEvent) {
	if c.held != nil {
		if from, to, ok := c.pair(*c.held, ev); ok {
			c.clear()
			c.emit(event.Ok(event.Rename(from, to)))
			return
		}
		c.flush()
	}

	if c.window > 0 && holdable(ev) {
		c.held = &ev
		c.timer = time.NewTimer(c.window)
		return
	}

	c.emit(event.Ok(event.New(ev.kind(), ev.path)))
}

// holdable reports whether ev can be the first half of a rename.
func holdable(ev rawEvent) bool {
	return ev.op == opRename || (ev.op == opCreate && ev.cookie != 0)
}

// pair reports whether next completes held, and the old and new paths if so.
func (c *correlator) pair(held, next rawEvent) (from, to string, ok bool) {
	switch {
	case held.op == opRename && next.op == opCreate:
		from, to = held.path, next.path
	case held.op == opCreate && next.op == opRename:
		from, to = next.path, held.path
	default:
		return "", "", false
	}
	if from == to {
		return "", "", false
	}

	switch {
	case held.cookie != 0 || next.cookie != 0:
		ok = held.cookie == next.cookie
	case next.from != "":
		ok = next.from == from
	default:
		ok = !c.exact
	}
	return from, to, ok
}

// flush emits the held event alone: a rename as a half rename, a create as
// a plain create.
func (c *correlator) flush() {
	if c.held == nil {
		return
	}
	held := *c.held
	c.clear()
	c.emit(event.Ok(event.New(held.kind(), held.path)))
}

// fail flushes any held event and then emits err, keeping source order.
func (c *correlator) fail(err error) {
	c.flush()
	c.emit(event.Failed(err))
}

func (c *correlator) clear() {
	c.held = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
