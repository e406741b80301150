package watch

import (
	"github.com/rjeczalik/notify"
	"golang.org/x/sys/unix"
)

// notifyLinksRenames is true where moveCookie can link the halves of a move.
const notifyLinksRenames = true

// moveCookie returns the inotify cookie shared by IN_MOVED_FROM and
// IN_MOVED_TO, or 0 for any other event.
func moveCookie(info notify.EventInfo) uint32 {
	sys, ok := info.Sys().(*unix.InotifyEvent)
	if !ok || sys.Mask&(unix.IN_MOVED_FROM|unix.IN_MOVED_TO) == 0 {
		return 0
	}
	return sys.Cookie
}
