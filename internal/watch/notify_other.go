//go:build !linux

package watch

import "github.com/rjeczalik/notify"

const notifyLinksRenames = false

func moveCookie(notify.EventInfo) uint32 {
	return 0
}
