package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/steveyegge/ffs/internal/event"
)

// fsnotifyLinksRenames is true where fsnotify attaches the old path to the
// create half of a rename.
const fsnotifyLinksRenames = runtime.GOOS == "linux" || runtime.GOOS == "windows"

// FSNotify watches a tree with fsnotify. fsnotify watches are not recursive,
// so every directory under the root gets its own watch, and directories that
// appear later are added as their create events arrive.
type FSNotify struct {
	options Options
}

// NewFSNotify creates an fsnotify-backed source.
func NewFSNotify(options Options) *FSNotify {
	return &FSNotify{options: options.withDefaults()}
}

// Watch implements Source.
func (s *FSNotify) Watch(ctx context.Context, root string, handler Handler) error {
	if err := checkRoot(root); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &SetupError{Op: "create watcher", Path: root, Err: err}
	}
	defer watcher.Close()

	tree := &dirTree{
		watcher: watcher,
		logger:  s.options.Logger,
		dirs:    make(map[string]struct{}),
	}
	if err := watcher.Add(root); err != nil {
		return &SetupError{Op: "watch", Path: root, Err: err}
	}
	tree.dirs[root] = struct{}{}
	tree.addBelow(root)

	s.options.Logger.WithFields(logrus.Fields{
		"root":    root,
		"backend": BackendFSNotify,
		"dirs":    len(tree.dirs),
	}).Debug("Watch established")
	s.options.ready()

	c := newCorrelator(s.options.RenameWindow, fsnotifyLinksRenames, handler)
	for {
		select {
		case <-ctx.Done():
			c.flush()
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				c.flush()
				return nil
			}
			if raw, ok := tree.decode(ev); ok {
				c.add(raw)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				c.flush()
				return nil
			}
			c.fail(err)

		case <-c.expired():
			c.flush()
		}
	}
}

// dirTree tracks the directories currently watched.
type dirTree struct {
	watcher *fsnotify.Watcher
	logger  logrus.FieldLogger
	dirs    map[string]struct{}
}

// addBelow watches every directory under root, not including root itself.
// Directories that cannot be watched are logged and skipped.
func (t *dirTree) addBelow(root string) {
	for _, dir := range collectDirs(root) {
		if _, ok := t.dirs[dir]; ok {
			continue
		}
		if err := t.watcher.Add(dir); err != nil {
			t.logger.WithField("path", dir).Warnf("Cannot watch directory: %v", err)
			continue
		}
		t.dirs[dir] = struct{}{}
	}
}

func (t *dirTree) add(dir string) {
	if _, ok := t.dirs[dir]; !ok {
		if err := t.watcher.Add(dir); err != nil {
			t.logger.WithField("path", dir).Warnf("Cannot watch directory: %v", err)
			return
		}
		t.dirs[dir] = struct{}{}
	}
	t.addBelow(dir)
}

// forget drops dir and everything below it. fsnotify removes the kernel
// watch on its own when a watched directory goes away.
func (t *dirTree) forget(dir string) bool {
	_, ok := t.dirs[dir]
	if !ok {
		return false
	}
	prefix := dir + string(filepath.Separator)
	for path := range t.dirs {
		if path == dir || strings.HasPrefix(path, prefix) {
			delete(t.dirs, path)
		}
	}
	return true
}

// decode converts an fsnotify event. Ops are checked in the order create,
// write, remove, rename, chmod, so combined ops map to the first match.
func (t *dirTree) decode(ev fsnotify.Event) (rawEvent, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		entry := statEntry(ev.Name)
		if entry == event.EntryFolder {
			t.add(ev.Name)
		}
		return rawEvent{op: opCreate, path: ev.Name, entry: entry, from: renamedFrom(ev)}, true

	case ev.Has(fsnotify.Write):
		return rawEvent{op: opWrite, path: ev.Name}, true

	case ev.Has(fsnotify.Remove):
		entry := event.EntryAny
		if t.forget(ev.Name) {
			entry = event.EntryFolder
		}
		return rawEvent{op: opRemove, path: ev.Name, entry: entry}, true

	case ev.Has(fsnotify.Rename):
		t.forget(ev.Name)
		return rawEvent{op: opRename, path: ev.Name}, true

	case ev.Has(fsnotify.Chmod):
		return rawEvent{op: opChmod, path: ev.Name}, true

	default:
		return rawEvent{}, false
	}
}

// renamedFrom returns the old path of a create that completes a rename, or
// "". fsnotify keeps it unexported and only shows it in String, as
// `<op> "<name>" ← "<from>"`.
func renamedFrom(ev fsnotify.Event) string {
	prefix := fmt.Sprintf("%-13s %q ← ", ev.Op.String(), ev.Name)
	s := ev.String()
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	from, err := strconv.Unquote(s[len(prefix):])
	if err != nil {
		return ""
	}
	return from
}

func collectDirs(root string) []string {
	dirs := []string{}
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() || path == root {
			return nil
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}

// statEntry reports what path is right now. A path that is already gone
// reports EntryAny.
func statEntry(path string) event.EntryKind {
	info, err := os.Lstat(path)
	if err != nil {
		return event.EntryAny
	}
	switch mode := info.Mode(); {
	case mode.IsDir():
		return event.EntryFolder
	case mode.IsRegular():
		return event.EntryFile
	default:
		return event.EntryOther
	}
}
