package notify

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Socket Waiter
// ///////////////////////////////////////////////

// socketWaiter sleeps between connection attempts and wakes early when the
// socket file appears. Without fsnotify it degrades to a plain timer.
type socketWaiter struct {
	// name is the socket file's base name.
	name string
	// fsw watches the socket's directory; nil when polling.
	fsw *fsnotify.Watcher
}

// newSocketWaiter watches the directory containing path. Errors fall back to
// timer-only waiting.
func newSocketWaiter(path string) *socketWaiter {
	w := &socketWaiter{name: filepath.Base(path)}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("fsnotify unavailable, polling for socket", "error", err)
		return w
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		slog.Debug("cannot watch socket directory, polling", "dir", dir, "error", err)
		fsw.Close()
		return w
	}
	w.fsw = fsw
	return w
}

// Polling reports whether the waiter is timer-only.
func (w *socketWaiter) Polling() bool {
	return w.fsw == nil
}

// Wait blocks for d, or until the socket file is created. It reports whether
// it woke early.
func (w *socketWaiter) Wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	if w.fsw == nil {
		<-timer.C
		return false
	}

	for {
		select {
		case <-timer.C:
			return false
		case event, ok := <-w.fsw.Events:
			if !ok {
				<-timer.C
				return false
			}
			if event.Has(fsnotify.Create) && filepath.Base(event.Name) == w.name {
				return true
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				<-timer.C
				return false
			}
			slog.Debug("fsnotify error while waiting for socket, polling", "error", err)
			w.fsw.Close()
			w.fsw = nil
			<-timer.C
			return false
		}
	}
}

// Close releases the directory watch.
func (w *socketWaiter) Close() {
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
}
