// Package watch turns filesystem events in the watched folder into wake-ups
// for the polling monitor.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/bull/docsync/internal/extract"
)

// Notifier signals that something in a folder changed. Bursts of events are
// coalesced into a single pending signal; the receiver re-lists the folder
// itself, so no event detail is carried.
type Notifier struct {
	watcher *fsnotify.Watcher
	accept  func(name string) bool
	events  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// New starts watching dir. Only events on names accepted by accept (and not
// hidden or lock files) produce a signal; a nil accept admits every name.
func New(dir string, accept func(name string) bool, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	n := &Notifier{
		watcher: w,
		accept:  accept,
		events:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger.With("component", "watch"),
	}

	n.wg.Add(1)
	go n.loop()
	return n, nil
}

// Events returns the channel that receives a value after relevant changes.
func (n *Notifier) Events() <-chan struct{} {
	return n.events
}

// Close stops watching and waits for the event loop to exit.
func (n *Notifier) Close() error {
	select {
	case <-n.done:
		return nil
	default:
	}
	close(n.done)
	err := n.watcher.Close()
	n.wg.Wait()
	return err
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if !n.relevant(event) {
				continue
			}
			n.logger.Debug("Filesystem event", "path", event.Name, "op", event.Op.String())
			select {
			case n.events <- struct{}{}:
			default: // A signal is already pending
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (n *Notifier) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if extract.IsIgnoredName(name) {
		return false
	}
	return n.accept == nil || n.accept(name)
}
