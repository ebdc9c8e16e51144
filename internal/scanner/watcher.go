package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler receives the settled file events of a Watcher. Paths are
// absolute.
type Handler interface {
	Changed(path string)
	Removed(path string)
}

// Watcher reports changes of matching files below a root. Events of one
// path are coalesced until it has been quiet for the debounce interval.
type Watcher struct {
	root     string
	match    MatchFunc
	handler  Handler
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup // event loop and armed timer callbacks

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher watches root and every non-hidden directory below it.
func NewWatcher(root string, match MatchFunc, debounce time.Duration, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		match:    match,
		handler:  handler,
		debounce: debounce,
		watcher:  fsw,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if isHidden(path, w.root) {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logger.Warningf("failed to watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warningf("watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if isHidden(event.Name, w.root) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logger.Warningf("failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || !w.match(filepath.ToSlash(rel)) {
		return
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.schedule(event.Name)
	}
}

// schedule (re)arms the debounce timer of path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.settle(path)
	})
	w.pending[path] = timer
}

// settle reports the state of path once its events have stopped.
func (w *Watcher) settle(path string) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		w.handler.Changed(path)
	case errors.Is(err, fs.ErrNotExist):
		w.handler.Removed(path)
	default:
		logger.Warningf("stat %s: %v", path, err)
	}
}

// Close stops watching. Pending events are dropped and a handler call
// already in progress is waited for.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)

	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
