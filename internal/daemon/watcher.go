package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// AccountsWatcher watches the accounts file for edits so the daemon can hot
// reload credentials without a restart. fsnotify watches the parent
// directory: editors that replace the file via rename would otherwise drop
// the watch.
type AccountsWatcher struct {
	watcher *fsnotify.Watcher
	path    string

	events chan struct{}
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewAccountsWatcher creates a watcher for the accounts file at path.
// The watcher must be started with Start() before it will emit events.
func NewAccountsWatcher(path string) (*AccountsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve accounts path: %w", err)
	}

	return &AccountsWatcher{
		watcher: watcher,
		path:    abs,
		events:  make(chan struct{}, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the accounts file's directory.
func (aw *AccountsWatcher) Start() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if aw.running {
		return fmt.Errorf("watcher already running")
	}
	dir := filepath.Dir(aw.path)
	if err := aw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch accounts directory %s: %w", dir, err)
	}

	aw.running = true
	aw.wg.Add(1)
	go aw.processEvents()
	return nil
}

// Stop stops watching and blocks until the event loop has exited. On a
// watcher that never started it still releases the fsnotify handle.
func (aw *AccountsWatcher) Stop() error {
	aw.mu.Lock()
	if !aw.running {
		aw.mu.Unlock()
		return aw.watcher.Close()
	}
	aw.running = false
	aw.mu.Unlock()

	close(aw.done)
	if err := aw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	aw.wg.Wait()

	close(aw.events)
	close(aw.errors)
	return nil
}

// Events returns the channel that fires once per accounts-file change.
// It is closed when the watcher is stopped.
func (aw *AccountsWatcher) Events() <-chan struct{} {
	return aw.events
}

// Errors returns the channel that emits watcher errors.
func (aw *AccountsWatcher) Errors() <-chan error {
	return aw.errors
}

// IsRunning reports whether the watcher is active.
func (aw *AccountsWatcher) IsRunning() bool {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.running
}

func (aw *AccountsWatcher) processEvents() {
	defer aw.wg.Done()

	for {
		select {
		case <-aw.done:
			return

		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if !aw.matches(event) {
				continue
			}
			select {
			case aw.events <- struct{}{}:
			case <-aw.done:
				return
			}

		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case aw.errors <- err:
			case <-aw.done:
				return
			}
		}
	}
}

// matches filters directory events down to writes touching the accounts
// file itself.
func (aw *AccountsWatcher) matches(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != aw.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}
