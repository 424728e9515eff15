// Package watch reports debounced file changes below a directory tree.
package watch

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeType mirrors the LSP FileChangeType values.
type ChangeType int

const (
	Created ChangeType = 1
	Changed ChangeType = 2
	Deleted ChangeType = 3
)

// Event is one file change after debouncing.
type Event struct {
	Path string
	Type ChangeType
}

// DefaultDebounce is how long the watcher waits for a burst of writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watcher watches a directory tree recursively. Hidden directories are skipped.
type Watcher struct {
	root     string
	match    func(path string) bool
	onChange func([]Event)
	logger   *log.Logger

	Debounce time.Duration

	mu      sync.Mutex
	pending map[string]ChangeType
	timer   *time.Timer
}

// New returns a watcher calling onChange with the changes of files accepted by
// match. A nil match accepts every file.
func New(root string, match func(path string) bool, onChange func([]Event), logger *log.Logger) *Watcher {
	if match == nil {
		match = func(string) bool { return true }
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		root:     root,
		match:    match,
		onChange: onChange,
		logger:   logger,
		Debounce: DefaultDebounce,
		pending:  make(map[string]ChangeType),
	}
}

// Run watches until ctx ends. It fails if the root cannot be watched.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("[go-journal] watch %s: %v", w.root, err)
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				w.logger.Printf("[go-journal] watch %s: %v", event.Name, err)
			}
			return
		}
	}

	if !w.match(event.Name) {
		return
	}

	var change ChangeType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		change = Created
	case event.Op&fsnotify.Write == fsnotify.Write:
		change = Changed
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		change = Deleted
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// A create followed by writes is still a create.
	if prev, ok := w.pending[event.Name]; !ok || prev != Created || change == Deleted {
		w.pending[event.Name] = change
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	events := make([]Event, 0, len(w.pending))
	for path, change := range w.pending {
		events = append(events, Event{Path: path, Type: change})
	}
	w.pending = make(map[string]ChangeType)
	w.timer = nil
	w.mu.Unlock()

	if len(events) == 0 {
		return
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	w.onChange(events)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// MatchBase accepts files whose base name matches one of the glob patterns.
// A leading "**/" is ignored, so "**/.clientrc" matches .clientrc anywhere.
func MatchBase(patterns ...string) func(string) bool {
	return func(path string) bool {
		name := filepath.Base(path)
		for _, pattern := range patterns {
			pattern = strings.TrimPrefix(pattern, "**/")
			if ok, _ := filepath.Match(pattern, name); ok {
				return true
			}
		}
		return false
	}
}
