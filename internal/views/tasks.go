// Package views provides the tree views of the journal.
package views

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-journal/internal/host"
	"go-journal/internal/journal"
	"go-journal/internal/markdown"
	"go-journal/internal/watch"
)

// scanWorkers bounds how many files are parsed at once.
const scanWorkers = 8

// FileTasks are the open tasks of one journal file.
type FileTasks struct {
	Path  string
	Label string
	Tasks []markdown.Task
}

// TasksView lists the open tasks found below the journal base directory.
type TasksView struct {
	base     string
	parser   *markdown.Parser
	logger   *log.Logger
	debounce time.Duration

	mu    sync.RWMutex
	files []FileTasks

	listenersMu sync.Mutex
	listeners   map[int]func()
	nextID      int
}

var _ host.TreeDataProvider = (*TasksView)(nil)

// NewTasksView returns a view over base. Nothing is read before Init.
func NewTasksView(base string, logger *log.Logger) *TasksView {
	if logger == nil {
		logger = log.Default()
	}
	return &TasksView{
		base:      base,
		parser:    markdown.NewParser(),
		logger:    logger,
		debounce:  watch.DefaultDebounce,
		listeners: make(map[int]func()),
	}
}

// Init performs the first scan. A missing base directory yields an empty view.
func (v *TasksView) Init(ctx context.Context) error {
	files, err := v.scan(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.files = files
	v.mu.Unlock()
	return nil
}

// Refresh rescans and notifies listeners.
func (v *TasksView) Refresh(ctx context.Context) error {
	if err := v.Init(ctx); err != nil {
		return err
	}
	v.notify()
	return nil
}

// Files returns a snapshot of the scanned files, newest first.
func (v *TasksView) Files() []FileTasks {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]FileTasks, len(v.files))
	copy(out, v.files)
	return out
}

// Children returns one item per file at the root and the open tasks below a file.
func (v *TasksView) Children(_ context.Context, parent *host.TreeItem) ([]*host.TreeItem, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if parent == nil {
		items := make([]*host.TreeItem, 0, len(v.files))
		for _, f := range v.files {
			items = append(items, &host.TreeItem{
				ID:          f.Path,
				Label:       f.Label,
				Description: openCount(len(f.Tasks)),
				File:        f.Path,
				Collapsible: true,
			})
		}
		return items, nil
	}

	if parent.Line != 0 {
		return nil, nil
	}
	for _, f := range v.files {
		if f.Path != parent.File {
			continue
		}
		items := make([]*host.TreeItem, 0, len(f.Tasks))
		for _, task := range f.Tasks {
			items = append(items, &host.TreeItem{
				ID:     f.Path + "#" + strconv.Itoa(task.Line),
				Label:  task.Text,
				File:   f.Path,
				Line:   task.Line,
				Detail: task.Detail,
			})
		}
		return items, nil
	}
	return nil, nil
}

// OnDidChange registers listener to run after every refresh.
func (v *TasksView) OnDidChange(listener func()) host.Disposable {
	v.listenersMu.Lock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = listener
	v.listenersMu.Unlock()

	return host.DisposableFunc(func() error {
		v.listenersMu.Lock()
		delete(v.listeners, id)
		v.listenersMu.Unlock()
		return nil
	})
}

// Watch refreshes the view whenever journal files change, until ctx ends.
func (v *TasksView) Watch(ctx context.Context) error {
	if v.base == "" {
		return nil
	}
	if _, err := os.Stat(v.base); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	w := watch.New(v.base, isJournalFile, func([]watch.Event) {
		if err := v.Refresh(ctx); err != nil {
			v.logger.Printf("[go-journal] refresh tasks: %v", err)
		}
	}, v.logger)
	w.Debounce = v.debounce
	return w.Run(ctx)
}

func (v *TasksView) notify() {
	v.listenersMu.Lock()
	listeners := make([]func(), 0, len(v.listeners))
	for _, l := range v.listeners {
		listeners = append(listeners, l)
	}
	v.listenersMu.Unlock()

	for _, l := range listeners {
		l()
	}
}

func (v *TasksView) scan(ctx context.Context) ([]FileTasks, error) {
	if v.base == "" {
		return nil, nil
	}

	info, err := os.Stat(v.base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan tasks: %s is not a directory", v.base)
	}

	var paths []string
	err = filepath.WalkDir(v.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != v.base && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if isJournalFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}

	results := make([]FileTasks, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			source, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("scan tasks: %w", err)
			}
			results[i] = FileTasks{
				Path:  path,
				Label: v.label(path),
				Tasks: openTasks(v.tasksOf(path, source)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := results[:0]
	for _, f := range results {
		if len(f.Tasks) > 0 {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path > files[j].Path })
	return files, nil
}

func (v *TasksView) tasksOf(path string, source []byte) []markdown.Task {
	if markdown.IsAsciidoc(path) {
		return markdown.AsciidocTasks(source)
	}
	return v.parser.Tasks(source)
}

// label is the entry date for day entries and the relative path otherwise.
func (v *TasksView) label(path string) string {
	rel, err := filepath.Rel(v.base, path)
	if err != nil {
		return path
	}
	rel = filepath.ToSlash(rel)
	if date, ok := journal.DateFromPath(v.base, path); ok && strings.Count(rel, "/") == 2 {
		return date.Format("2006-01-02")
	}
	return rel
}

func openTasks(tasks []markdown.Task) []markdown.Task {
	var open []markdown.Task
	for _, t := range tasks {
		if !t.Done {
			open = append(open, t)
		}
	}
	return open
}

func openCount(n int) string {
	if n == 1 {
		return "1 open task"
	}
	return strconv.Itoa(n) + " open tasks"
}

func isJournalFile(path string) bool {
	return markdown.IsMarkdown(path) || markdown.IsAsciidoc(path)
}
