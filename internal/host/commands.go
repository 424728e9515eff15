package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicateCommand is returned when a command name is registered twice.
	ErrDuplicateCommand = errors.New("command already registered")
	// ErrUnknownCommand is returned when executing a name nobody registered.
	ErrUnknownCommand = errors.New("command not found")
)

// CommandFunc is the body of a registered command.
type CommandFunc func(ctx context.Context, args ...interface{}) error

// TextEditorCommandFunc is a command that needs the active text editor.
type TextEditorCommandFunc func(ctx context.Context, editor *TextEditor) error

// Binder exposes registered commands to the user (user commands, CLI verbs).
type Binder interface {
	Bind(name string) error
	Unbind(name string) error
}

// CommandRegistry maps command names to their implementation.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]CommandFunc
	binder   Binder
	window   Window
}

// NewCommandRegistry creates a registry. binder may be nil; window is used by
// text editor commands to find the active editor.
func NewCommandRegistry(binder Binder, window Window) *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]CommandFunc),
		binder:   binder,
		window:   window,
	}
}

// RegisterCommand adds a command. The returned Disposable removes it again.
func (r *CommandRegistry) RegisterCommand(name string, fn CommandFunc) (Disposable, error) {
	if name == "" {
		return nil, errors.New("command name must not be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("command %s has no handler", name)
	}

	r.mu.Lock()
	if _, exists := r.commands[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	r.commands[name] = fn
	r.mu.Unlock()

	if r.binder != nil {
		if err := r.binder.Bind(name); err != nil {
			r.remove(name)
			return nil, fmt.Errorf("failed to bind command %s: %w", name, err)
		}
	}

	return DisposableFunc(func() error {
		if !r.remove(name) || r.binder == nil {
			return nil
		}
		return r.binder.Unbind(name)
	}), nil
}

// RegisterTextEditorCommand adds a command that runs against the active editor.
func (r *CommandRegistry) RegisterTextEditorCommand(name string, fn TextEditorCommandFunc) (Disposable, error) {
	if fn == nil {
		return nil, fmt.Errorf("command %s has no handler", name)
	}
	return r.RegisterCommand(name, func(ctx context.Context, _ ...interface{}) error {
		if r.window == nil {
			return fmt.Errorf("%s: no window", name)
		}
		editor, err := r.window.ActiveTextEditor(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fn(ctx, editor)
	})
}

// ExecuteCommand runs a registered command.
func (r *CommandRegistry) ExecuteCommand(ctx context.Context, name string, args ...interface{}) error {
	r.mu.RLock()
	fn, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return fn(ctx, args...)
}

// Has reports whether name is registered.
func (r *CommandRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// Names returns the registered command names, sorted.
func (r *CommandRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *CommandRegistry) remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[name]; !ok {
		return false
	}
	delete(r.commands, name)
	return true
}
