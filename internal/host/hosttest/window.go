// Package hosttest provides an in-memory host.Window for tests.
package hosttest

import (
	"context"
	"fmt"
	"sync"

	"go-journal/internal/host"

	"go.lsp.dev/protocol"
)

// Opened records an OpenTextDocument call.
type Opened struct {
	Path string
	Line int
}

// Window records everything the extension shows and answers prompts from a queue.
type Window struct {
	mu sync.Mutex

	Errors  []string
	Infos   []string
	Opened  []Opened
	Folders []string
	Edits   []protocol.WorkspaceEdit
	Trees   map[string]host.TreeDataProvider

	Inputs    []string
	QuickPick string
	Editor    *host.TextEditor

	// RegisterTreeErr, when set, fails RegisterTreeDataProvider.
	RegisterTreeErr error
	// OpenErr, when set, fails OpenTextDocument.
	OpenErr error
}

// New returns an empty window.
func New() *Window {
	return &Window{Trees: make(map[string]host.TreeDataProvider)}
}

func (w *Window) ShowErrorMessage(_ context.Context, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Errors = append(w.Errors, message)
	return nil
}

func (w *Window) ShowInformationMessage(_ context.Context, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Infos = append(w.Infos, message)
	return nil
}

func (w *Window) ShowInputBox(_ context.Context, opts host.InputOptions) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.Inputs) == 0 {
		return "", host.ErrInputCancelled
	}
	in := w.Inputs[0]
	w.Inputs = w.Inputs[1:]
	return in, nil
}

func (w *Window) ShowQuickPick(_ context.Context, items []string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.QuickPick != "" {
		return w.QuickPick, nil
	}
	if len(items) == 0 {
		return "", host.ErrInputCancelled
	}
	return items[0], nil
}

func (w *Window) OpenTextDocument(_ context.Context, path string, line int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.OpenErr != nil {
		return w.OpenErr
	}
	w.Opened = append(w.Opened, Opened{Path: path, Line: line})
	return nil
}

func (w *Window) OpenFolder(_ context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Folders = append(w.Folders, path)
	return nil
}

func (w *Window) ActiveTextEditor(context.Context) (*host.TextEditor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Editor == nil {
		return nil, host.ErrNoActiveEditor
	}
	e := *w.Editor
	return &e, nil
}

func (w *Window) ApplyEdit(_ context.Context, edit protocol.WorkspaceEdit) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Edits = append(w.Edits, edit)
	return true, nil
}

func (w *Window) RegisterTreeDataProvider(viewID string, provider host.TreeDataProvider) (host.Disposable, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.RegisterTreeErr != nil {
		return nil, w.RegisterTreeErr
	}
	if _, exists := w.Trees[viewID]; exists {
		return nil, fmt.Errorf("tree view %s already registered", viewID)
	}
	w.Trees[viewID] = provider
	return host.DisposableFunc(func() error {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.Trees, viewID)
		return nil
	}), nil
}

// ErrorMessages returns a copy of the errors shown so far.
func (w *Window) ErrorMessages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.Errors...)
}

// InfoMessages returns a copy of the information messages shown so far.
func (w *Window) InfoMessages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.Infos...)
}

// OpenedDocuments returns a copy of the documents opened so far.
func (w *Window) OpenedDocuments() []Opened {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Opened(nil), w.Opened...)
}

// AppliedEdits returns a copy of the edits applied so far.
func (w *Window) AppliedEdits() []protocol.WorkspaceEdit {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]protocol.WorkspaceEdit(nil), w.Edits...)
}

// Tree returns the provider registered under viewID.
func (w *Window) Tree(viewID string) (host.TreeDataProvider, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.Trees[viewID]
	return p, ok
}

// SetEditor sets the active text editor.
func (w *Window) SetEditor(e *host.TextEditor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Editor = e
}

var _ host.Window = (*Window)(nil)
