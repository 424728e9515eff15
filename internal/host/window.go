package host

import (
	"context"
	"errors"

	"go.lsp.dev/protocol"
)

// ErrNoActiveEditor is returned when a command needs a document and none is open.
var ErrNoActiveEditor = errors.New("no active text editor")

// ErrInputCancelled is returned by prompts the user dismissed.
var ErrInputCancelled = errors.New("input cancelled")

// TextEditor is a snapshot of the document the user is looking at.
type TextEditor struct {
	URI        string
	LanguageID string
	Text       string
	// Cursor is the active selection end, zero based.
	Cursor protocol.Position
	// Selection is the selected text, or the word under the cursor.
	Selection string
}

// InputOptions configures ShowInputBox.
type InputOptions struct {
	Prompt      string
	Placeholder string
	Value       string
}

// Window is the part of the editor UI the journal talks to.
type Window interface {
	ShowErrorMessage(ctx context.Context, message string) error
	ShowInformationMessage(ctx context.Context, message string) error
	ShowInputBox(ctx context.Context, opts InputOptions) (string, error)
	ShowQuickPick(ctx context.Context, items []string) (string, error)

	// OpenTextDocument opens path in the editor, line is 1-based (0 keeps the cursor).
	OpenTextDocument(ctx context.Context, path string, line int) error
	// OpenFolder shows a directory, e.g. the journal root.
	OpenFolder(ctx context.Context, path string) error
	ActiveTextEditor(ctx context.Context) (*TextEditor, error)
	ApplyEdit(ctx context.Context, edit protocol.WorkspaceEdit) (bool, error)

	RegisterTreeDataProvider(viewID string, provider TreeDataProvider) (Disposable, error)
}
