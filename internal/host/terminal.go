package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// TerminalWindow implements Window for a command line session.
type TerminalWindow struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	// Editor is the command files are opened with ("vim", "code -w").
	// Empty prints the path instead.
	Editor string
	// Active is the document commands that need an editor work on.
	Active *TextEditor

	// run starts the editor; replaced in tests.
	run func(name string, args ...string) error

	mu    sync.Mutex
	trees map[string]TreeDataProvider
	shown int
}

func NewTerminalWindow(in io.Reader, out, errOut io.Writer) *TerminalWindow {
	return &TerminalWindow{
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
		run:    runAttached,
		trees:  make(map[string]TreeDataProvider),
	}
}

func runAttached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (w *TerminalWindow) ShowErrorMessage(_ context.Context, message string) error {
	w.mu.Lock()
	w.shown++
	w.mu.Unlock()
	_, err := fmt.Fprintln(w.errOut, "error: "+message)
	return err
}

// ErrorCount returns how many error messages were shown.
func (w *TerminalWindow) ErrorCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shown
}

func (w *TerminalWindow) ShowInformationMessage(_ context.Context, message string) error {
	_, err := fmt.Fprintln(w.out, message)
	return err
}

func (w *TerminalWindow) ShowInputBox(_ context.Context, opts InputOptions) (string, error) {
	prompt := opts.Prompt
	if opts.Placeholder != "" {
		prompt += " (" + opts.Placeholder + ")"
	}
	fmt.Fprint(w.errOut, prompt+": ")
	return w.readLine()
}

func (w *TerminalWindow) readLine() (string, error) {
	line, err := w.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrInputCancelled
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (w *TerminalWindow) ShowQuickPick(_ context.Context, items []string) (string, error) {
	if len(items) == 0 {
		return "", ErrInputCancelled
	}
	for i, item := range items {
		fmt.Fprintf(w.errOut, "%d. %s\n", i+1, item)
	}
	fmt.Fprint(w.errOut, "Select: ")
	answer, err := w.readLine()
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n < 1 || n > len(items) {
		return "", ErrInputCancelled
	}
	return items[n-1], nil
}

func (w *TerminalWindow) OpenTextDocument(_ context.Context, path string, line int) error {
	if w.Editor == "" {
		if line > 0 {
			path += ":" + strconv.Itoa(line)
		}
		_, err := fmt.Fprintln(w.out, path)
		return err
	}
	fields := strings.Fields(w.Editor)
	args := append([]string(nil), fields[1:]...)
	if line > 0 {
		args = append(args, "+"+strconv.Itoa(line))
	}
	args = append(args, path)
	return w.run(fields[0], args...)
}

func (w *TerminalWindow) OpenFolder(ctx context.Context, path string) error {
	return w.OpenTextDocument(ctx, path, 0)
}

// ActiveTextEditor returns Active, reading its text from disk when it was
// not given.
func (w *TerminalWindow) ActiveTextEditor(context.Context) (*TextEditor, error) {
	if w.Active == nil {
		return nil, ErrNoActiveEditor
	}
	e := *w.Active
	if e.Text == "" {
		data, err := os.ReadFile(uri.URI(e.URI).Filename())
		if err != nil {
			return nil, err
		}
		e.Text = string(data)
	}
	return &e, nil
}

func (w *TerminalWindow) ApplyEdit(_ context.Context, edit protocol.WorkspaceEdit) (bool, error) {
	if err := ApplyWorkspaceEditToDisk(edit); err != nil {
		return false, err
	}
	return true, nil
}

func (w *TerminalWindow) RegisterTreeDataProvider(viewID string, provider TreeDataProvider) (Disposable, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.trees[viewID]; exists {
		return nil, fmt.Errorf("tree view %s already registered", viewID)
	}
	w.trees[viewID] = provider
	return DisposableFunc(func() error {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.trees, viewID)
		return nil
	}), nil
}

// PrintTree writes a registered tree as an indented list.
func (w *TerminalWindow) PrintTree(ctx context.Context, viewID string) error {
	w.mu.Lock()
	provider, ok := w.trees[viewID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("no tree view %s", viewID)
	}

	lines, err := Flatten(ctx, provider)
	if err != nil {
		return err
	}
	for _, l := range lines {
		text := strings.Repeat("  ", l.Depth) + l.Item.Label
		if l.Item.Description != "" {
			text += " (" + l.Item.Description + ")"
		}
		if l.Depth > 0 && l.Item.File != "" {
			text += fmt.Sprintf("  %s:%d", l.Item.File, l.Item.Line)
		}
		if _, err := fmt.Fprintln(w.out, text); err != nil {
			return err
		}
	}
	return nil
}

var _ Window = (*TerminalWindow)(nil)
