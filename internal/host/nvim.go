package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/neovim/go-client/nvim"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Notification methods user commands send back to the plugin channel.
const (
	NvimCommandMethod = "journal_command"
	NvimViewMethod    = "journal_view"
)

// vim.log.levels
const (
	nvimLevelInfo  = 2
	nvimLevelError = 4
)

// inputCancelled is what input() returns when the prompt is dismissed.
const inputCancelled = "\x1b"

const luaCreateUserCommand = `
local cmd, chan, method, arg = ...
vim.api.nvim_create_user_command(cmd, function()
  vim.rpcnotify(chan, method, arg)
end, { force = true, desc = arg })
`

const luaDeleteUserCommand = `pcall(vim.api.nvim_del_user_command, ...)`

const luaNotify = `
local msg, level = ...
vim.schedule(function() vim.notify(msg, level, { title = "go-journal" }) end)
`

const luaOpen = `
local path, line = ...
vim.cmd.edit(vim.fn.fnameescape(path))
if line > 0 then
  pcall(vim.api.nvim_win_set_cursor, 0, { line, 0 })
  vim.cmd("normal! zz")
end
`

const luaQuickfix = `
local title, items, open = ...
if open then
  vim.fn.setqflist({}, " ", { title = title, items = items })
  vim.cmd("copen")
elseif vim.fn.getqflist({ title = 0 }).title == title then
  vim.fn.setqflist({}, "r", { title = title, items = items })
end
`

// NvimUserCommand turns a command identifier into a user command name:
// journal.completeTask becomes JournalCompleteTask.
func NvimUserCommand(name string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	}) {
		r, size := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(part[size:])
	}
	return b.String()
}

// NvimBinder exposes registered commands as Neovim user commands that
// notify the plugin channel.
type NvimBinder struct {
	v *nvim.Nvim
}

func NewNvimBinder(v *nvim.Nvim) *NvimBinder {
	return &NvimBinder{v: v}
}

func (b *NvimBinder) Bind(name string) error {
	return b.v.ExecLua(luaCreateUserCommand, nil, NvimUserCommand(name), b.v.ChannelID(), NvimCommandMethod, name)
}

func (b *NvimBinder) Unbind(name string) error {
	return b.v.ExecLua(luaDeleteUserCommand, nil, NvimUserCommand(name))
}

// NvimWindow implements Window on a Neovim connection.
type NvimWindow struct {
	v *nvim.Nvim

	mu    sync.Mutex
	views map[string]TreeDataProvider
}

func NewNvimWindow(v *nvim.Nvim) *NvimWindow {
	return &NvimWindow{v: v, views: make(map[string]TreeDataProvider)}
}

func (w *NvimWindow) ShowErrorMessage(_ context.Context, message string) error {
	return w.v.ExecLua(luaNotify, nil, message, nvimLevelError)
}

func (w *NvimWindow) ShowInformationMessage(_ context.Context, message string) error {
	return w.v.ExecLua(luaNotify, nil, message, nvimLevelInfo)
}

func (w *NvimWindow) ShowInputBox(_ context.Context, opts InputOptions) (string, error) {
	prompt := opts.Prompt
	if opts.Placeholder != "" {
		prompt += " (" + opts.Placeholder + ")"
	}
	var answer string
	err := w.v.Call("input", &answer, map[string]interface{}{
		"prompt":       prompt + ": ",
		"default":      opts.Value,
		"cancelreturn": inputCancelled,
	})
	if err != nil {
		return "", err
	}
	if answer == inputCancelled {
		return "", ErrInputCancelled
	}
	return answer, nil
}

func (w *NvimWindow) ShowQuickPick(_ context.Context, items []string) (string, error) {
	if len(items) == 0 {
		return "", ErrInputCancelled
	}
	var choice int
	if err := w.v.Call("inputlist", &choice, quickPickLines(items)); err != nil {
		return "", err
	}
	if choice < 1 || choice > len(items) {
		return "", ErrInputCancelled
	}
	return items[choice-1], nil
}

func quickPickLines(items []string) []string {
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, "Select:")
	for i, item := range items {
		lines = append(lines, strconv.Itoa(i+1)+". "+item)
	}
	return lines
}

func (w *NvimWindow) OpenTextDocument(_ context.Context, path string, line int) error {
	return w.v.ExecLua(luaOpen, nil, path, line)
}

func (w *NvimWindow) OpenFolder(_ context.Context, path string) error {
	return w.v.ExecLua(luaOpen, nil, path, 0)
}

func (w *NvimWindow) ActiveTextEditor(context.Context) (*TextEditor, error) {
	buf, err := w.v.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	name, err := w.v.BufferName(buf)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrNoActiveEditor
	}

	lines, err := w.v.BufferLines(buf, 0, -1, true)
	if err != nil {
		return nil, err
	}

	var filetype string
	if err := w.v.Eval("&filetype", &filetype); err != nil {
		return nil, err
	}

	win, err := w.v.CurrentWindow()
	if err != nil {
		return nil, err
	}
	cursor, err := w.v.WindowCursor(win)
	if err != nil {
		return nil, err
	}

	var word string
	if err := w.v.Eval(`expand("<cWORD>")`, &word); err != nil {
		return nil, err
	}

	row := cursor[0] - 1
	var character uint32
	if row >= 0 && row < len(lines) {
		character = utf16Column(string(lines[row]), cursor[1])
	}

	text := make([]string, len(lines))
	for i, l := range lines {
		text[i] = string(l)
	}

	return &TextEditor{
		URI:        string(uri.File(name)),
		LanguageID: filetype,
		Text:       strings.Join(text, "\n") + "\n",
		Cursor:     protocol.Position{Line: uint32(max(row, 0)), Character: character},
		Selection:  word,
	}, nil
}

// ApplyEdit changes loaded buffers in place and everything else on disk.
func (w *NvimWindow) ApplyEdit(_ context.Context, edit protocol.WorkspaceEdit) (bool, error) {
	onDisk := protocol.WorkspaceEdit{Changes: make(map[uri.URI][]protocol.TextEdit)}
	for u, edits := range edit.Changes {
		buf, ok, err := w.loadedBuffer(uri.URI(u).Filename())
		if err != nil {
			return false, err
		}
		if !ok {
			onDisk.Changes[u] = edits
			continue
		}
		if err := w.applyToBuffer(buf, edits); err != nil {
			return false, err
		}
	}
	if len(onDisk.Changes) > 0 {
		if err := ApplyWorkspaceEditToDisk(onDisk); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (w *NvimWindow) loadedBuffer(path string) (nvim.Buffer, bool, error) {
	var n int
	if err := w.v.Call("bufnr", &n, path); err != nil {
		return 0, false, err
	}
	if n <= 0 {
		return 0, false, nil
	}
	var loaded int
	if err := w.v.Call("bufloaded", &loaded, n); err != nil {
		return 0, false, err
	}
	return nvim.Buffer(n), loaded == 1, nil
}

func (w *NvimWindow) applyToBuffer(buf nvim.Buffer, edits []protocol.TextEdit) error {
	raw, err := w.v.BufferLines(buf, 0, -1, true)
	if err != nil {
		return err
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}

	for _, e := range sortedEdits(edits) {
		start, err := byteColumn(lines, e.Range.Start)
		if err != nil {
			return err
		}
		end, err := byteColumn(lines, e.Range.End)
		if err != nil {
			return err
		}
		replacement := [][]byte{}
		for _, l := range strings.Split(e.NewText, "\n") {
			replacement = append(replacement, []byte(l))
		}
		if err := w.v.SetBufferText(buf, int(e.Range.Start.Line), start, int(e.Range.End.Line), end, replacement); err != nil {
			return err
		}
	}
	return nil
}

// sortedEdits orders edits from the end of the document so earlier
// positions stay valid while applying.
func sortedEdits(edits []protocol.TextEdit) []protocol.TextEdit {
	out := append([]protocol.TextEdit(nil), edits...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Range.Start, out[j].Range.Start
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		return a.Character > b.Character
	})
	return out
}

// byteColumn converts the UTF-16 column of pos to a byte column in its line.
func byteColumn(lines []string, pos protocol.Position) (int, error) {
	if int(pos.Line) > len(lines) {
		return 0, fmt.Errorf("line %d out of range", pos.Line)
	}
	if int(pos.Line) == len(lines) {
		return 0, nil
	}
	return PositionOffset(lines[pos.Line], protocol.Position{Character: pos.Character})
}

// utf16Column converts a byte column in line to UTF-16 code units.
func utf16Column(line string, byteCol int) uint32 {
	if byteCol > len(line) {
		byteCol = len(line)
	}
	var units uint32
	for _, r := range line[:byteCol] {
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return units
}

// RegisterTreeDataProvider exposes the tree as a user command that fills
// the quickfix list. An open quickfix list is refreshed when the tree changes.
func (w *NvimWindow) RegisterTreeDataProvider(viewID string, provider TreeDataProvider) (Disposable, error) {
	w.mu.Lock()
	if _, exists := w.views[viewID]; exists {
		w.mu.Unlock()
		return nil, fmt.Errorf("tree view %s already registered", viewID)
	}
	w.views[viewID] = provider
	w.mu.Unlock()

	cmd := NvimUserCommand(viewID)
	if err := w.v.ExecLua(luaCreateUserCommand, nil, cmd, w.v.ChannelID(), NvimViewMethod, viewID); err != nil {
		w.forget(viewID)
		return nil, err
	}

	sub := provider.OnDidChange(func() {
		_ = w.fillQuickfix(context.Background(), viewID, provider, false)
	})

	return DisposableFunc(func() error {
		_ = sub.Dispose()
		w.forget(viewID)
		return w.v.ExecLua(luaDeleteUserCommand, nil, cmd)
	}), nil
}

func (w *NvimWindow) forget(viewID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.views, viewID)
}

// ShowTree fills the quickfix list from a registered tree and opens it.
func (w *NvimWindow) ShowTree(ctx context.Context, viewID string) error {
	w.mu.Lock()
	provider, ok := w.views[viewID]
	w.mu.Unlock()
	if !ok {
		return errors.New("no tree view " + viewID)
	}
	return w.fillQuickfix(ctx, viewID, provider, true)
}

func (w *NvimWindow) fillQuickfix(ctx context.Context, viewID string, provider TreeDataProvider, open bool) error {
	lines, err := Flatten(ctx, provider)
	if err != nil {
		return err
	}
	return w.v.ExecLua(luaQuickfix, nil, viewID, quickfixItems(lines), open)
}

func quickfixItems(lines []TreeLine) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(lines))
	for _, l := range lines {
		text := strings.Repeat("  ", l.Depth) + l.Item.Label
		if l.Item.Description != "" {
			text += " · " + l.Item.Description
		}
		item := map[string]interface{}{"text": text}
		if l.Item.File != "" {
			item["filename"] = l.Item.File
			item["lnum"] = max(l.Item.Line, 1)
		} else {
			item["valid"] = 0
		}
		items = append(items, item)
	}
	return items
}

var (
	_ Window = (*NvimWindow)(nil)
	_ Binder = (*NvimBinder)(nil)
)
