package langserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"go-journal/internal/config"
	"go-journal/internal/contracts"
	"go-journal/internal/rpc"
)

var wednesday = time.Date(2024, time.May, 15, 10, 30, 0, 0, time.UTC)

type harness struct {
	server *Server
	client *rpc.Conn
	served chan error

	mu      sync.Mutex
	edits   []protocol.ApplyWorkspaceEditParams
	refuse  bool
	notices []string
}

func (h *harness) handle(_ context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case contracts.MethodApplyEdit:
		var p protocol.ApplyWorkspaceEditParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.edits = append(h.edits, p)
		return protocol.ApplyWorkspaceEditResponse{Applied: !h.refuse}, nil
	case contracts.MethodShowMessage:
		h.mu.Lock()
		h.notices = append(h.notices, string(params))
		h.mu.Unlock()
		return nil, nil
	}
	return nil, rpc.NewError(rpc.CodeMethodNotFound, "method not found: %s", method)
}

func (h *harness) appliedEdits() []protocol.ApplyWorkspaceEditParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.ApplyWorkspaceEditParams(nil), h.edits...)
}

func startServer(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	h := &harness{
		server: New(nil, append([]Option{WithClock(func() time.Time { return wednesday })}, opts...)...),
		served: make(chan error, 1),
	}
	go func() { h.served <- h.server.Serve(ctx, c2sR, s2cW) }()

	h.client = rpc.NewConn(s2cR, c2sW, nil, h.handle, nil)
	go func() { _ = h.client.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = c2sW.Close()
		_ = s2cW.Close()
		_ = c2sR.Close()
		_ = s2cR.Close()
	})
	return h
}

func (h *harness) call(t *testing.T, method string, params, result interface{}) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.client.Call(ctx, method, params, result)
}

func (h *harness) open(t *testing.T, docURI, text string) {
	t.Helper()
	require.NoError(t, h.client.Notify(context.Background(), contracts.MethodDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri.URI(docURI),
			LanguageID: "markdown",
			Version:    1,
			Text:       text,
		},
	}))
}

func executeParams(t *testing.T, cmd contracts.ServerCommand) *protocol.ExecuteCommandParams {
	t.Helper()
	params, err := contracts.NewExecuteCommandParams(cmd)
	require.NoError(t, err)
	return params
}

func rpcCode(t *testing.T, err error) int {
	t.Helper()
	var rpcErr *rpc.Error
	require.True(t, errors.As(err, &rpcErr), "expected an rpc error, got %v", err)
	return rpcErr.Code
}

const entryURI = "file:///journal/2024/05/15.md"

const entryText = "# Wednesday\n\n- [ ] write report\n- [x] call Bob\nprose\n"

func TestInitializeAdvertisesCommands(t *testing.T) {
	h := startServer(t)

	var result protocol.InitializeResult
	require.NoError(t, h.call(t, contracts.MethodInitialize, protocol.InitializeParams{}, &result))

	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "journal-lsp", result.ServerInfo.Name)
	require.NotNil(t, result.Capabilities.ExecuteCommandProvider)
	assert.ElementsMatch(t,
		[]string{contracts.ServerCompleteTask, contracts.ServerReopenTask},
		result.Capabilities.ExecuteCommandProvider.Commands)
	require.NotNil(t, result.Capabilities.CompletionProvider)
	assert.Contains(t, result.Capabilities.CompletionProvider.TriggerCharacters, "@")
	assert.True(t, h.server.Status().Initialized)
}

func TestCompleteTaskSendsApplyEdit(t *testing.T) {
	h := startServer(t)
	h.open(t, entryURI, entryText)

	cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: entryURI, Pos: protocol.Position{Line: 2, Character: 7}}}
	var applied bool
	require.NoError(t, h.call(t, contracts.MethodExecute, executeParams(t, cmd), &applied))
	assert.True(t, applied)

	edits := h.appliedEdits()
	require.Len(t, edits, 1)
	assert.Equal(t, "Complete task", edits[0].Label)

	changes := edits[0].Edit.Changes[uri.URI(entryURI)]
	require.Len(t, changes, 1)
	assert.Equal(t, "x", changes[0].NewText)
	assert.Equal(t, protocol.Position{Line: 2, Character: 3}, changes[0].Range.Start)
	assert.Equal(t, protocol.Position{Line: 2, Character: 4}, changes[0].Range.End)
}

func TestRefusedEditReportsFalse(t *testing.T) {
	h := startServer(t)
	h.refuse = true
	h.open(t, entryURI, entryText)

	cmd := contracts.ReopenTask{TaskPosition: contracts.TaskPosition{File: entryURI, Pos: protocol.Position{Line: 3}}}
	applied := true
	require.NoError(t, h.call(t, contracts.MethodExecute, executeParams(t, cmd), &applied))
	assert.False(t, applied)
}

func TestCompleteTaskRejectsNonTaskLines(t *testing.T) {
	h := startServer(t)
	h.open(t, entryURI, entryText)

	for _, line := range []uint32{0, 3, 4, 40} {
		cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: entryURI, Pos: protocol.Position{Line: line}}}
		err := h.call(t, contracts.MethodExecute, executeParams(t, cmd), nil)
		require.Error(t, err, "line %d", line)
		assert.Equal(t, rpc.CodeInvalidParams, rpcCode(t, err))
	}
	assert.Empty(t, h.appliedEdits())
}

func TestExecuteCommandValidatesArguments(t *testing.T) {
	h := startServer(t)

	tests := []struct {
		name   string
		params protocol.ExecuteCommandParams
	}{
		{"no arguments", protocol.ExecuteCommandParams{Command: contracts.ServerCompleteTask}},
		{"two arguments", protocol.ExecuteCommandParams{Command: contracts.ServerCompleteTask, Arguments: []interface{}{
			map[string]interface{}{"file": entryURI}, map[string]interface{}{"file": entryURI},
		}}},
		{"not a file uri", protocol.ExecuteCommandParams{Command: contracts.ServerCompleteTask, Arguments: []interface{}{
			map[string]interface{}{"file": "untitled:Untitled-1"},
		}}},
		{"unknown command", protocol.ExecuteCommandParams{Command: "codeActions:explode", Arguments: []interface{}{
			map[string]interface{}{"file": entryURI},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.call(t, contracts.MethodExecute, tt.params, nil)
			require.Error(t, err)
			assert.Equal(t, rpc.CodeInvalidParams, rpcCode(t, err))
		})
	}
}

func TestCompleteTaskReadsUnopenedFilesFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "16.md")
	require.NoError(t, os.WriteFile(path, []byte("* [ ] from disk\n"), 0o644))

	h := startServer(t)
	fileURI := string(uri.File(path))
	cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: fileURI}}

	var applied bool
	require.NoError(t, h.call(t, contracts.MethodExecute, executeParams(t, cmd), &applied))
	assert.True(t, applied)

	edits := h.appliedEdits()
	require.Len(t, edits, 1)
	assert.Len(t, edits[0].Edit.Changes[uri.URI(fileURI)], 1)
}

func TestConfigurationAddsCompletedSuffix(t *testing.T) {
	h := startServer(t)
	h.open(t, entryURI, entryText)

	require.NoError(t, h.client.Notify(context.Background(), contracts.MethodConfigChange, map[string]interface{}{
		"settings": map[string]interface{}{
			contracts.ConfigurationSection: map[string]interface{}{
				"tasks":  map[string]interface{}{"completedSuffix": "(done 2006-01-02)"},
				"server": map[string]interface{}{"readyTimeout": 5000},
			},
		},
	}))

	cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: entryURI, Pos: protocol.Position{Line: 2}}}
	require.NoError(t, h.call(t, contracts.MethodExecute, executeParams(t, cmd), nil))

	changes := h.appliedEdits()[0].Edit.Changes[uri.URI(entryURI)]
	require.Len(t, changes, 2)
	assert.Equal(t, " (done 2024-05-15)", changes[1].NewText)
	assert.Equal(t, protocol.Position{Line: 2, Character: 18}, changes[1].Range.Start)
	assert.Equal(t, 5*time.Second, h.server.Settings().Server.ReadyTimeout)
}

func TestConfigurationWithNumericTimeoutKeepsSuffix(t *testing.T) {
	h := startServer(t)
	h.open(t, entryURI, entryText)

	require.NoError(t, h.client.Notify(context.Background(), contracts.MethodConfigChange, map[string]interface{}{
		"settings": map[string]interface{}{
			contracts.ConfigurationSection: map[string]interface{}{
				"tasks":  map[string]interface{}{"completedSuffix": "@done"},
				"server": map[string]interface{}{"readyTimeout": 5000000000},
			},
		},
	}))

	cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: entryURI, Pos: protocol.Position{Line: 2}}}
	require.NoError(t, h.call(t, contracts.MethodExecute, executeParams(t, cmd), nil))

	settings := h.server.Settings()
	assert.Equal(t, "@done", settings.Tasks.CompletedSuffix)
	assert.Equal(t, 5000000000*time.Millisecond, settings.Server.ReadyTimeout)
}

func TestConfigurationSkipsOnlyTheInvalidKey(t *testing.T) {
	h := startServer(t)
	h.open(t, entryURI, entryText)

	require.NoError(t, h.client.Notify(context.Background(), contracts.MethodConfigChange, map[string]interface{}{
		"settings": map[string]interface{}{
			contracts.ConfigurationSection: map[string]interface{}{
				"tasks":  map[string]interface{}{"completedSuffix": "@done"},
				"server": map[string]interface{}{"readyTimeout": "whenever"},
			},
		},
	}))

	cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: entryURI, Pos: protocol.Position{Line: 2}}}
	require.NoError(t, h.call(t, contracts.MethodExecute, executeParams(t, cmd), nil))

	settings := h.server.Settings()
	assert.Equal(t, "@done", settings.Tasks.CompletedSuffix)
	assert.Equal(t, config.DefaultReadyTimeout, settings.Server.ReadyTimeout)
}

func TestClientRCOverridesSection(t *testing.T) {
	root := t.TempDir()
	rc := filepath.Join(root, ".clientrc")
	require.NoError(t, os.WriteFile(rc, []byte("tasks:\n  completedSuffix: \"@done\"\n"), 0o644))

	h := startServer(t)
	require.NoError(t, h.call(t, contracts.MethodInitialize, protocol.InitializeParams{RootURI: uri.File(root)}, nil))
	assert.Equal(t, "@done", h.server.Settings().Tasks.CompletedSuffix)

	require.NoError(t, os.WriteFile(rc, []byte("tasks:\n  completedSuffix: \"✓\"\n"), 0o644))
	require.NoError(t, h.client.Notify(context.Background(), contracts.MethodWatchedFiles, contracts.DidChangeWatchedFilesParams{
		Changes: []contracts.FileEvent{{URI: string(uri.File(rc)), Type: contracts.FileChanged}},
	}))
	// A request after the notification is served once the notification is handled.
	require.NoError(t, h.call(t, contracts.MethodCodeAction, protocol.CodeActionParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri.File(rc)}}, nil))
	assert.Equal(t, "✓", h.server.Settings().Tasks.CompletedSuffix)

	require.NoError(t, h.client.Notify(context.Background(), contracts.MethodWatchedFiles, contracts.DidChangeWatchedFilesParams{
		Changes: []contracts.FileEvent{{URI: string(uri.File(rc)), Type: contracts.FileDeleted}},
	}))
	require.NoError(t, h.call(t, contracts.MethodCodeAction, protocol.CodeActionParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri.File(rc)}}, nil))
	assert.Empty(t, h.server.Settings().Tasks.CompletedSuffix)
}

func TestCodeActionsForTaskLines(t *testing.T) {
	h := startServer(t)
	h.open(t, entryURI, entryText)

	var actions []protocol.CodeAction
	require.NoError(t, h.call(t, contracts.MethodCodeAction, protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri.URI(entryURI)},
		Range: protocol.Range{
			Start: protocol.Position{Line: 0},
			End:   protocol.Position{Line: 10},
		},
	}, &actions))

	require.Len(t, actions, 2)
	assert.Equal(t, "Complete task", actions[0].Title)
	assert.Equal(t, protocol.QuickFix, actions[0].Kind)
	require.NotNil(t, actions[0].Command)
	assert.Equal(t, contracts.ServerCompleteTask, actions[0].Command.Command)
	assert.Equal(t, "Reopen task", actions[1].Title)
	assert.Equal(t, contracts.ServerReopenTask, actions[1].Command.Command)

	// The command arguments decode back into a valid server command.
	decoded, err := contracts.DecodeServerCommand(&protocol.ExecuteCommandParams{
		Command:   actions[1].Command.Command,
		Arguments: actions[1].Command.Arguments,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), decoded.(contracts.ReopenTask).Pos.Line)
}

func TestCompletionAfterAt(t *testing.T) {
	h := startServer(t)
	h.open(t, entryURI, "call Bob @tom\n")

	var list protocol.CompletionList
	require.NoError(t, h.call(t, contracts.MethodCompletion, protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri.URI(entryURI)},
			Position:     protocol.Position{Line: 0, Character: 13},
		},
	}, &list))

	require.Len(t, list.Items, 1)
	item := list.Items[0]
	assert.Equal(t, "@tomorrow", item.Label)
	require.NotNil(t, item.TextEdit)
	assert.Equal(t, "2024-05-16", item.TextEdit.NewText)
	assert.Equal(t, uint32(9), item.TextEdit.Range.Start.Character)
}

func TestUnknownMethod(t *testing.T) {
	h := startServer(t)
	err := h.call(t, "textDocument/hover", map[string]interface{}{}, nil)
	assert.Equal(t, rpc.CodeMethodNotFound, rpcCode(t, err))
}

func TestShutdownThenExit(t *testing.T) {
	h := startServer(t)
	require.NoError(t, h.call(t, contracts.MethodShutdown, nil, nil))
	assert.True(t, h.server.Status().ShutDown)

	err := h.call(t, contracts.MethodCompletion, protocol.CompletionParams{}, nil)
	assert.Equal(t, rpc.CodeInvalidRequest, rpcCode(t, err))

	require.NoError(t, h.client.Notify(context.Background(), contracts.MethodExit, nil))
	select {
	case err := <-h.served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestExitWithoutShutdown(t *testing.T) {
	h := startServer(t)
	require.NoError(t, h.client.Notify(context.Background(), contracts.MethodExit, nil))
	select {
	case err := <-h.served:
		assert.ErrorIs(t, err, ErrExitWithoutShutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
