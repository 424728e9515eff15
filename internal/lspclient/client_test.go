package lspclient_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"go-journal/internal/contracts"
	"go-journal/internal/host"
	"go-journal/internal/host/hosttest"
	"go-journal/internal/langserver"
	"go-journal/internal/lspclient"
	"go-journal/internal/lspclient/lsptest"
)

func newClient(t *testing.T, launcher lspclient.Launcher, mode host.ExtensionMode, opts lspclient.ClientOptions) (*lspclient.Client, *hosttest.Window) {
	t.Helper()
	window := hosttest.New()
	if opts.DocumentSelector == nil {
		opts.DocumentSelector = contracts.DocumentSelector
	}
	client := lspclient.NewClient("journal", "Journal Language Server",
		lspclient.NewServerOptions("/opt/journal/journal-lsp", nil, ""),
		opts, window, mode,
		lspclient.WithLauncher(launcher),
		lspclient.WithStopTimeout(time.Second),
	)
	t.Cleanup(func() { _ = client.Stop(context.Background()) })
	return client, window
}

func serverLauncher(srv *langserver.Server) *lsptest.Launcher {
	return &lsptest.Launcher{NewServer: func() *langserver.Server { return srv }}
}

func awaitReady(t *testing.T, client *lspclient.Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.OnReady().Await(ctx)
	require.NoError(t, err)
}

func TestStartReachesReady(t *testing.T) {
	launcher := serverLauncher(langserver.New(nil))
	client, _ := newClient(t, launcher, host.ModeProduction, lspclient.ClientOptions{})

	assert.Equal(t, lspclient.StateCreated, client.State())
	require.NoError(t, client.Start(context.Background()))
	awaitReady(t, client)
	assert.Equal(t, lspclient.StateReady, client.State())

	launched := launcher.Launched()
	require.Len(t, launched, 1)
	assert.Equal(t, "/opt/journal/journal-lsp", launched[0].Command)
	assert.Empty(t, launched[0].Args)

	assert.Error(t, client.Start(context.Background()), "a client starts once")
}

func TestDevelopmentModeUsesDebugProfile(t *testing.T) {
	launcher := serverLauncher(langserver.New(nil))
	client, _ := newClient(t, launcher, host.ModeDevelopment, lspclient.ClientOptions{})

	require.NoError(t, client.Start(context.Background()))
	awaitReady(t, client)

	launched := launcher.Launched()
	require.Len(t, launched, 1)
	assert.Equal(t, []string{"--debug", "--inspect", "127.0.0.1:6009"}, launched[0].Args)
}

func TestRequestsBeforeReadyFailFast(t *testing.T) {
	client, _ := newClient(t, &lsptest.Launcher{}, host.ModeProduction, lspclient.ClientOptions{})

	err := client.SendRequest(context.Background(), contracts.MethodCompletion, nil, nil)
	assert.ErrorIs(t, err, lspclient.ErrNotReady)

	require.NoError(t, client.Start(context.Background()))
	assert.Equal(t, lspclient.StateStarting, client.State())

	start := time.Now()
	cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: "file:///j/2024/05/15.md"}}
	_, err = client.ExecuteCommand(context.Background(), cmd)
	assert.ErrorIs(t, err, lspclient.ErrNotReady)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, client.Stop(context.Background()))
	assert.Equal(t, lspclient.StateDisposed, client.State())
	assert.ErrorIs(t, client.SendNotification(context.Background(), contracts.MethodInitialized, nil), lspclient.ErrStopped)

	_, err = client.OnReady().Await(context.Background())
	assert.ErrorIs(t, err, lspclient.ErrStopped)
}

func TestExecuteCommandAppliesEditThroughWindow(t *testing.T) {
	client, window := newClient(t, serverLauncher(langserver.New(nil)), host.ModeProduction, lspclient.ClientOptions{})
	require.NoError(t, client.Start(context.Background()))
	awaitReady(t, client)

	editor := &host.TextEditor{
		URI:        "file:///j/2024/05/15.md",
		LanguageID: "markdown",
		Text:       "# Wednesday\n\n- [ ] write report\n",
	}
	require.NoError(t, client.SyncDocument(context.Background(), editor))
	editor.Text += "- [ ] second\n"
	require.NoError(t, client.SyncDocument(context.Background(), editor))

	cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: editor.URI, Pos: protocol.Position{Line: 3}}}
	result, err := client.ExecuteCommand(context.Background(), cmd)
	require.NoError(t, err)
	assert.JSONEq(t, "true", string(result))

	edits := window.AppliedEdits()
	require.Len(t, edits, 1)
	changes := edits[0].Changes[uri.URI(editor.URI)]
	require.Len(t, changes, 1)
	assert.Equal(t, uint32(3), changes[0].Range.Start.Line)
}

func TestSyncDocumentIgnoresOtherLanguages(t *testing.T) {
	client, _ := newClient(t, serverLauncher(langserver.New(nil)), host.ModeProduction, lspclient.ClientOptions{})
	require.NoError(t, client.Start(context.Background()))
	awaitReady(t, client)

	missing := string(uri.File(filepath.Join(t.TempDir(), "notes.txt")))
	require.NoError(t, client.SyncDocument(context.Background(), &host.TextEditor{
		URI: missing, LanguageID: "plaintext", Text: "- [ ] invisible\n",
	}))

	// The server never saw the text and cannot read it from disk either.
	_, err := client.ExecuteCommand(context.Background(), contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: missing}})
	assert.Error(t, err)
}

func TestCrashRejectsRequests(t *testing.T) {
	launcher := serverLauncher(langserver.New(nil))
	client, _ := newClient(t, launcher, host.ModeProduction, lspclient.ClientOptions{})
	require.NoError(t, client.Start(context.Background()))
	awaitReady(t, client)

	launcher.Crash()
	assert.Eventually(t, func() bool { return client.State() == lspclient.StateCrashed }, 5*time.Second, 10*time.Millisecond)

	err := client.SendRequest(context.Background(), contracts.MethodCompletion, nil, nil)
	assert.ErrorIs(t, err, lspclient.ErrServerCrashed)
	assert.NoError(t, client.Stop(context.Background()))
}

func TestLaunchFailure(t *testing.T) {
	launcher := &lsptest.Launcher{Err: lspclient.ErrServerNotFound}
	client, _ := newClient(t, launcher, host.ModeProduction, lspclient.ClientOptions{})

	err := client.Start(context.Background())
	assert.ErrorIs(t, err, lspclient.ErrServerNotFound)
	assert.Equal(t, lspclient.StateCrashed, client.State())

	_, err = client.OnReady().Await(context.Background())
	assert.ErrorIs(t, err, lspclient.ErrServerNotFound)
}

func TestStopShutsDownReadyServer(t *testing.T) {
	srv := langserver.New(nil)
	client, _ := newClient(t, serverLauncher(srv), host.ModeProduction, lspclient.ClientOptions{})
	require.NoError(t, client.Start(context.Background()))
	awaitReady(t, client)

	require.NoError(t, client.Stop(context.Background()))
	assert.True(t, srv.Status().ShutDown)
	assert.Equal(t, lspclient.StateDisposed, client.State())
	assert.NoError(t, client.Dispose())
}

func TestConfigurationIsSentAfterReady(t *testing.T) {
	srv := langserver.New(nil)
	client, _ := newClient(t, serverLauncher(srv), host.ModeProduction, lspclient.ClientOptions{
		Synchronize: lspclient.Synchronize{ConfigurationSection: contracts.ConfigurationSection},
		Settings: func() (map[string]interface{}, error) {
			return map[string]interface{}{"tasks": map[string]interface{}{"completedSuffix": "[2006]"}}, nil
		},
	})
	require.NoError(t, client.Start(context.Background()))
	awaitReady(t, client)

	assert.Eventually(t, func() bool {
		return srv.Settings().Tasks.CompletedSuffix == "[2006]"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClientRCChangesAreForwarded(t *testing.T) {
	root := t.TempDir()
	srv := langserver.New(nil)
	client, _ := newClient(t, serverLauncher(srv), host.ModeProduction, lspclient.ClientOptions{
		RootPath:    root,
		Synchronize: lspclient.Synchronize{FileEvents: contracts.ClientRCPattern},
	})
	require.NoError(t, client.Start(context.Background()))
	awaitReady(t, client)

	rc := filepath.Join(root, ".clientrc")
	// The watcher starts after the handshake, so touch the file now and then
	// until it is seen. Touching on every tick would keep resetting the debounce.
	attempt := 0
	assert.Eventually(t, func() bool {
		if attempt%10 == 0 {
			_ = os.WriteFile(rc, []byte("tasks:\n  completedSuffix: watched\n"), 0o644)
		}
		attempt++
		return srv.Settings().Tasks.CompletedSuffix == "watched"
	}, 10*time.Second, 100*time.Millisecond)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "journal-lsp")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))

	got, err := lspclient.Resolve("", filepath.Join(dir, "missing"), exe)
	require.NoError(t, err)
	assert.Equal(t, exe, got)

	_, err = lspclient.Resolve(filepath.Join(dir, "missing"), "journal-lsp-that-does-not-exist")
	assert.True(t, errors.Is(err, lspclient.ErrServerNotFound))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", lspclient.StateReady.String())
	assert.Equal(t, "crashed", lspclient.StateCrashed.String())
}
