// Package lspclient is the extension side of the journal language server:
// it owns the server process and the request channel to it.
package lspclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"go-journal/internal/contracts"
	"go-journal/internal/host"
	"go-journal/internal/rpc"
	"go-journal/internal/watch"
)

var (
	// ErrNotReady is returned for requests sent before the handshake finished.
	ErrNotReady = errors.New("language server is not ready")
	// ErrServerCrashed is returned once the server process went away on its own.
	ErrServerCrashed = errors.New("language server crashed")
	// ErrServerNotFound is returned when no server executable could be resolved.
	ErrServerNotFound = errors.New("language server executable not found")
	// ErrStopped is returned for requests after Stop.
	ErrStopped = errors.New("language client stopped")
)

// State is the lifecycle of a client. It only moves forward.
type State int

const (
	StateCreated State = iota
	StateStarting
	StateReady
	StateDisposed
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	case StateCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultStopTimeout bounds the shutdown handshake and the wait for the process.
const DefaultStopTimeout = 2 * time.Second

// Option configures a Client.
type Option func(*Client)

func WithLauncher(l Launcher) Option {
	return func(c *Client) { c.launcher = l }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithStopTimeout(d time.Duration) Option {
	return func(c *Client) { c.stopTimeout = d }
}

// Client is a process-boundary proxy to the language server.
type Client struct {
	id       string
	name     string
	server   ServerOptions
	opts     ClientOptions
	window   host.Window
	mode     host.ExtensionMode
	launcher Launcher
	logger   *log.Logger

	stopTimeout time.Duration
	ready       *host.Future[struct{}]

	mu       sync.Mutex
	state    State
	conn     *rpc.Conn
	proc     *Process
	cancel   context.CancelFunc
	exited   chan struct{}
	versions map[string]int32
}

// NewClient returns a client in the Created state. mode picks the launch profile.
func NewClient(id, name string, server ServerOptions, opts ClientOptions, window host.Window, mode host.ExtensionMode, options ...Option) *Client {
	c := &Client{
		id:          id,
		name:        name,
		server:      server,
		opts:        opts,
		window:      window,
		mode:        mode,
		stopTimeout: DefaultStopTimeout,
		ready:       host.NewFuture[struct{}](),
		versions:    make(map[string]int32),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.launcher == nil {
		c.launcher = ExecLauncher{Logger: c.logger}
	}
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnReady settles once the handshake finished, or with the reason it never will.
func (c *Client) OnReady() *host.Future[struct{}] {
	return c.ready
}

// Executable returns the launch profile for the client's extension mode.
func (c *Client) Executable() Executable {
	if c.mode == host.ModeDevelopment {
		return c.server.Debug
	}
	return c.server.Run
}

// Start spawns the server and begins the handshake in the background.
// It fails if the process cannot be started.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCreated {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start %s client in state %s", c.name, state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	exe := c.Executable()
	c.logger.Printf("[go-journal] starting %s (%s mode): %s %v", c.name, c.mode, exe.Command, exe.Args)

	proc, err := c.launcher.Launch(ctx, exe)
	if err != nil {
		c.fail(StateCrashed, err)
		return err
	}

	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	conn := rpc.NewConn(proc.Reader, proc.Writer, proc.Writer, c.handle, c.logger)

	c.mu.Lock()
	if c.state != StateStarting {
		// Stopped while launching.
		c.mu.Unlock()
		cancel()
		_ = proc.Kill()
		return ErrStopped
	}
	c.conn = conn
	c.proc = proc
	c.cancel = cancel
	c.exited = make(chan struct{})
	exited := c.exited
	c.mu.Unlock()

	go func() { _ = conn.Run(life) }()
	go c.monitor(conn, proc, exited)
	go c.handshake(life, conn)
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *rpc.Conn) {
	params := protocol.InitializeParams{
		ProcessID:  int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{Name: c.name},
	}
	if c.opts.RootPath != "" {
		params.RootURI = uri.File(c.opts.RootPath)
	}

	var result protocol.InitializeResult
	if err := conn.Call(ctx, contracts.MethodInitialize, params, &result); err != nil {
		c.fail(StateCrashed, fmt.Errorf("initialize %s: %w", c.name, c.translate(err)))
		return
	}
	if err := conn.Notify(ctx, contracts.MethodInitialized, struct{}{}); err != nil {
		c.fail(StateCrashed, fmt.Errorf("initialized %s: %w", c.name, c.translate(err)))
		return
	}

	c.mu.Lock()
	if c.state != StateStarting {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Printf("[go-journal] %s ready", c.name)
	c.ready.Resolve(struct{}{})

	if err := c.NotifyConfigurationChanged(ctx); err != nil {
		c.logger.Printf("[go-journal] send configuration: %v", err)
	}
	c.watchFileEvents(ctx)
}

// monitor reaps the process and marks an unexpected end as a crash.
func (c *Client) monitor(conn *rpc.Conn, proc *Process, exited chan struct{}) {
	<-conn.Done()
	_ = proc.Reader.Close()
	err := proc.Wait()
	close(exited)

	c.mu.Lock()
	unexpected := c.state == StateStarting || c.state == StateReady
	c.mu.Unlock()
	if !unexpected {
		return
	}
	if err == nil {
		err = conn.Err()
	}
	if err != nil {
		c.fail(StateCrashed, fmt.Errorf("%w: %v", ErrServerCrashed, err))
	} else {
		c.fail(StateCrashed, ErrServerCrashed)
	}
}

// fail moves a live client to state and settles the ready future with err.
func (c *Client) fail(state State, err error) {
	c.mu.Lock()
	if c.state == StateDisposed || c.state == StateCrashed {
		c.mu.Unlock()
		return
	}
	c.state = state
	proc, cancel := c.proc, c.cancel
	c.mu.Unlock()

	c.logger.Printf("[go-journal] %s %s: %v", c.name, state, err)
	c.ready.Reject(err)
	if cancel != nil {
		cancel()
	}
	if proc != nil {
		_ = proc.Kill()
	}
}

// connection returns the rpc connection if requests may be sent.
func (c *Client) connection() (*rpc.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateReady:
		return c.conn, nil
	case StateCrashed:
		return nil, ErrServerCrashed
	case StateDisposed:
		return nil, ErrStopped
	default:
		return nil, ErrNotReady
	}
}

// translate maps transport failures to the client's lifecycle errors.
func (c *Client) translate(err error) error {
	if err == nil || !errors.Is(err, rpc.ErrClosed) {
		return err
	}
	switch c.State() {
	case StateDisposed:
		return ErrStopped
	default:
		return ErrServerCrashed
	}
}

// SendRequest sends a request. It fails fast with ErrNotReady before the handshake.
func (c *Client) SendRequest(ctx context.Context, method string, params, result interface{}) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	return c.translate(conn.Call(ctx, method, params, result))
}

// SendNotification sends a notification under the same rules as SendRequest.
func (c *Client) SendNotification(ctx context.Context, method string, params interface{}) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	return c.translate(conn.Notify(ctx, method, params))
}

// ExecuteCommand forwards a server command and returns its result.
func (c *Client) ExecuteCommand(ctx context.Context, cmd contracts.ServerCommand) (json.RawMessage, error) {
	params, err := contracts.NewExecuteCommandParams(cmd)
	if err != nil {
		return nil, err
	}
	var result json.RawMessage
	if err := c.SendRequest(ctx, contracts.MethodExecute, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type versionedDocument struct {
	URI     string `json:"uri"`
	Version int32  `json:"version"`
}

type fullTextChange struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   versionedDocument `json:"textDocument"`
	ContentChanges []fullTextChange  `json:"contentChanges"`
}

// SyncDocument sends the editor's document to the server: didOpen the first
// time, full-text didChange afterwards. Other languages are ignored.
func (c *Client) SyncDocument(ctx context.Context, editor *host.TextEditor) error {
	if editor == nil || !c.opts.selects(editor.LanguageID) {
		return nil
	}
	if _, err := c.connection(); err != nil {
		return err
	}

	c.mu.Lock()
	version, seen := c.versions[editor.URI]
	version++
	c.versions[editor.URI] = version
	c.mu.Unlock()

	if !seen {
		return c.SendNotification(ctx, contracts.MethodDidOpen, protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        uri.URI(editor.URI),
				LanguageID: protocol.LanguageIdentifier(editor.LanguageID),
				Version:    version,
				Text:       editor.Text,
			},
		})
	}
	return c.SendNotification(ctx, contracts.MethodDidChange, didChangeParams{
		TextDocument:   versionedDocument{URI: editor.URI, Version: version},
		ContentChanges: []fullTextChange{{Text: editor.Text}},
	})
}

// NotifyConfigurationChanged sends the synchronized configuration section.
func (c *Client) NotifyConfigurationChanged(ctx context.Context) error {
	section := c.opts.Synchronize.ConfigurationSection
	if section == "" || c.opts.Settings == nil {
		return nil
	}
	settings, err := c.opts.Settings()
	if err != nil {
		return err
	}
	return c.SendNotification(ctx, contracts.MethodConfigChange, map[string]interface{}{
		"settings": map[string]interface{}{section: settings},
	})
}

func (c *Client) watchFileEvents(ctx context.Context) {
	pattern := c.opts.Synchronize.FileEvents
	if pattern == "" || c.opts.RootPath == "" {
		return
	}
	w := watch.New(c.opts.RootPath, watch.MatchBase(pattern), func(events []watch.Event) {
		params := contracts.DidChangeWatchedFilesParams{}
		for _, e := range events {
			params.Changes = append(params.Changes, contracts.FileEvent{
				URI:  string(uri.File(e.Path)),
				Type: int(e.Type),
			})
		}
		if err := c.SendNotification(ctx, contracts.MethodWatchedFiles, params); err != nil {
			c.logger.Printf("[go-journal] forward file events: %v", err)
		}
	}, c.logger)

	go func() {
		if err := w.Run(ctx); err != nil {
			c.logger.Printf("[go-journal] watch %s: %v", c.opts.RootPath, err)
		}
	}()
}

// handle answers the requests the server sends to the editor.
func (c *Client) handle(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case contracts.MethodApplyEdit:
		var p protocol.ApplyWorkspaceEditParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpc.NewError(rpc.CodeInvalidParams, "%v", err)
		}
		applied, err := c.window.ApplyEdit(ctx, p.Edit)
		resp := protocol.ApplyWorkspaceEditResponse{Applied: applied && err == nil}
		if err != nil {
			resp.FailureReason = err.Error()
		}
		return resp, nil

	case contracts.MethodShowMessage:
		var p protocol.ShowMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Type == protocol.MessageTypeError {
			return nil, c.window.ShowErrorMessage(ctx, p.Message)
		}
		return nil, c.window.ShowInformationMessage(ctx, p.Message)

	case contracts.MethodLogMessage:
		var p protocol.LogMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		c.logger.Printf("[go-journal] server: %s", p.Message)
		return nil, nil

	default:
		return nil, rpc.NewError(rpc.CodeMethodNotFound, "method not found: %s", method)
	}
}

// Stop shuts the server down: shutdown and exit when ready, then waits for
// the process and kills it after the stop timeout. It is safe to call twice.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	prev := c.state
	if prev == StateDisposed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisposed
	conn, proc, cancel, exited := c.conn, c.proc, c.cancel, c.exited
	c.mu.Unlock()

	c.ready.Reject(ErrStopped)
	if conn == nil {
		return nil
	}

	ctx, done := context.WithTimeout(ctx, c.stopTimeout)
	defer done()

	var stopErr error
	if prev == StateReady {
		if err := conn.Call(ctx, contracts.MethodShutdown, nil, nil); err != nil {
			stopErr = fmt.Errorf("shutdown %s: %w", c.name, err)
		} else if err := conn.Notify(ctx, contracts.MethodExit, nil); err != nil {
			stopErr = fmt.Errorf("exit %s: %w", c.name, err)
		}
	}

	_ = proc.Writer.Close()
	select {
	case <-exited:
	case <-ctx.Done():
		c.logger.Printf("[go-journal] %s did not exit, killing it", c.name)
		if err := proc.Kill(); err != nil && stopErr == nil {
			stopErr = err
		}
		cancel()
		<-exited
	}

	cancel()
	_ = conn.Close()
	return stopErr
}

// Dispose stops the client. It makes the client a host.Disposable.
func (c *Client) Dispose() error {
	return c.Stop(context.Background())
}

var _ host.Disposable = (*Client)(nil)
