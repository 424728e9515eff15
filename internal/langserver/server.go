// Package langserver implements journal-lsp, the language server that gives
// journal documents task actions and date completions.
package langserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"gopkg.in/yaml.v3"

	"go-journal/internal/config"
	"go-journal/internal/contracts"
	"go-journal/internal/rpc"
)

const (
	serverName    = "journal-lsp"
	serverVersion = "0.3.0"
)

// ErrExitWithoutShutdown is returned by Serve when the client sent exit
// before shutdown.
var ErrExitWithoutShutdown = errors.New("exit received before shutdown")

// Status is a snapshot for the inspector.
type Status struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Started     time.Time `json:"started"`
	Initialized bool      `json:"initialized"`
	Root        string    `json:"root"`
	Documents   int       `json:"documents"`
	Requests    int64     `json:"requests"`
	ShutDown    bool      `json:"shutdown"`
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now for dates and completion suffixes.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithSettings sets the settings used before the client sends its configuration.
func WithSettings(settings *config.Settings) Option {
	return func(s *Server) { s.base = settings }
}

// Server is one journal-lsp session.
type Server struct {
	logger *log.Logger
	now    func() time.Time
	docs   *DocumentStore

	mu          sync.RWMutex
	conn        *rpc.Conn
	base        *config.Settings
	section     map[string]interface{}
	clientRC    map[string]interface{}
	settings    *config.Settings
	root        string
	initialized bool
	shutdown    bool
	requests    int64
	started     time.Time

	exitOnce sync.Once
	exited   chan struct{}
}

func New(logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		logger:  logger,
		now:     time.Now,
		docs:    NewDocumentStore(),
		base:    config.Default(),
		started: time.Now(),
		exited:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.settings = s.base
	return s
}

// Serve speaks the protocol over r and w until the client sends exit, the
// stream ends or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	conn := rpc.NewConn(r, w, nil, s.handle, s.logger)
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go func() { _ = conn.Run(ctx) }()

	select {
	case <-s.exited:
		_ = conn.Close()
		s.mu.RLock()
		clean := s.shutdown
		s.mu.RUnlock()
		if !clean {
			return ErrExitWithoutShutdown
		}
		return nil
	case <-conn.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return conn.Err()
	}
}

// Status reports the session state.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Name:        serverName,
		Version:     serverVersion,
		Started:     s.started,
		Initialized: s.initialized,
		Root:        s.root,
		Documents:   s.docs.Len(),
		Requests:    s.requests,
		ShutDown:    s.shutdown,
	}
}

// Settings returns the effective settings: defaults, the client's section,
// then .clientrc overrides.
func (s *Server) Settings() *config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Server) handle(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	s.mu.Lock()
	s.requests++
	down := s.shutdown
	s.mu.Unlock()

	s.logger.Printf("Received message with method '%s'", method)

	if down && method != contracts.MethodExit {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "server is shutting down")
	}

	switch method {
	case contracts.MethodInitialize:
		var p protocol.InitializeParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.initialize(&p), nil

	case contracts.MethodInitialized:
		return nil, nil

	case contracts.MethodShutdown:
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		return nil, nil

	case contracts.MethodExit:
		s.exitOnce.Do(func() { close(s.exited) })
		return nil, nil

	case contracts.MethodDidOpen:
		var p protocol.DidOpenTextDocumentParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		s.docs.Open(Document{
			URI:        string(p.TextDocument.URI),
			LanguageID: string(p.TextDocument.LanguageID),
			Version:    p.TextDocument.Version,
			Text:       p.TextDocument.Text,
		})
		return nil, nil

	case contracts.MethodDidChange:
		var p protocol.DidChangeTextDocumentParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		// Only full document sync is advertised, the last change wins.
		if n := len(p.ContentChanges); n > 0 {
			s.docs.Change(string(p.TextDocument.URI), p.TextDocument.Version, p.ContentChanges[n-1].Text)
		}
		return nil, nil

	case contracts.MethodDidClose:
		var p protocol.DidCloseTextDocumentParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		s.docs.Close(string(p.TextDocument.URI))
		return nil, nil

	case contracts.MethodExecute:
		var p protocol.ExecuteCommandParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.executeCommand(ctx, &p)

	case contracts.MethodCodeAction:
		var p protocol.CodeActionParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.codeActions(&p)

	case contracts.MethodCompletion:
		var p protocol.CompletionParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		text, err := s.docs.Text(string(p.TextDocument.URI))
		if err != nil {
			return nil, rpc.NewError(rpc.CodeInvalidParams, "%v", err)
		}
		return &protocol.CompletionList{Items: complete(text, p.Position, s.now())}, nil

	case contracts.MethodConfigChange:
		return nil, s.didChangeConfiguration(params)

	case contracts.MethodWatchedFiles:
		var p contracts.DidChangeWatchedFilesParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		s.didChangeWatchedFiles(p.Changes)
		return nil, nil

	case contracts.MethodCancel:
		return nil, nil

	default:
		return nil, rpc.NewError(rpc.CodeMethodNotFound, "method not found: %s", method)
	}
}

func (s *Server) initialize(p *protocol.InitializeParams) *protocol.InitializeResult {
	root := ""
	if p.RootURI != "" && strings.HasPrefix(string(p.RootURI), uri.FileScheme+"://") {
		root = uri.URI(p.RootURI).Filename()
	}

	s.mu.Lock()
	s.root = root
	s.initialized = true
	s.mu.Unlock()

	if root != "" {
		s.loadClientRC(filepath.Join(root, ".clientrc"))
	}

	s.logger.Printf("Initialized for %s", root)

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{"@", "["},
			},
			CodeActionProvider: true,
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{contracts.ServerCompleteTask, contracts.ServerReopenTask},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    serverName,
			Version: serverVersion,
		},
	}
}

func (s *Server) executeCommand(ctx context.Context, p *protocol.ExecuteCommandParams) (interface{}, error) {
	cmd, err := contracts.DecodeServerCommand(p)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "%v", err)
	}

	var pos contracts.TaskPosition
	var done bool
	switch c := cmd.(type) {
	case contracts.CompleteTask:
		pos, done = c.TaskPosition, true
	case contracts.ReopenTask:
		pos, done = c.TaskPosition, false
	}

	text, err := s.docs.Text(pos.File)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "%v", err)
	}

	edits, err := toggleTask(text, pos.Pos.Line, done, s.Settings().Tasks.CompletedSuffix, s.now())
	if err != nil {
		return nil, err
	}

	params := &protocol.ApplyWorkspaceEditParams{
		Label: taskTitle(!done),
		Edit: protocol.WorkspaceEdit{
			Changes: map[uri.URI][]protocol.TextEdit{uri.URI(pos.File): edits},
		},
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, rpc.NewError(rpc.CodeInternalError, "no client connection")
	}

	var resp protocol.ApplyWorkspaceEditResponse
	if err := conn.Call(ctx, contracts.MethodApplyEdit, params, &resp); err != nil {
		return nil, fmt.Errorf("apply edit: %w", err)
	}
	if !resp.Applied {
		s.logger.Printf("Client refused edit for %s: %s", pos.File, resp.FailureReason)
	}
	return resp.Applied, nil
}

func (s *Server) codeActions(p *protocol.CodeActionParams) ([]protocol.CodeAction, error) {
	docURI := string(p.TextDocument.URI)
	text, err := s.docs.Text(docURI)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "%v", err)
	}

	all := lines(text)
	actions := []protocol.CodeAction{}
	for line := p.Range.Start.Line; line <= p.Range.End.Line && int(line) < len(all); line++ {
		isTask, done := taskState(all[line])
		if !isTask {
			continue
		}
		command := contracts.ServerCompleteTask
		if done {
			command = contracts.ServerReopenTask
		}
		title := taskTitle(done)
		actions = append(actions, protocol.CodeAction{
			Title: title,
			Kind:  protocol.QuickFix,
			Command: &protocol.Command{
				Title:   title,
				Command: command,
				Arguments: []interface{}{contracts.TaskPosition{
					File: docURI,
					Pos:  protocol.Position{Line: line},
				}},
			},
		})
	}
	return actions, nil
}

func (s *Server) didChangeConfiguration(params json.RawMessage) error {
	var p struct {
		Settings map[string]interface{} `json:"settings"`
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	// Keep integers exact; readyTimeout reads them as milliseconds.
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return rpc.NewError(rpc.CodeInvalidParams, "%v", err)
	}

	section, _ := p.Settings[contracts.ConfigurationSection].(map[string]interface{})

	s.mu.Lock()
	s.section = section
	s.mu.Unlock()
	return s.rebuildSettings()
}

func (s *Server) didChangeWatchedFiles(changes []contracts.FileEvent) {
	for _, change := range changes {
		if !strings.HasPrefix(change.URI, uri.FileScheme+"://") {
			continue
		}
		path := uri.URI(change.URI).Filename()
		if filepath.Base(path) != ".clientrc" {
			continue
		}
		if change.Type == contracts.FileDeleted {
			s.mu.Lock()
			s.clientRC = nil
			s.mu.Unlock()
			if err := s.rebuildSettings(); err != nil {
				s.logger.Printf("Settings after removing %s: %v", path, err)
			}
			continue
		}
		s.loadClientRC(path)
	}
}

// loadClientRC reads YAML overrides from path. A missing file is ignored.
func (s *Server) loadClientRC(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Printf("Can't read %s | %s", path, err)
		}
		return
	}

	var overrides map[string]interface{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		s.logger.Printf("Can't parse %s | %s", path, err)
		return
	}

	s.mu.Lock()
	s.clientRC = overrides
	s.mu.Unlock()

	if err := s.rebuildSettings(); err != nil {
		s.logger.Printf("Settings from %s: %v", path, err)
	}
}

func (s *Server) rebuildSettings() error {
	s.mu.RLock()
	base, section, clientRC := s.base, s.section, s.clientRC
	s.mu.RUnlock()

	merged, sectionErr := base.Merge(section)
	merged, rcErr := merged.Merge(clientRC)

	s.mu.Lock()
	s.settings = merged
	s.mu.Unlock()

	var errs []error
	if sectionErr != nil {
		errs = append(errs, fmt.Errorf("%s: %w", contracts.ConfigurationSection, sectionErr))
	}
	if rcErr != nil {
		errs = append(errs, fmt.Errorf(".clientrc: %w", rcErr))
	}
	return errors.Join(errs...)
}

func decode(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return rpc.NewError(rpc.CodeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return rpc.NewError(rpc.CodeInvalidParams, "%v", err)
	}
	return nil
}
