// Package contracts holds the identifiers and message shapes shared between
// the extension host, the language server and the tasks panel.
package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Editor command identifiers.
const (
	CommandToday        = "journal.today"
	CommandYesterday    = "journal.yesterday"
	CommandTomorrow     = "journal.tomorrow"
	CommandDay          = "journal.day"
	CommandMemo         = "journal.memo"
	CommandNote         = "journal.note"
	CommandOpen         = "journal.open"
	CommandCompleteTask = "journal.completeTask"
	CommandTest         = "journal.test"
	CommandDay2         = "journal.day2"
)

// Server command identifiers, sent as workspace/executeCommand.
const (
	ServerCompleteTask = "codeActions:completeTask"
	ServerReopenTask   = "codeActions:reopenTask"
)

const (
	// TasksViewID is the identifier the tasks tree is registered under.
	TasksViewID = "journalTasksView"
	// ConfigurationSection is the settings section synchronized with the server.
	ConfigurationSection = "vscode-journal"
	// ClientRCPattern selects the files whose changes are forwarded to the server.
	ClientRCPattern = "**/.clientrc"
)

// DocumentSelector lists the languages the server handles.
var DocumentSelector = []string{"markdown", "asciidoc"}

// ErrInvalidArguments is returned when a server command payload has the wrong shape.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ServerCommand is a request the extension forwards to the language server.
type ServerCommand interface {
	Name() string
	Validate() error
}

// TaskPosition is the single argument of the task commands.
type TaskPosition struct {
	File string            `json:"file"`
	Pos  protocol.Position `json:"pos"`
}

// Validate checks that File is a file URI.
func (p TaskPosition) Validate() error {
	if strings.TrimSpace(p.File) == "" {
		return fmt.Errorf("%w: missing file", ErrInvalidArguments)
	}
	u, err := uri.Parse(p.File)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if !strings.HasPrefix(string(u), uri.FileScheme+"://") {
		return fmt.Errorf("%w: %s is not a file uri", ErrInvalidArguments, p.File)
	}
	return nil
}

// Filename returns the local path of File.
func (p TaskPosition) Filename() string {
	return uri.URI(p.File).Filename()
}

// CompleteTask marks the task at a position as done.
type CompleteTask struct {
	TaskPosition
}

func (CompleteTask) Name() string { return ServerCompleteTask }

// ReopenTask marks the task at a position as open again.
type ReopenTask struct {
	TaskPosition
}

func (ReopenTask) Name() string { return ServerReopenTask }

// NewExecuteCommandParams builds the workspace/executeCommand envelope for cmd.
func NewExecuteCommandParams(cmd ServerCommand) (*protocol.ExecuteCommandParams, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrInvalidArguments)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var arg interface{}
	switch c := cmd.(type) {
	case CompleteTask:
		arg = c.TaskPosition
	case ReopenTask:
		arg = c.TaskPosition
	default:
		return nil, fmt.Errorf("%w: unknown command %s", ErrInvalidArguments, cmd.Name())
	}

	return &protocol.ExecuteCommandParams{
		Command:   cmd.Name(),
		Arguments: []interface{}{arg},
	}, nil
}

// DecodeServerCommand turns a workspace/executeCommand payload back into a
// typed command. It requires exactly one argument.
func DecodeServerCommand(params *protocol.ExecuteCommandParams) (ServerCommand, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: no parameters", ErrInvalidArguments)
	}
	if len(params.Arguments) != 1 {
		return nil, fmt.Errorf("%w: %s expects 1 argument, got %d", ErrInvalidArguments, params.Command, len(params.Arguments))
	}

	raw, err := json.Marshal(params.Arguments[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	var pos TaskPosition
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	var cmd ServerCommand
	switch params.Command {
	case ServerCompleteTask:
		cmd = CompleteTask{TaskPosition: pos}
	case ServerReopenTask:
		cmd = ReopenTask{TaskPosition: pos}
	default:
		return nil, fmt.Errorf("%w: unknown command %s", ErrInvalidArguments, params.Command)
	}

	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}
