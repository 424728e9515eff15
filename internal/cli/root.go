// Package cli is the journal command line: the editor commands run against
// a terminal instead of an editor.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"go-journal/internal/app"
	"go-journal/internal/config"
	"go-journal/internal/contracts"
	"go-journal/internal/host"
	"go-journal/internal/journal"
	"go-journal/internal/lspclient"
)

// ErrReported is returned after a failure was already shown to the user.
var ErrReported = errors.New("command failed")

// Options are the process-level collaborators of the CLI.
type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Getenv reads the environment (EDITOR, GO_JOURNAL_DEBUG).
	Getenv func(string) string
	// Now is the clock used to resolve relative days.
	Now func() time.Time
	// Launcher starts the language server; nil runs the journal-lsp binary.
	Launcher lspclient.Launcher
	// ExtensionPath is where journal-lsp is looked up first.
	ExtensionPath string
}

func (o *Options) defaults() {
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Err == nil {
		o.Err = os.Stderr
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ExtensionPath == "" {
		if exe, err := os.Executable(); err == nil {
			o.ExtensionPath = filepath.Dir(exe)
		}
	}
}

type globalFlags struct {
	config  string
	base    string
	edit    bool
	verbose bool
}

// session is one CLI invocation: a terminal window, an extension context
// and the journal, wired like an editor would wire them.
type session struct {
	window  *host.TerminalWindow
	ext     *host.ExtensionContext
	journal *journal.Main
	startup *app.Startup
}

// Execute runs the journal command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand(Options{}).Execute(); err != nil {
		if !errors.Is(err, ErrReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// NewRootCommand builds the journal command tree.
func NewRootCommand(opts Options) *cobra.Command {
	opts.defaults()
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "journal",
		Short: "Daily journal in plain markdown files",
		Long: `journal keeps one markdown file per day under a journal directory
(yyyy/mm/dd.md) plus notes, memos and tasks.

The same commands are available inside Neovim through the go-journal plugin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "settings file (default $GO_JOURNAL_CONFIG or the user config dir)")
	root.PersistentFlags().StringVarP(&flags.base, "base", "b", "", "journal directory, overrides the settings")
	root.PersistentFlags().BoolVarP(&flags.edit, "edit", "e", false, "open files with $EDITOR instead of printing their path")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log to stderr")

	open := func() (*session, error) {
		return newSession(opts, flags)
	}

	root.AddCommand(
		journalCommand(open, "today", "Open today's entry", contracts.CommandToday),
		journalCommand(open, "yesterday", "Open yesterday's entry", contracts.CommandYesterday),
		journalCommand(open, "tomorrow", "Open tomorrow's entry", contracts.CommandTomorrow),
		journalCommand(open, "day", "Ask for a day (+1, 2024-05-01, next monday) and open it", contracts.CommandDay),
		journalCommand(open, "memo", "Ask for a memo and add it to today's entry", contracts.CommandMemo),
		journalCommand(open, "note", "Ask for a title and create a note", contracts.CommandNote),
		journalCommand(open, "open", "Open the journal directory", contracts.CommandOpen),
		tasksCommand(open),
		completeTaskCommand(open),
	)
	return root
}

func newSession(opts Options, flags *globalFlags) (*session, error) {
	settings, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.base != "" {
		settings.Base = flags.base
	}

	logger := log.New(io.Discard, "", 0)
	if flags.verbose {
		logger = log.New(opts.Err, "", log.LstdFlags)
	}

	window := host.NewTerminalWindow(opts.In, opts.Out, opts.Err)
	if flags.edit {
		window.Editor = opts.Getenv("EDITOR")
		if window.Editor == "" {
			return nil, errors.New("--edit needs $EDITOR")
		}
	}

	ext := host.NewExtensionContext(window, nil, opts.ExtensionPath, host.ModeFromEnv(opts.Getenv))
	return &session{
		window:  window,
		ext:     ext,
		journal: journal.New(settings, window, journal.WithClock(opts.Now)),
		startup: app.NewStartup(app.WithLogger(logger), app.WithLauncher(opts.Launcher)),
	}, nil
}

// execute runs a registered command. A failure the command already showed
// becomes ErrReported so the process still exits non-zero.
func (s *session) execute(ctx context.Context, name string) error {
	shown := s.window.ErrorCount()
	if err := s.ext.Commands.ExecuteCommand(ctx, name); err != nil {
		return err
	}
	if s.window.ErrorCount() > shown {
		return ErrReported
	}
	return nil
}

func (s *session) close() {
	_ = s.startup.Deactivate(s.ext)
}

func journalCommand(open func() (*session, error), use, short, name string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.startup.RegisterCommands(cmd.Context(), s.ext, s.journal); err != nil {
				return err
			}
			return s.execute(cmd.Context(), name)
		},
	}
}
