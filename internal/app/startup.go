// Package app wires the journal into an editor host: it registers the
// commands, starts the language server and registers the views.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"go-journal/internal/config"
	"go-journal/internal/contracts"
	"go-journal/internal/host"
	"go-journal/internal/lspclient"
	"go-journal/internal/views"
)

// Journal is the facade the commands delegate to.
type Journal interface {
	Config() *config.Settings
	OpenDay(ctx context.Context, offset int) error
	OpenDayByInput(ctx context.Context) error
	OpenDayByInputOrSelection(ctx context.Context, input string) error
	CreateNote(ctx context.Context) error
	OpenJournal(ctx context.Context) error
}

// Activation steps, in the order Activate runs them.
const (
	StepRegisterCommands = "registerCommands"
	StepRunServer        = "runServer"
	StepRegisterViews    = "registerViews"
	StepConfigureDevMode = "configureDevMode"
)

// StepError reports the activation step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

const (
	clientID   = "journal-client"
	clientName = "Journal Client"

	// defaultQuickPickDelay is how long journal.test waits before asking.
	defaultQuickPickDelay = 2 * time.Second
)

// testQuickPickItems are offered by the journal.test diagnostic command.
var testQuickPickItems = []string{"aaaa", "bbbb", "cccc", "abc", "bcd"}

// Option configures a Startup.
type Option func(*Startup)

func WithLogger(l *log.Logger) Option {
	return func(s *Startup) { s.logger = l }
}

// WithLauncher replaces how the language server process is started.
func WithLauncher(l lspclient.Launcher) Option {
	return func(s *Startup) { s.launcher = l }
}

func WithQuickPickDelay(d time.Duration) Option {
	return func(s *Startup) { s.quickPickDelay = d }
}

// Startup sequences the activation steps. It only holds collaborators that
// never change; the extension context and the journal are passed to each step.
type Startup struct {
	logger         *log.Logger
	launcher       lspclient.Launcher
	quickPickDelay time.Duration
}

func NewStartup(opts ...Option) *Startup {
	s := &Startup{quickPickDelay: defaultQuickPickDelay}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	return s
}

// Activate runs the steps in order. The first failure stops the chain, is
// logged and shown once, and is returned as a *StepError.
func (s *Startup) Activate(ctx context.Context, ext *host.ExtensionContext, journal Journal) error {
	steps := []struct {
		name string
		run  func(context.Context, *host.ExtensionContext, Journal) error
	}{
		{StepRegisterCommands, s.RegisterCommands},
		{StepRunServer, s.RunServer},
		{StepRegisterViews, s.RegisterViews},
		{StepConfigureDevMode, s.ConfigureDevMode},
	}

	for _, step := range steps {
		if err := step.run(ctx, ext, journal); err != nil {
			stepErr := &StepError{Step: step.name, Err: err}
			s.logger.Printf("[go-journal] activation failed: %v", stepErr)
			s.ShowError(ctx, ext, stepErr)
			return stepErr
		}
	}

	s.logger.Println("[go-journal] activated")
	return nil
}

// Deactivate disposes everything activation registered. In-flight commands
// are not waited for.
func (s *Startup) Deactivate(ext *host.ExtensionContext) error {
	return ext.Subscriptions.Dispose()
}

// RegisterCommands registers the journal commands. A failing command shows
// its error and leaves the other commands usable.
func (s *Startup) RegisterCommands(_ context.Context, ext *host.ExtensionContext, journal Journal) error {
	commands := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{contracts.CommandToday, func(ctx context.Context) error { return journal.OpenDay(ctx, 0) }},
		{contracts.CommandYesterday, func(ctx context.Context) error { return journal.OpenDay(ctx, -1) }},
		{contracts.CommandTomorrow, func(ctx context.Context) error { return journal.OpenDay(ctx, 1) }},
		{contracts.CommandDay, journal.OpenDayByInput},
		{contracts.CommandMemo, journal.OpenDayByInput},
		{contracts.CommandNote, journal.CreateNote},
		{contracts.CommandOpen, journal.OpenJournal},
	}

	for _, c := range commands {
		run := c.run
		d, err := ext.Commands.RegisterCommand(c.name, func(ctx context.Context, _ ...interface{}) error {
			if err := run(ctx); err != nil {
				s.ShowError(ctx, ext, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		ext.Subscriptions.Push(d)
	}
	return nil
}

// RunServer starts the language server client, registers the server-backed
// commands and waits until the server is ready.
func (s *Startup) RunServer(ctx context.Context, ext *host.ExtensionContext, journal Journal) error {
	settings := journal.Config()

	exe, err := lspclient.Resolve(
		config.ExpandHome(settings.Server.Path),
		ext.AsAbsolutePath(lspclient.ServerBinary),
		lspclient.ServerBinary,
	)
	if err != nil {
		return err
	}

	client := lspclient.NewClient(clientID, clientName,
		lspclient.NewServerOptions(exe, settings.Server.Args, settings.Server.InspectAddr),
		lspclient.ClientOptions{
			DocumentSelector: contracts.DocumentSelector,
			Synchronize: lspclient.Synchronize{
				ConfigurationSection: contracts.ConfigurationSection,
				FileEvents:           contracts.ClientRCPattern,
			},
			RootPath: settings.BasePath(),
			Settings: settings.Clone().Section,
		},
		ext.Window, ext.Mode,
		lspclient.WithLauncher(s.launcher),
		lspclient.WithLogger(s.logger),
	)

	if err := client.Start(ctx); err != nil {
		return err
	}
	ext.Subscriptions.Push(client)

	// Registered before the handshake completes: an early invocation is
	// rejected with lspclient.ErrNotReady instead of waiting.
	d, err := ext.Commands.RegisterTextEditorCommand(contracts.CommandCompleteTask, func(ctx context.Context, editor *host.TextEditor) error {
		return s.forwardTaskCommand(ctx, client, editor)
	})
	if err != nil {
		return err
	}
	ext.Subscriptions.Push(d)

	timeout := settings.Server.ReadyTimeout
	if timeout <= 0 {
		timeout = config.DefaultReadyTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := client.OnReady().Await(waitCtx); err != nil {
		return fmt.Errorf("language server did not become ready: %w", err)
	}
	return nil
}

// forwardTaskCommand sends journal.completeTask to the server for the
// cursor position of editor. Failures go to the log.
func (s *Startup) forwardTaskCommand(ctx context.Context, client *lspclient.Client, editor *host.TextEditor) error {
	if err := client.SyncDocument(ctx, editor); err != nil {
		s.logger.Printf("[go-journal] %s: %v", contracts.CommandCompleteTask, err)
		return err
	}
	cmd := contracts.CompleteTask{TaskPosition: contracts.TaskPosition{File: editor.URI, Pos: editor.Cursor}}
	if _, err := client.ExecuteCommand(ctx, cmd); err != nil {
		s.logger.Printf("[go-journal] %s: %v", contracts.CommandCompleteTask, err)
		return err
	}
	return nil
}

// RegisterViews scans the journal for tasks and registers the tasks view.
func (s *Startup) RegisterViews(ctx context.Context, ext *host.ExtensionContext, journal Journal) error {
	settings := journal.Config()
	view := views.NewTasksView(settings.BasePath(), s.logger)
	if err := view.Init(ctx); err != nil {
		return err
	}

	d, err := ext.Window.RegisterTreeDataProvider(contracts.TasksViewID, view)
	if err != nil {
		return err
	}
	ext.Subscriptions.Push(d)

	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ext.Subscriptions.Push(host.DisposableFunc(func() error {
		cancel()
		return nil
	}))

	if settings.Views.Watch {
		go func() {
			if err := view.Watch(life); err != nil {
				s.logger.Printf("[go-journal] watch tasks: %v", err)
			}
		}()
	}

	if settings.Views.Panel {
		panel := NewTasksPanel(settings.Views.PanelAddr, view, ext.Window, s.logger)
		stop, err := panel.Start(life)
		if err != nil {
			return err
		}
		ext.Subscriptions.Push(stop)
		s.logger.Printf("[go-journal] tasks panel: %s", panel.URL())
	}
	return nil
}

// ConfigureDevMode registers the diagnostic commands when the dev flag is
// set. It never fails; registration problems are logged.
func (s *Startup) ConfigureDevMode(_ context.Context, ext *host.ExtensionContext, journal Journal) error {
	if !journal.Config().IsDevEnabled() {
		return nil
	}

	register := func(name string, fn host.CommandFunc) {
		d, err := ext.Commands.RegisterCommand(name, fn)
		if err != nil {
			s.logger.Printf("[go-journal] dev mode: %v", err)
			return
		}
		ext.Subscriptions.Push(d)
	}

	register(contracts.CommandTest, func(ctx context.Context, _ ...interface{}) error {
		select {
		case <-time.After(s.quickPickDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		choice, err := ext.Window.ShowQuickPick(ctx, testQuickPickItems)
		if errors.Is(err, host.ErrInputCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		return ext.Window.ShowInformationMessage(ctx, choice)
	})

	register(contracts.CommandDay2, func(ctx context.Context, _ ...interface{}) error {
		selection := ""
		if editor, err := ext.Window.ActiveTextEditor(ctx); err == nil {
			selection = editor.Selection
		}
		if err := journal.OpenDayByInputOrSelection(ctx, selection); err != nil {
			s.ShowError(ctx, ext, err)
		}
		return nil
	})

	s.logger.Println("[go-journal] dev mode enabled")
	return nil
}

// ShowError displays source, which is a message, an error or a
// *host.Future[string]. A future is displayed once it settles.
func (s *Startup) ShowError(ctx context.Context, ext *host.ExtensionContext, source interface{}) {
	show := func(ctx context.Context, message string) {
		if err := ext.Window.ShowErrorMessage(ctx, message); err != nil {
			s.logger.Printf("[go-journal] show error %q: %v", message, err)
		}
	}

	switch v := source.(type) {
	case nil:
	case string:
		show(ctx, v)
	case *host.Future[string]:
		ctx := context.WithoutCancel(ctx)
		go func() {
			message, err := v.Await(ctx)
			if err != nil {
				message = err.Error()
			}
			show(ctx, message)
		}()
	case *StepError:
		show(ctx, v.Err.Error())
	case error:
		show(ctx, v.Error())
	default:
		show(ctx, fmt.Sprint(v))
	}
}
