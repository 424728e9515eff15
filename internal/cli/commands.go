package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"go-journal/internal/contracts"
	"go-journal/internal/host"
	"go-journal/internal/markdown"
)

func tasksCommand(open func() (*session, error)) *cobra.Command {
	var panel bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the open tasks of the journal",
		Long: `List the open tasks of the journal, newest entry first.

With --panel the list is also served as a web page that follows changes to
the journal until the command is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.close()

			settings := s.journal.Config()
			settings.Views.Panel = panel
			settings.Views.Watch = panel

			if err := s.startup.RegisterViews(cmd.Context(), s.ext, s.journal); err != nil {
				return err
			}
			if err := s.window.PrintTree(cmd.Context(), contracts.TasksViewID); err != nil {
				return err
			}
			if !panel {
				return nil
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "tasks panel on http://%s, press Ctrl-C to stop\n", settings.Views.PanelAddr)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&panel, "panel", false, "serve the task list in a browser until interrupted")
	return cmd
}

func completeTaskCommand(open func() (*session, error)) *cobra.Command {
	var (
		file      string
		line      uint32
		character uint32
	)

	cmd := &cobra.Command{
		Use:   "complete-task",
		Short: "Mark the task at a position as done through the language server",
		Example: `  journal complete-task --file ~/journal/2024/05/15.md --line 3
  journal complete-task --file notes.adoc --line 0 --character 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := filepath.Abs(file)
			if err != nil {
				return err
			}

			s, err := open()
			if err != nil {
				return err
			}
			defer s.close()

			s.window.Active = &host.TextEditor{
				URI:        string(uri.File(path)),
				LanguageID: languageID(path),
				Cursor:     protocol.Position{Line: line, Character: character},
			}

			if err := s.startup.RunServer(cmd.Context(), s.ext, s.journal); err != nil {
				return err
			}
			return s.ext.Commands.ExecuteCommand(cmd.Context(), contracts.CommandCompleteTask)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "journal file containing the task")
	cmd.Flags().Uint32VarP(&line, "line", "l", 0, "zero based line of the task")
	cmd.Flags().Uint32Var(&character, "character", 0, "zero based UTF-16 column")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func languageID(path string) string {
	if markdown.IsAsciidoc(path) {
		return "asciidoc"
	}
	return "markdown"
}
