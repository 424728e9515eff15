package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-journal/internal/config"
	"go-journal/internal/inspect"
	"go-journal/internal/langserver"
)

type options struct {
	debug       bool
	inspectAddr string
	logFile     string
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "journal-lsp",
		Short: "Language server for journal files",
		Long: `journal-lsp speaks the Language Server Protocol on stdin and stdout.

It completes and reopens checklist tasks in markdown and asciidoc journal
files, offers @date completions and follows the editor's journal settings.
Logs go to stderr unless --log-file is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "verbose log lines with source locations")
	cmd.Flags().StringVar(&opts.inspectAddr, "inspect", "", "serve pprof and /status on this address")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "append logs to this file instead of stderr")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	var out io.Writer = os.Stderr
	if opts.logFile != "" {
		f, err := os.OpenFile(config.ExpandHome(opts.logFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	flags := log.LstdFlags
	if opts.debug {
		flags |= log.Lmicroseconds | log.Lshortfile
	}
	logger := log.New(out, "", flags)

	settings, err := config.Load("")
	if err != nil {
		logger.Printf("[go-journal] %v, using defaults", err)
		settings = config.Default()
	}

	srv := langserver.New(logger, langserver.WithSettings(settings))

	if opts.inspectAddr != "" {
		inspector := inspect.NewManager(opts.inspectAddr, func() interface{} { return srv.Status() })
		if err := inspector.Start(); err != nil {
			logger.Printf("[go-journal] inspector: %v", err)
		} else {
			defer func() { _ = inspector.Stop() }()
			logger.Printf("[go-journal] inspector on %s", inspector.URL())
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Println("[go-journal] language server listening on stdio")
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
