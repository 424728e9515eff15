// Package nvimhost runs the journal inside Neovim as a remote plugin.
package nvimhost

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"

	"go-journal/internal/app"
	"go-journal/internal/config"
	"go-journal/internal/host"
	"go-journal/internal/journal"
)

// Plugin is the journal's state for one Neovim session.
type Plugin struct {
	window  *host.NvimWindow
	ext     *host.ExtensionContext
	startup *app.Startup
	logger  *log.Logger
	nv      *nvim.Nvim
}

func New(v *nvim.Nvim) *Plugin {
	logger := log.Default()
	window := host.NewNvimWindow(v)
	return &Plugin{
		window:  window,
		ext:     host.NewExtensionContext(window, host.NewNvimBinder(v), extensionPath(), host.ModeFromEnv(os.Getenv)),
		startup: app.NewStartup(app.WithLogger(logger)),
		logger:  logger,
		nv:      v,
	}
}

// Register wires the plugin handlers and activates the journal once the
// connection is served.
func Register(p *plugin.Plugin) error {
	plug := New(p.Nvim)

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})
	p.Handle(host.NvimCommandMethod, plug.dispatch)
	p.Handle(host.NvimViewMethod, plug.showView)

	p.HandleAutocmd(&plugin.AutocmdOptions{
		Event:   "VimLeavePre",
		Pattern: "*",
	}, plug.Deactivate)

	// Calls into Neovim block until plugin.Main starts serving.
	go plug.Activate(context.Background())
	return nil
}

// Activate loads the settings and runs the startup steps.
func (p *Plugin) Activate(ctx context.Context) {
	overrides, err := p.globalSettings()
	if err != nil {
		p.logger.Printf("[go-journal] read g:journal: %v", err)
	}

	settings, err := LoadSettings(config.DefaultPath(), overrides)
	if err != nil {
		p.logger.Printf("[go-journal] %v", err)
		_ = p.window.ShowErrorMessage(ctx, err.Error())
		if settings == nil {
			return
		}
	}
	p.ext.Settings = overrides

	p.logger.Printf("[go-journal] activating in %s mode, journal at %q", p.ext.Mode, settings.BasePath())
	if err := p.startup.Activate(ctx, p.ext, journal.New(settings, p.window)); err != nil {
		p.logger.Printf("[go-journal] %v", err)
	}
}

// Deactivate disposes everything activation registered.
func (p *Plugin) Deactivate(*nvim.Nvim) error {
	return p.startup.Deactivate(p.ext)
}

// dispatch runs a user command. Each invocation gets its own goroutine so a
// prompt never blocks the plugin channel.
func (p *Plugin) dispatch(name string) error {
	go func() {
		if err := p.ext.Commands.ExecuteCommand(context.Background(), name); err != nil {
			p.logger.Printf("[go-journal] %s: %v", name, err)
		}
	}()
	return nil
}

func (p *Plugin) showView(viewID string) error {
	go func() {
		if err := p.window.ShowTree(context.Background(), viewID); err != nil {
			p.logger.Printf("[go-journal] %s: %v", viewID, err)
		}
	}()
	return nil
}

func (p *Plugin) globalSettings() (map[string]interface{}, error) {
	var overrides map[string]interface{}
	if err := p.nv.Eval(`get(g:, "journal", {})`, &overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

// LoadSettings reads the YAML file at path and overlays the editor's
// overrides. Overrides that cannot be applied are reported in the error
// while the returned settings keep the rest; settings are nil only when the
// file itself cannot be loaded.
func LoadSettings(path string, overrides map[string]interface{}) (*config.Settings, error) {
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	merged, err := settings.Merge(overrides)
	if err != nil {
		return merged, fmt.Errorf("g:journal: %w", err)
	}
	return merged, nil
}

// extensionPath is the directory of the plugin binary, where journal-lsp is
// expected next to it.
func extensionPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
