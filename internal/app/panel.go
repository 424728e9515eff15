package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go-journal/internal/contracts"
	"go-journal/internal/host"
	"go-journal/internal/render"
	httptransport "go-journal/internal/transport/http"
)

const panelTitle = "Journal tasks"

// TasksPanel is a coordinator between a tree view, markdown rendering and HTTP delivery.
type TasksPanel struct {
	renderer *render.Renderer
	panel    *httptransport.PanelServer
	provider host.TreeDataProvider
	window   host.Window
	logger   *log.Logger

	mu      sync.Mutex
	targets map[int]*host.TreeItem
}

func NewTasksPanel(addr string, provider host.TreeDataProvider, window host.Window, logger *log.Logger) *TasksPanel {
	if logger == nil {
		logger = log.Default()
	}
	renderer := render.NewRenderer()
	return &TasksPanel{
		renderer: renderer,
		panel:    httptransport.NewPanelServer(addr, renderer.RenderShell()),
		provider: provider,
		window:   window,
		logger:   logger,
	}
}

func (s *TasksPanel) URL() string {
	return s.panel.URL()
}

// Start serves the panel and republishes it whenever the tree changes.
// Disposing the result stops the server.
func (s *TasksPanel) Start(ctx context.Context) (host.Disposable, error) {
	s.panel.SetOpenHandler(func(msg contracts.OpenMessage) {
		if err := s.Open(ctx, msg.Line); err != nil {
			s.logger.Printf("[go-journal] panel open line %d: %v", msg.Line, err)
		}
	})
	if err := s.panel.Start(); err != nil {
		return nil, fmt.Errorf("start tasks panel: %w", err)
	}

	sub := s.provider.OnDidChange(func() {
		if err := s.Publish(ctx); err != nil {
			s.logger.Printf("[go-journal] publish tasks panel: %v", err)
		}
	})
	if err := s.Publish(ctx); err != nil {
		_ = sub.Dispose()
		_ = s.panel.Stop()
		return nil, err
	}

	return host.DisposableFunc(func() error {
		_ = sub.Dispose()
		return s.panel.Stop()
	}), nil
}

// Publish renders the current tree and pushes it to the browser.
func (s *TasksPanel) Publish(ctx context.Context) error {
	lines, err := host.Flatten(ctx, s.provider)
	if err != nil {
		return err
	}

	doc := render.TreeDocument(panelTitle, lines)
	fragment, err := s.renderer.ConvertFragment(doc.Source)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.targets = doc.Targets
	s.mu.Unlock()

	return s.panel.Publish(fragment, panelTitle)
}

// Open shows the item rendered at a panel line in the editor.
func (s *TasksPanel) Open(ctx context.Context, line int) error {
	s.mu.Lock()
	item, ok := s.targets[line]
	s.mu.Unlock()

	if !ok || item.File == "" {
		return nil
	}
	return s.window.OpenTextDocument(ctx, item.File, item.Line)
}
