// Package journal resolves the dates and paths of journal entries and notes
// and creates or opens them through the host window.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-journal/internal/config"
	"go-journal/internal/host"
)

// ErrNoWorkspace is returned when no journal directory is configured.
var ErrNoWorkspace = errors.New("No workspace open")

// Main is the facade the extension's commands delegate to.
type Main struct {
	settings *config.Settings
	window   host.Window
	now      func() time.Time
}

// Option configures Main.
type Option func(*Main)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Main) { m.now = now }
}

// New creates the facade.
func New(settings *config.Settings, window host.Window, opts ...Option) *Main {
	m := &Main{settings: settings, window: window, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the settings the journal was created with.
func (m *Main) Config() *config.Settings {
	return m.settings
}

func (m *Main) base() (string, error) {
	base := m.settings.BasePath()
	if base == "" {
		return "", ErrNoWorkspace
	}
	return base, nil
}

// OpenDay opens the entry offset days away from today, creating it if needed.
func (m *Main) OpenDay(ctx context.Context, offset int) error {
	date := Midnight(m.now()).AddDate(0, 0, offset)
	path, err := m.ensureEntry(date)
	if err != nil {
		return err
	}
	return m.window.OpenTextDocument(ctx, path, 0)
}

// OpenDayByInput asks the user which day to open, or what to write into it.
func (m *Main) OpenDayByInput(ctx context.Context) error {
	raw, err := m.window.ShowInputBox(ctx, host.InputOptions{
		Prompt:      "Enter day or memo (with flags)",
		Placeholder: "+1, 2024-05-01, next monday, task call Bob, or a memo",
	})
	if err != nil {
		if errors.Is(err, host.ErrInputCancelled) {
			return nil
		}
		return err
	}
	return m.OpenDayByInputOrSelection(ctx, raw)
}

// OpenDayByInputOrSelection handles a day input the caller already has,
// such as the current selection.
func (m *Main) OpenDayByInputOrSelection(ctx context.Context, raw string) error {
	in, err := ParseInput(raw, m.now())
	if err != nil {
		return err
	}

	path, err := m.ensureEntry(in.Date)
	if err != nil {
		return err
	}

	line := 0
	switch in.Kind {
	case InputMemo:
		line, err = m.appendTemplate(path, "memo", m.settings.Templates.Memo, templateData{Date: in.Date, Input: in.Text})
	case InputTask:
		line, err = m.appendTemplate(path, "task", m.settings.Templates.Task, templateData{Date: in.Date, Input: in.Text})
	}
	if err != nil {
		return err
	}

	return m.window.OpenTextDocument(ctx, path, line)
}

// CreateNote asks for a title, writes the note and links it from today's entry.
func (m *Main) CreateNote(ctx context.Context) error {
	title, err := m.window.ShowInputBox(ctx, host.InputOptions{
		Prompt:      "Enter the title of the note",
		Placeholder: "Meeting with Bob",
	})
	if err != nil {
		if errors.Is(err, host.ErrInputCancelled) {
			return nil
		}
		return err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	base, err := m.base()
	if err != nil {
		return err
	}

	today := Midnight(m.now())
	notePath, err := NotePath(base, m.settings.Extension, today, title)
	if err != nil {
		return err
	}

	if _, err := os.Stat(notePath); os.IsNotExist(err) {
		content, err := render("note", m.settings.Templates.Note, m.settings.LanguageTag(), templateData{Date: today, Input: title, Title: title})
		if err != nil {
			return err
		}
		if err := writeNew(notePath, content); err != nil {
			return err
		}

		entry, err := m.ensureEntry(today)
		if err != nil {
			return err
		}
		link, err := filepath.Rel(filepath.Dir(entry), notePath)
		if err != nil {
			return err
		}
		data := templateData{Date: today, Input: title, Title: title, Link: filepath.ToSlash(link)}
		if _, err := m.appendTemplate(entry, "noteLink", m.settings.Templates.NoteLink, data); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("failed to check note %s: %w", notePath, err)
	}

	return m.window.OpenTextDocument(ctx, notePath, 0)
}

// OpenJournal shows the journal directory.
func (m *Main) OpenJournal(ctx context.Context) error {
	base, err := m.base()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory %s: %w", base, err)
	}
	return m.window.OpenFolder(ctx, base)
}

// EntryPath returns the entry file of date under the configured base.
func (m *Main) EntryPath(date time.Time) (string, error) {
	base, err := m.base()
	if err != nil {
		return "", err
	}
	return EntryPath(base, m.settings.Extension, date), nil
}

// ensureEntry creates the entry for date from the entry template if missing.
func (m *Main) ensureEntry(date time.Time) (string, error) {
	path, err := m.EntryPath(date)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check entry %s: %w", path, err)
	}

	content, err := render("entry", m.settings.Templates.Entry, m.settings.LanguageTag(), templateData{Date: date})
	if err != nil {
		return "", err
	}
	if err := writeNew(path, content); err != nil {
		return "", err
	}
	log.Printf("[go-journal] created entry %s", path)
	return path, nil
}

// appendTemplate renders a template at the end of path and returns the
// 1-based line the appended text starts on.
func (m *Main) appendTemplate(path, name, source string, data templateData) (int, error) {
	text, err := render(name, source, m.settings.LanguageTag(), data)
	if err != nil {
		return 0, err
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	prefix := ""
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		prefix = "\n"
	}
	line := strings.Count(string(existing)+prefix, "\n") + 1

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(prefix + text); err != nil {
		return 0, fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return line, nil
}

func writeNew(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
