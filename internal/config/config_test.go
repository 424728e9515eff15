package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultExtension, settings.Extension)
	assert.Equal(t, DefaultReadyTimeout, settings.Server.ReadyTimeout)
	assert.False(t, settings.IsDevEnabled())
	assert.NotEmpty(t, settings.Templates.Entry)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
base: /tmp/journal
ext: adoc
dev: true
server:
  readyTimeout: 3s
templates:
  memo: "* {{.Input}}\n"
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/journal", settings.BasePath())
	assert.Equal(t, "adoc", settings.Extension)
	assert.True(t, settings.IsDevEnabled())
	assert.Equal(t, 3*time.Second, settings.Server.ReadyTimeout)
	assert.Equal(t, "* {{.Input}}\n", settings.Templates.Memo)
	assert.Equal(t, Default().Templates.Task, settings.Templates.Task, "unset templates keep their default")
	assert.Equal(t, DefaultInspectAddr, settings.Server.InspectAddr)
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(writeFile(t, dir, "broken.yaml", "base: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse")

	_, err = Load(writeFile(t, dir, "badext.yaml", "ext: a/b"))
	assert.ErrorContains(t, err, "path separators")
}

func TestLoadUsesEnvironmentPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "env.yaml", "dev: true\n")
	t.Setenv(EnvConfigFile, path)

	assert.Equal(t, path, DefaultPath())
	settings, err := Load("")
	require.NoError(t, err)
	assert.True(t, settings.Dev)
}

func TestMergeOverrides(t *testing.T) {
	base := Default()
	base.Base = "/journal"

	merged, err := base.Merge(map[string]interface{}{
		"dev":   true,
		"views": map[string]interface{}{"panel": true},
	})
	require.NoError(t, err)

	assert.True(t, merged.Dev)
	assert.True(t, merged.Views.Panel)
	assert.Equal(t, DefaultPanelAddr, merged.Views.PanelAddr)
	assert.Equal(t, "/journal", merged.Base)
	assert.False(t, base.Dev, "merge must not modify the receiver")
}

func TestMergeRejectsInvalidResult(t *testing.T) {
	merged, err := Default().Merge(map[string]interface{}{"ext": ""})
	assert.ErrorContains(t, err, "ext")
	assert.Equal(t, DefaultExtension, merged.Extension)
}

func TestMergeKeepsValidKeysWhenOneFails(t *testing.T) {
	merged, err := Default().Merge(map[string]interface{}{
		"ext":    "a/b",
		"server": map[string]interface{}{"readyTimeout": "soon"},
		"tasks":  map[string]interface{}{"completedSuffix": "@done"},
		"dev":    true,
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "ext")
	assert.ErrorContains(t, err, "readyTimeout")

	assert.Equal(t, "@done", merged.Tasks.CompletedSuffix)
	assert.True(t, merged.Dev)
	assert.Equal(t, DefaultExtension, merged.Extension)
	assert.Equal(t, DefaultReadyTimeout, merged.Server.ReadyTimeout)
}

func TestReadyTimeoutAcceptsNumbers(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  time.Duration
	}{
		{"duration string", "3s", 3 * time.Second},
		{"milliseconds int", 5000, 5 * time.Second},
		{"milliseconds int64", int64(250), 250 * time.Millisecond},
		{"milliseconds float", 1500.0, 1500 * time.Millisecond},
		{"numeric string", "5000000000", 5000000000 * time.Millisecond},
		{"null keeps current", nil, DefaultReadyTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := Default().Merge(map[string]interface{}{
				"server": map[string]interface{}{"readyTimeout": tt.value, "path": "/bin/journal-lsp"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, merged.Server.ReadyTimeout)
			assert.Equal(t, "/bin/journal-lsp", merged.Server.Path)
			assert.Equal(t, DefaultInspectAddr, merged.Server.InspectAddr)
		})
	}
}

func TestReadyTimeoutSurvivesSectionRoundTrip(t *testing.T) {
	settings := Default()
	settings.Server.ReadyTimeout = 1500 * time.Millisecond

	section, err := settings.Section()
	require.NoError(t, err)
	merged, err := Default().Merge(section)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, merged.Server.ReadyTimeout)
}

func TestLoadRejectsNegativeMilliseconds(t *testing.T) {
	_, err := Load(writeFile(t, t.TempDir(), "negative.yaml", "server:\n  readyTimeout: -5\n"))
	assert.ErrorContains(t, err, "must not be negative")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "Journal"), ExpandHome("~/Journal"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "", ExpandHome(""))
}

func TestSectionIsPlainMap(t *testing.T) {
	settings := Default()
	settings.Tasks.CompletedSuffix = " (done 15:04)"

	section, err := settings.Section()
	require.NoError(t, err)

	tasks, ok := section["tasks"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, " (done 15:04)", tasks["completedSuffix"])
}

func TestLanguageTagFallsBackToEnglish(t *testing.T) {
	settings := Default()
	settings.Locale = "not a locale!"
	assert.Equal(t, "en", settings.LanguageTag().String())

	settings.Locale = "de-DE"
	assert.Equal(t, "de-DE", settings.LanguageTag().String())
}
