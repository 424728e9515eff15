package nvimhost

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-journal/internal/config"
)

func TestLoadSettingsOverlaysEditorValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base: /from/file\next: md\n"), 0o644))

	settings, err := LoadSettings(path, map[string]interface{}{
		"base": "/from/editor",
		"dev":  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/from/editor", settings.Base)
	assert.Equal(t, "md", settings.Extension)
	assert.True(t, settings.IsDevEnabled())
}

func TestLoadSettingsRejectsInvalidOverrides(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"), map[string]interface{}{
		"ext":  "a/b",
		"base": "/from/editor",
	})
	assert.ErrorContains(t, err, "g:journal")
	require.NotNil(t, settings)
	assert.Equal(t, config.DefaultExtension, settings.Extension)
	assert.Equal(t, "/from/editor", settings.Base)
}

func TestLoadSettingsReadsTimeoutInMilliseconds(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"), map[string]interface{}{
		"server": map[string]interface{}{"readyTimeout": int64(5000)},
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, settings.Server.ReadyTimeout)
}

func TestLoadSettingsFailsOnBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base: [unterminated"), 0o644))

	settings, err := LoadSettings(path, nil)
	assert.Error(t, err)
	assert.Nil(t, settings)
}
