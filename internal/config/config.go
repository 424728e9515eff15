// Package config loads the journal settings: built-in defaults, overlaid by a
// YAML file, overlaid by whatever the host editor provides (g:journal in Neovim).
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	locale "github.com/jeandeaual/go-locale"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigFile overrides the location of the YAML settings file.
	EnvConfigFile = "GO_JOURNAL_CONFIG"

	DefaultConfigDir  = "go-journal"
	DefaultConfigFile = "config.yaml"

	DefaultExtension    = "md"
	DefaultReadyTimeout = 10 * time.Second
	DefaultInspectAddr  = "127.0.0.1:6009"
	DefaultPanelAddr    = "127.0.0.1:7778"
)

// Settings is the typed form of the journal configuration.
type Settings struct {
	Base      string         `yaml:"base"`
	Extension string         `yaml:"ext"`
	Locale    string         `yaml:"locale"`
	Dev       bool           `yaml:"dev"`
	Templates Templates      `yaml:"templates"`
	Tasks     TaskSettings   `yaml:"tasks"`
	Server    ServerSettings `yaml:"server"`
	Views     ViewSettings   `yaml:"views"`
}

// Templates are text/template sources used when writing journal files.
type Templates struct {
	Entry    string `yaml:"entry"`
	Note     string `yaml:"note"`
	Memo     string `yaml:"memo"`
	Task     string `yaml:"task"`
	NoteLink string `yaml:"noteLink"`
}

// TaskSettings controls how the language server completes tasks.
type TaskSettings struct {
	// CompletedSuffix is appended to a task line when it is completed.
	// It is a Go time layout; empty disables the suffix.
	CompletedSuffix string `yaml:"completedSuffix"`
}

// ServerSettings describes how the language server is launched.
type ServerSettings struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
	// ReadyTimeout is written as a duration ("10s") or as a plain number
	// of milliseconds.
	ReadyTimeout time.Duration `yaml:"readyTimeout"`
	InspectAddr  string        `yaml:"inspectAddr"`
	LogFile      string        `yaml:"logFile"`
}

// UnmarshalYAML decodes readyTimeout itself and leaves every other key to
// the default decoder.
func (s *ServerSettings) UnmarshalYAML(value *yaml.Node) error {
	type plain ServerSettings
	if value.Kind != yaml.MappingNode {
		return value.Decode((*plain)(s))
	}

	rest := *value
	rest.Content = make([]*yaml.Node, 0, len(value.Content))
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if key.Value != "readyTimeout" {
			rest.Content = append(rest.Content, key, val)
			continue
		}
		if val.ShortTag() == "!!null" {
			continue
		}
		d, err := parseTimeout(val)
		if err != nil {
			return err
		}
		s.ReadyTimeout = d
	}
	return rest.Decode((*plain)(s))
}

func parseTimeout(node *yaml.Node) (time.Duration, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("line %d: readyTimeout must be a duration or a number of milliseconds", node.Line)
	}
	text := strings.TrimSpace(node.Value)

	if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
		if ms > math.MaxInt64/int64(time.Millisecond) || ms < math.MinInt64/int64(time.Millisecond) {
			return 0, fmt.Errorf("line %d: readyTimeout %d ms is out of range", node.Line, ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	if ms, err := strconv.ParseFloat(text, 64); err == nil {
		if math.Abs(ms) > float64(math.MaxInt64/int64(time.Millisecond)) {
			return 0, fmt.Errorf("line %d: readyTimeout %s ms is out of range", node.Line, text)
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}

	d, err := time.ParseDuration(text)
	if err != nil {
		return 0, fmt.Errorf("line %d: readyTimeout %q: %w", node.Line, text, err)
	}
	return d, nil
}

// ViewSettings controls the tasks panel served to a browser.
type ViewSettings struct {
	Panel     bool   `yaml:"panel"`
	PanelAddr string `yaml:"panelAddr"`
	Watch     bool   `yaml:"watch"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Extension: DefaultExtension,
		Locale:    DefaultLocale(),
		Templates: Templates{
			Entry:    "# {{long .Date}}\n\n",
			Note:     "# {{title .Input}}\n\n",
			Memo:     "- MEMO: {{.Input}}\n",
			Task:     "- [ ] {{.Input}}\n",
			NoteLink: "- NOTE: [{{.Title}}]({{.Link}})\n",
		},
		Tasks: TaskSettings{},
		Server: ServerSettings{
			ReadyTimeout: DefaultReadyTimeout,
			InspectAddr:  DefaultInspectAddr,
		},
		Views: ViewSettings{
			PanelAddr: DefaultPanelAddr,
			Watch:     true,
		},
	}
}

// DefaultLocale asks the operating system for the user's locale and falls
// back to English when it cannot be determined or parsed.
func DefaultLocale() string {
	name, err := locale.GetLocale()
	if err != nil || name == "" {
		return language.English.String()
	}
	tag, err := language.Parse(strings.ReplaceAll(name, "_", "-"))
	if err != nil {
		return language.English.String()
	}
	return tag.String()
}

// IsDevEnabled reports whether developer-mode commands should be registered.
func (s *Settings) IsDevEnabled() bool {
	return s != nil && s.Dev
}

// LanguageTag returns the configured locale as a language tag.
func (s *Settings) LanguageTag() language.Tag {
	tag, err := language.Parse(s.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// BasePath returns the journal directory with ~ expanded, or "" when unset.
func (s *Settings) BasePath() string {
	return ExpandHome(s.Base)
}

// Validate checks the settings after all layers were applied.
func (s *Settings) Validate() error {
	if s.Extension == "" {
		return errors.New("ext must not be empty")
	}
	if strings.ContainsAny(s.Extension, `/\`) {
		return fmt.Errorf("ext %q must not contain path separators", s.Extension)
	}
	if s.Server.ReadyTimeout < 0 {
		return fmt.Errorf("server.readyTimeout must not be negative: %s", s.Server.ReadyTimeout)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Server.Args = append([]string(nil), s.Server.Args...)
	return &c
}

// DefaultPath returns the settings file location.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFile
	}
	return filepath.Join(dir, DefaultConfigDir, DefaultConfigFile)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; an empty path means DefaultPath.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultPath()
	}

	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration %s: %w", path, err)
	}
	return settings, nil
}

// Merge overlays overrides (as produced by the host editor) on a copy of s.
// Keys follow the YAML field names; unknown keys are ignored.
//
// Each top-level key is applied on its own. A key that fails to decode or
// leaves the settings invalid is skipped and reported in the error, and the
// returned settings still carry every other key.
func (s *Settings) Merge(overrides map[string]interface{}) (*Settings, error) {
	merged := s.Clone()

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		trial, err := merged.overlay(key, overrides[key])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		merged = trial
	}
	return merged, errors.Join(errs...)
}

func (s *Settings) overlay(key string, value interface{}) (*Settings, error) {
	data, err := yaml.Marshal(map[string]interface{}{key: value})
	if err != nil {
		return nil, fmt.Errorf("failed to encode override: %w", err)
	}
	trial := s.Clone()
	if err := yaml.Unmarshal(data, trial); err != nil {
		return nil, fmt.Errorf("failed to apply override: %w", err)
	}
	if err := trial.Validate(); err != nil {
		return nil, err
	}
	return trial, nil
}

// Section returns the settings as a generic map, the shape sent to the
// language server under the synchronized configuration section.
func (s *Settings) Section() (map[string]interface{}, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	var section map[string]interface{}
	if err := yaml.Unmarshal(data, &section); err != nil {
		return nil, err
	}
	return section, nil
}
