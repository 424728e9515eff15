package host

import "path/filepath"

// ExtensionMode tells the extension how the host is running it.
type ExtensionMode int

const (
	ModeProduction ExtensionMode = iota
	ModeDevelopment
)

func (m ExtensionMode) String() string {
	switch m {
	case ModeProduction:
		return "production"
	case ModeDevelopment:
		return "development"
	default:
		return "unknown"
	}
}

// EnvDebug switches hosts to development mode when set.
const EnvDebug = "GO_JOURNAL_DEBUG"

// ModeFromEnv reports development mode when EnvDebug is set.
func ModeFromEnv(getenv func(string) string) ExtensionMode {
	if getenv(EnvDebug) != "" {
		return ModeDevelopment
	}
	return ModeProduction
}

// ExtensionContext is what the host hands to the extension on activation.
type ExtensionContext struct {
	Subscriptions *Subscriptions
	Commands      *CommandRegistry
	Window        Window
	// ExtensionPath is the directory the extension's binaries live in.
	ExtensionPath string
	Mode          ExtensionMode
	// Settings are host-provided configuration overrides.
	Settings map[string]interface{}
}

// NewExtensionContext wires a registry to window and binder.
func NewExtensionContext(window Window, binder Binder, extensionPath string, mode ExtensionMode) *ExtensionContext {
	return &ExtensionContext{
		Subscriptions: &Subscriptions{},
		Commands:      NewCommandRegistry(binder, window),
		Window:        window,
		ExtensionPath: extensionPath,
		Mode:          mode,
	}
}

// AsAbsolutePath resolves rel against the extension directory.
func (c *ExtensionContext) AsAbsolutePath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.ExtensionPath, rel)
}
