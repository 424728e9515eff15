package lspclient

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
)

// DefaultInspectAddr is where the debug profile asks the server to listen.
const DefaultInspectAddr = "127.0.0.1:6009"

// ServerBinary is the executable name of the journal language server.
const ServerBinary = "journal-lsp"

// Executable describes how to start the server process.
type Executable struct {
	Command string
	Args    []string
	Env     []string
}

// ServerOptions holds the run and debug launch profiles.
type ServerOptions struct {
	Run   Executable
	Debug Executable
}

// NewServerOptions builds both profiles for command. The debug profile adds
// the debug flag and the inspector address.
func NewServerOptions(command string, args []string, inspectAddr string) ServerOptions {
	if inspectAddr == "" {
		inspectAddr = DefaultInspectAddr
	}
	run := Executable{Command: command, Args: append([]string(nil), args...)}
	debug := Executable{
		Command: command,
		Args:    append(append([]string(nil), args...), "--debug", "--inspect", inspectAddr),
	}
	return ServerOptions{Run: run, Debug: debug}
}

// Synchronize selects what the client keeps in sync with the server.
type Synchronize struct {
	// ConfigurationSection is sent with workspace/didChangeConfiguration.
	ConfigurationSection string
	// FileEvents is a glob of workspace files whose changes are forwarded.
	FileEvents string
}

// ClientOptions configures the client side of the session.
type ClientOptions struct {
	DocumentSelector []string
	Synchronize      Synchronize
	// RootPath is the workspace folder, watched for FileEvents.
	RootPath string
	// Settings returns the configuration section sent after the handshake.
	Settings func() (map[string]interface{}, error)
}

func (o ClientOptions) selects(languageID string) bool {
	for _, id := range o.DocumentSelector {
		if id == languageID {
			return true
		}
	}
	return false
}

// Resolve returns the first candidate that is an existing file, or a name
// found on PATH. Empty candidates are skipped.
func Resolve(candidates ...string) (string, error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", ErrServerNotFound, err)
		}
	}
	for _, c := range candidates {
		if c == "" || containsSeparator(c) {
			continue
		}
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %v", ErrServerNotFound, nonEmpty(candidates))
}

func containsSeparator(p string) bool {
	for i := 0; i < len(p); i++ {
		if os.IsPathSeparator(p[i]) {
			return true
		}
	}
	return false
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
