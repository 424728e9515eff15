package lspclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
)

// Process is a started server: its stdio channel and lifecycle hooks.
type Process struct {
	Reader io.ReadCloser
	Writer io.WriteCloser
	// Wait blocks until the process ended. It is called once, after Reader is drained.
	Wait func() error
	Kill func() error
}

// Launcher starts a server for a launch profile.
type Launcher interface {
	Launch(ctx context.Context, exe Executable) (*Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, exe Executable) (*Process, error)

func (f LauncherFunc) Launch(ctx context.Context, exe Executable) (*Process, error) {
	return f(ctx, exe)
}

// ExecLauncher runs the server as a subprocess talking over stdin and stdout.
// Its stderr goes to Logger line by line.
type ExecLauncher struct {
	Logger *log.Logger
}

func (l ExecLauncher) Launch(_ context.Context, exe Executable) (*Process, error) {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}

	cmd := exec.Command(exe.Command, exe.Args...)
	if len(exe.Env) > 0 {
		cmd.Env = append(os.Environ(), exe.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderrR, stderrW := io.Pipe()
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stderrW.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrServerNotFound, err)
		}
		return nil, fmt.Errorf("failed to start %s: %w", exe.Command, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderrR)
		for scanner.Scan() {
			logger.Printf("[go-journal] server: %s", scanner.Text())
		}
	}()

	return &Process{
		Reader: stdout,
		Writer: stdin,
		Wait: func() error {
			err := cmd.Wait()
			_ = stderrW.Close()
			return err
		},
		Kill: func() error {
			if cmd.Process == nil {
				return nil
			}
			err := cmd.Process.Kill()
			if errors.Is(err, os.ErrProcessDone) {
				return nil
			}
			return err
		},
	}, nil
}
