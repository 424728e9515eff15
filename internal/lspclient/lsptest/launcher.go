// Package lsptest runs the journal language server in-process for tests.
package lsptest

import (
	"context"
	"io"
	"sync"

	"go-journal/internal/langserver"
	"go-journal/internal/lspclient"
)

// Launcher starts in-process servers over pipes. With a nil NewServer the
// "server" swallows its input and never answers, so a client stays starting.
type Launcher struct {
	NewServer func() *langserver.Server

	mu       sync.Mutex
	launched []lspclient.Executable
	sessions []*session
	Err      error
}

type session struct {
	c2sR *io.PipeReader
	s2cW *io.PipeWriter
	once sync.Once
}

func (s *session) kill() {
	s.once.Do(func() {
		_ = s.s2cW.Close()
		_ = s.c2sR.Close()
	})
}

func (l *Launcher) Launch(_ context.Context, exe lspclient.Executable) (*lspclient.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, exe)
	if l.Err != nil {
		return nil, l.Err
	}

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	s := &session{c2sR: c2sR, s2cW: s2cW}
	l.sessions = append(l.sessions, s)

	done := make(chan error, 1)
	go func() {
		var err error
		if l.NewServer != nil {
			err = l.NewServer().Serve(context.Background(), c2sR, s2cW)
		} else {
			_, _ = io.Copy(io.Discard, c2sR)
		}
		s.kill()
		done <- err
	}()

	return &lspclient.Process{
		Reader: s2cR,
		Writer: c2sW,
		Wait:   func() error { return <-done },
		Kill: func() error {
			s.kill()
			return nil
		},
	}, nil
}

// Crash drops the connection of the most recent server.
func (l *Launcher) Crash() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.sessions); n > 0 {
		l.sessions[n-1].kill()
	}
}

// Launched returns the profiles servers were started with.
func (l *Launcher) Launched() []lspclient.Executable {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lspclient.Executable(nil), l.launched...)
}
