// Package inspect serves the debug endpoints of the language server: pprof and a
// status document.
package inspect

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"
)

// StatusFunc returns a JSON-encodable snapshot of the process.
type StatusFunc func() interface{}

type Manager struct {
	addr   string
	status StatusFunc

	mu       sync.Mutex
	started  bool
	server   *http.Server
	listener net.Listener
}

func NewManager(addr string, status StatusFunc) *Manager {
	return &Manager{addr: addr, status: status}
}

func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return "http://" + m.listener.Addr().String()
	}
	return "http://" + m.addr
}

func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", m.handleStatus)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	m.server = &http.Server{
		Addr:              m.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.listener = ln
	m.started = true

	go func(srv *http.Server) {
		_ = srv.Serve(ln)
	}(m.server)

	return nil
}

func (m *Manager) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status interface{} = map[string]string{}
	if m.status != nil {
		status = m.status()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := m.server.Shutdown(ctx)
	m.started = false
	m.server = nil
	m.listener = nil
	return err
}
