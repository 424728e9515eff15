// Package httpserver handles all message traffic between the editor and the browser panel.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go-journal/internal/contracts"

	"github.com/gorilla/websocket"
)

type renderPayload struct {
	html  string
	title string
}

// PanelServer coordinates HTTP serving and WebSocket updates.
type PanelServer struct {
	addr  string
	shell string

	mu       sync.Mutex
	started  bool
	server   *http.Server
	listener net.Listener

	onOpen         func(contracts.OpenMessage)
	browserInbound chan []byte

	updates    chan renderPayload
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopLoop   chan struct{}
	loopDone   chan struct{}

	upgrader websocket.Upgrader
}

// NewPanelServer creates an HTTP/WebSocket panel server bound to addr.
func NewPanelServer(addr string, shell string) *PanelServer {
	return &PanelServer{
		addr:  addr,
		shell: shell,

		browserInbound: make(chan []byte, 64),
		updates:        make(chan renderPayload, 8),
		register:       make(chan *websocket.Conn),
		unregister:     make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// URL returns the browser URL for the panel.
func (m *PanelServer) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return "http://" + m.listener.Addr().String()
	}
	return "http://" + m.addr
}

// SetOpenHandler registers the callback for browser open requests.
func (m *PanelServer) SetOpenHandler(fn func(contracts.OpenMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = fn
}

// Start binds the listener and starts serving. Calling it again is a no-op.
func (m *PanelServer) Start() error {
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
	mux.HandleFunc("/", m.handleIndex)
	mux.HandleFunc("/ws", m.handleWS)

	m.listener = ln
	m.server = &http.Server{Addr: m.addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.stopLoop = make(chan struct{})
	m.loopDone = make(chan struct{})
	m.started = true

	go m.runLoop(m.stopLoop, m.loopDone)
	go func(srv *http.Server) {
		_ = srv.Serve(ln)
	}(m.server)
	return nil
}

// Publish sends new panel HTML to the connected browser. The latest content
// is also replayed to browsers that connect later.
func (m *PanelServer) Publish(html string, title string) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return errors.New("panel server is not running")
	}

	m.updates <- renderPayload{html: html, title: title}
	return nil
}

// Stop gracefully shuts down the HTTP server and run loop.
func (m *PanelServer) Stop() error {
	m.mu.Lock()
	if !m.started || m.server == nil {
		m.mu.Unlock()
		return nil
	}
	server, stop, done := m.server, m.stopLoop, m.loopDone
	m.started = false
	m.server = nil
	m.listener = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := server.Shutdown(ctx)

	close(stop)
	<-done
	return err
}

// handleIndex serves the initial HTML shell.
func (m *PanelServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(m.shell))
}

// handleWS upgrades the connection and forwards browser messages to the loop.
func (m *PanelServer) handleWS(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	stop := m.stopLoop
	m.mu.Unlock()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case m.register <- conn:
	case <-stop:
		_ = conn.Close()
		return
	}
	defer func() {
		select {
		case m.unregister <- conn:
		case <-stop:
		}
	}()

	// Block here until the connection closes or errors out
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case m.browserInbound <- msg:
		case <-stop:
			return
		}
	}
}

// runLoop serializes state updates and websocket writes on a single goroutine.
func (m *PanelServer) runLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var conn *websocket.Conn
	lastRender := contracts.RenderMessage{Type: contracts.MessageTypeRender}

	for {
		select {
		case update := <-m.updates:
			lastRender.Rev++
			lastRender.HTML = update.html
			lastRender.Title = update.title

			if conn == nil {
				continue
			}
			if !writeJSON(conn, lastRender) {
				conn = nil
			}

		case c := <-m.register:
			if conn != nil {
				_ = conn.Close()
			}
			conn = c

			if lastRender.Rev == 0 {
				continue
			}
			if !writeJSON(conn, lastRender) {
				conn = nil
			}

		case c := <-m.unregister:
			if conn == c {
				_ = conn.Close()
				conn = nil
			}

		case raw := <-m.browserInbound:
			m.dispatch(raw)

		case <-stop:
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
	}
}

func (m *PanelServer) dispatch(raw []byte) {
	var envelope contracts.IncomingMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	switch envelope.Type {
	case contracts.MessageTypeOpen:
		var msg contracts.OpenMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		m.mu.Lock()
		fn := m.onOpen
		m.mu.Unlock()
		if fn != nil {
			go fn(msg)
		}
	}
}

// writeJSON writes a JSON message and reports whether the connection is usable.
func writeJSON(conn *websocket.Conn, v any) bool {
	if err := conn.WriteJSON(v); err != nil {
		_ = conn.Close()
		return false
	}
	return true
}
