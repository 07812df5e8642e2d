// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AlverezYari/featherscan/pkg/decode"
)

const (
	maxLogEntries = 100
	// writeWait bounds each websocket write so a stalled client cannot hold
	// up the decode goroutine that broadcasts results.
	writeWait = 2 * time.Second
)

type LogEntry struct {
	Timestamp time.Time
	Message   string
}

// ResultMessage is what websocket clients receive for every decoded symbol.
type ResultMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	Timestamp time.Time `json:"timestamp"`
}

type Server struct {
	mu        sync.Mutex
	server    *http.Server
	host      string
	port      string
	isRunning bool

	logBuffer   []LogEntry
	logMutex    sync.RWMutex
	logger      *zap.Logger
	logCallback func(level, message string)

	status  func() any
	actions map[string]func() error

	upgrader        websocket.Upgrader
	wsConnections   map[*websocket.Conn]bool
	wsConnectionsMu sync.Mutex
	writeWait       time.Duration
}

type Option func(*Server)

// WithHost binds the listener to one interface instead of all of them.
func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLogCallback forwards every server log line, e.g. to the TUI.
func WithLogCallback(fn func(level, message string)) Option {
	return func(s *Server) { s.logCallback = fn }
}

// WithStatus sets the value served as JSON on /status.
func WithStatus(fn func() any) Option {
	return func(s *Server) { s.status = fn }
}

// WithAction exposes fn as POST /actions/{name}.
func WithAction(name string, fn func() error) Option {
	return func(s *Server) { s.actions[name] = fn }
}

func New(port string, opts ...Option) *Server {
	s := &Server{
		port:      port,
		logBuffer: make([]LogEntry, 0, maxLogEntries),
		logger:    zap.NewNop(),
		actions:   make(map[string]func() error),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsConnections: make(map[*websocket.Conn]bool),
		writeWait:     writeWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/results", s.handleWebSocketResults)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/actions/", s.handleAction)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "FeatherScan Web Interface")
	})
	return mux
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		s.addLog("ERROR", fmt.Sprintf("Server is already running on port %s", s.port))
		return fmt.Errorf("server is already running")
	}

	srv := &http.Server{
		Addr:    net.JoinHostPort(s.host, s.port),
		Handler: s.Handler(),
	}
	s.server = srv

	go func() {
		s.addLog("INFO", fmt.Sprintf("Starting server on port %s", srv.Addr))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			s.addLog("ERROR", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	s.isRunning = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		s.addLog("ERROR", "Server stop requested, but server is not running")
		return fmt.Errorf("server is not running")
	}

	s.addLog("INFO", "Stopping server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.addLog("ERROR", fmt.Sprintf("Server shutdown error: %v", err))
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.closeConnections()
	s.isRunning = false
	s.addLog("INFO", "Server stopped")
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *Server) Port() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Addr is the address Start listens on.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return net.JoinHostPort(s.host, s.port)
}

func (s *Server) SetPort(port string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("cannot change port while server is running")
	}
	s.port = port
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.addLog("ERROR", fmt.Sprintf("Error encoding status: %v", err))
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Path[len("/actions/"):]
	fn, ok := s.actions[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := fn(); err != nil {
		s.addLog("ERROR", fmt.Sprintf("Action %s failed: %v", name, err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.addLog("INFO", fmt.Sprintf("Action %s from %s", name, r.RemoteAddr))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocketResults(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.addLog("ERROR", fmt.Sprintf("Error upgrading websocket connection: %v", err))
		return
	}
	s.addLog("INFO", fmt.Sprintf("Websocket connection established from: %s", r.RemoteAddr))

	s.wsConnectionsMu.Lock()
	s.wsConnections[conn] = true
	s.wsConnectionsMu.Unlock()

	defer func() {
		s.wsConnectionsMu.Lock()
		delete(s.wsConnections, conn)
		s.wsConnectionsMu.Unlock()
		conn.Close()
	}()

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.addLog("DEBUG", fmt.Sprintf("Websocket closed for %s: %v", r.RemoteAddr, err))
			return
		}
	}
}

// Clients reports the number of connected websocket clients.
func (s *Server) Clients() int {
	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	return len(s.wsConnections)
}

// BroadcastResult sends r to every websocket client.
func (s *Server) BroadcastResult(r decode.Result) {
	msg := ResultMessage{
		Type:      "result",
		Text:      r.Text,
		Format:    string(r.Format),
		Timestamp: time.Now(),
	}

	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	for conn := range s.wsConnections {
		conn.SetWriteDeadline(time.Now().Add(s.writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			s.addLog("ERROR", fmt.Sprintf("Error writing message to websocket: %v", err))
			conn.Close()
			delete(s.wsConnections, conn)
		}
	}
}

func (s *Server) closeConnections() {
	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	for conn := range s.wsConnections {
		conn.Close()
		delete(s.wsConnections, conn)
	}
}

// GetRecentLogs returns the buffered log lines, oldest first.
func (s *Server) GetRecentLogs() []LogEntry {
	s.logMutex.RLock()
	defer s.logMutex.RUnlock()
	return append([]LogEntry(nil), s.logBuffer...)
}

func (s *Server) addLog(level, message string) {
	logEntry := LogEntry{
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("[%s] %s", level, message),
	}

	s.logMutex.Lock()
	s.logBuffer = append(s.logBuffer, logEntry)
	if len(s.logBuffer) > maxLogEntries {
		s.logBuffer = s.logBuffer[1:]
	}
	s.logMutex.Unlock()

	switch level {
	case "ERROR":
		s.logger.Error(message)
	case "DEBUG":
		s.logger.Debug(message)
	default:
		s.logger.Info(message)
	}
	if s.logCallback != nil {
		s.logCallback(level, message)
	}
}
