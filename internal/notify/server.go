package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
)

// MessageType defines the type of a broadcast message.
type MessageType string

const (
	// MessageTypeRefresh means task contents changed.
	MessageTypeRefresh MessageType = "refresh"

	// MessageTypeRefreshList means the set of lists or accounts changed.
	MessageTypeRefreshList MessageType = "refresh_list"

	// MessageTypeSyncStatus carries the device provider's sync status.
	MessageTypeSyncStatus MessageType = "sync_status"

	// MessageTypeSyncComplete is sent after a sync run.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeHello is sent to every client when it connects.
	MessageTypeHello MessageType = "hello"
)

// Message is the JSON envelope sent to websocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncStatusData is the payload of MessageTypeSyncStatus.
type SyncStatusData struct {
	Active bool `json:"active"`
}

// SyncCompleteData is the payload of MessageTypeSyncComplete.
type SyncCompleteData struct {
	Urgent   bool          `json:"urgent"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Server broadcasts change notifications to websocket clients.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message
	sent      map[MessageType]int
	sentMu    sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Addr to listen on (default ":7433"). Use "127.0.0.1:0" for a random port.
	Addr string

	Logger *log.Logger
}

// DefaultAddr is the listen address used when Config.Addr is empty.
const DefaultAddr = ":7433"

// NewServer creates a notification server. Call Start to listen.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      cfg.Addr,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		sent:      make(map[MessageType]int),
		ctx:       ctx,
		cancel:    cancel,
		logger:    cfg.Logger.WithPrefix("notify"),
	}
}

// Start begins serving /ws and /health.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()

	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Info("stopped")
	return nil
}

// NotifyTasksChanged broadcasts a task refresh.
func (s *Server) NotifyTasksChanged() {
	s.Broadcast(Message{Type: MessageTypeRefresh})
}

// NotifyListsChanged broadcasts a list refresh.
func (s *Server) NotifyListsChanged() {
	s.Broadcast(Message{Type: MessageTypeRefreshList})
}

// NotifySyncStatus broadcasts the device provider's sync status.
func (s *Server) NotifySyncStatus(active bool) {
	s.broadcastData(MessageTypeSyncStatus, SyncStatusData{Active: active})
}

// NotifySyncComplete broadcasts the outcome of a sync run.
func (s *Server) NotifySyncComplete(urgent bool, d time.Duration, err error) {
	data := SyncCompleteData{Urgent: urgent, Duration: d}
	if err != nil {
		data.Error = err.Error()
	}
	s.broadcastData(MessageTypeSyncComplete, data)
}

func (s *Server) broadcastData(typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal message data", "type", typ, "err", err)
		return
	}
	s.Broadcast(Message{Type: typ, Data: data})
}

// Broadcast queues msg for every connected client. It never blocks; when
// the queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.broadcast <- msg:
	default:
		s.logger.Warn("broadcast queue full, dropping message", "type", msg.Type)
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal message", "err", err)
				continue
			}

			s.sentMu.Lock()
			s.sent[msg.Type]++
			s.sentMu.Unlock()

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Debug("failed to send to client", "err", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debug("client connected", "clients", clientCount)

	hello, _ := json.Marshal(Message{Type: MessageTypeHello, Timestamp: time.Now()})
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, hello)
	cancel()

	go s.readLoop(conn)
}

// readLoop only detects disconnects; clients never send anything useful.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Debug("client disconnected", "clients", clientCount)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sentMu.Lock()
	sent := make(map[MessageType]int, len(s.sent))
	for k, v := range s.sent {
		sent[k] = v
	}
	s.sentMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"sent":    sent,
	})
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
