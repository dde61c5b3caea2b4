// Package dashboard serves a WebSocket feed that tells connected views when
// a reconciliation pass has changed tasks.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// MessageType is the type of a feed message.
type MessageType string

const (
	// MessageTypeTaskUpdate is sent for every task a pass created or updated
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeSyncComplete is sent once per finished pass
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeHello is the first message a new client receives
	MessageTypeHello MessageType = "hello"
)

// Message is one feed message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TaskUpdateData describes one task a pass touched.
type TaskUpdateData struct {
	TaskID          string   `json:"task_id"`
	Action          string   `json:"action"` // created, updated
	SourceAccountID string   `json:"source_account_id"`
	ExternalID      string   `json:"external_id"`
	Lists           []string `json:"lists,omitempty"`
}

// SyncCompleteData summarizes a finished pass.
type SyncCompleteData struct {
	SourceAccountID string        `json:"source_account_id"`
	Owner           string        `json:"owner"`
	Phase           string        `json:"phase"`
	New             int           `json:"new"`
	Updated         int           `json:"updated"`
	Unchanged       int           `json:"unchanged"`
	Failed          int           `json:"failed"`
	Error           string        `json:"error,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on. Zero picks a free port.
	Port int

	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Port: 8080, Logger: zerolog.Nop()}
}

// Server manages WebSocket clients and fans messages out to them.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger zerolog.Logger
}

// NewServer creates a server. Start must be called before clients can connect.
func NewServer(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", cfg.Port),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    cfg.Logger.With().Str("component", "dashboard").Logger(),
	}
}

// Start listens and serves /ws and /health in the background.
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
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("dashboard listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("dashboard server error")
		}
	}()

	return nil
}

// Stop closes every client and shuts the server down. Safe to call twice.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
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
			if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
				err = fmt.Errorf("server shutdown error: %w", shutdownErr)
			}
		}

		s.wg.Wait()
		s.logger.Info().Msg("dashboard stopped")
	})
	return err
}

// Broadcast queues msg for every connected client. A full queue drops msg.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn().Str("type", string(msg.Type)).Msg("broadcast queue full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error().Err(err).Msg("failed to marshal message")
				continue
			}

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
					s.logger.Debug().Err(err).Msg("failed to send to client")
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
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	hello, _ := json.Marshal(Message{Type: MessageTypeHello, Timestamp: time.Now()})
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, hello)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	// Registered after the hello so a broadcast can never overtake it.
	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debug().Int("clients", count).Msg("client connected")

	go s.readLoop(conn)
}

// readLoop drains the connection until the client goes away.
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
	_, exists := s.clients[conn]
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Debug().Int("clients", count).Msg("client disconnected")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
