// Package dashboard serves a live WebSocket view of the pipeline.
//
// Connected clients receive one message per classified action and a
// periodic stats message with dispatcher and processor counters.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/steveyegge/ffs/internal/logging"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeAction carries one classified action.
	MessageTypeAction MessageType = "action"

	// MessageTypeStats carries a pipeline stats snapshot.
	MessageTypeStats MessageType = "stats"
)

const (
	// broadcastBuffer is the number of messages queued for fan-out. Broadcast
	// drops messages once it is full rather than stall the caller.
	broadcastBuffer = 100

	// clientBuffer is the number of encoded messages queued per client. A
	// client that falls this far behind misses messages.
	clientBuffer = 16

	writeTimeout = 5 * time.Second
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatsFunc returns a JSON-encodable snapshot of pipeline counters.
type StatsFunc func() any

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	stats    StatsFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	stopped bool

	broadcast chan Message
	dropped   atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger logrus.FieldLogger
}

// client is one connected browser with its own outgoing queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Config holds server configuration
type Config struct {
	// Addr to listen on, host:port. Port 0 picks a free port.
	Addr string

	// Stats is reported by /health and the welcome message. Optional.
	Stats StatsFunc

	// Logger defaults to the process logger.
	Logger logrus.FieldLogger
}

// NewServer creates a new dashboard WebSocket server
func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logging.Log()
	}
	stats := config.Stats
	if stats == nil {
		stats = func() any { return nil }
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      config.Addr,
		stats:     stats,
		clients:   make(map[*client]struct{}),
		broadcast: make(chan Message, broadcastBuffer),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Stop cancels every request, including upgraded ones.
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}

	s.wg.Add(2)
	go s.fanOut()
	go func() {
		defer s.wg.Done()
		s.logger.Infof("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Dashboard server error: %v", err)
		}
	}()

	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Debug("Stopping dashboard server")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("dashboard shutdown: %w", shutdownErr)
		}
	}

	s.wg.Wait()
	return err
}

// Broadcast queues msg for every connected client. It never blocks.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.dropped.Add(1)
		s.logger.Debug("Dashboard broadcast channel full, dropping message")
	}
}

// fanOut encodes each broadcast once and hands it to every client queue.
func (s *Server) fanOut() {
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
				s.logger.Warnf("Failed to marshal dashboard message: %v", err)
				continue
			}

			s.mu.Lock()
			for c := range s.clients {
				select {
				case c.send <- data:
				default:
					s.dropped.Add(1)
				}
			}
			s.mu.Unlock()
		}
	}
}

// handleWebSocket serves one client for the lifetime of its connection.
// Client messages are read and discarded so close frames are noticed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Debugf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	// The welcome message is the current stats snapshot.
	if welcome, err := newMessage(MessageTypeStats, s.stats()); err == nil {
		if data, err := json.Marshal(welcome); err == nil {
			c.send <- data
		}
	}

	if !s.register(c) {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		return
	}
	defer s.unregister(c)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Debugf("Failed to send to dashboard client: %v", err)
				return
			}
		}
	}
}

// register adds c unless the server is stopping.
func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	s.logger.Debugf("Dashboard client connected (total: %d)", len(s.clients))
	return true
}

func (s *Server) unregister(c *client) {
	defer s.wg.Done()

	s.mu.Lock()
	delete(s.clients, c)
	total := len(s.clients)
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		_ = c.conn.Close(websocket.StatusGoingAway, "Server shutting down")
	} else {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
	s.logger.Debugf("Dashboard client disconnected (total: %d)", total)
}

// Health is the /health response body.
type Health struct {
	Status   string `json:"status"`
	Clients  int    `json:"clients"`
	Dropped  uint64 `json:"dropped"`
	Pipeline any    `json:"pipeline,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:   "ok",
		Clients:  s.ClientCount(),
		Dropped:  s.dropped.Load(),
		Pipeline: s.stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>ffs dashboard</title>
</head>
<body>
    <h1>ffs dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// Addr returns the listening address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func newMessage(typ MessageType, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s data: %w", typ, err)
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: raw}, nil
}
