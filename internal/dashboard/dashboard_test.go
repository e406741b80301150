package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ffs/internal/event"
)

type fakeStats struct {
	Received int `json:"received"`
}

func startServer(t *testing.T) *Server {
	t.Helper()

	logger, _ := test.NewNullLogger()
	server := NewServer(Config{
		Addr:   "127.0.0.1:0",
		Stats:  func() any { return fakeStats{Received: 42} },
		Logger: logger,
	})
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		assert.NoError(t, server.Stop())
	})
	return server
}

// dial connects a client and consumes the welcome message.
func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	return conn, read(t, ctx, conn)
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestServerStartStop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	server := NewServer(Config{Addr: "127.0.0.1:0", Logger: logger})

	require.NoError(t, server.Start())
	assert.NotEqual(t, "127.0.0.1:0", server.Addr())
	require.NoError(t, server.Stop())
}

func TestServer_ListenError(t *testing.T) {
	server := startServer(t)

	logger, _ := test.NewNullLogger()
	second := NewServer(Config{Addr: server.Addr(), Logger: logger})
	assert.Error(t, second.Start())
}

func TestWebSocketWelcomeIsStats(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	assert.Equal(t, MessageTypeStats, welcome.Type)
	assert.JSONEq(t, `{"received":42}`, string(welcome.Data))
	assert.Equal(t, 1, server.ClientCount())
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		dial(t, ctx, server)
	}
	assert.Equal(t, 3, server.ClientCount())
}

func TestHandler_OnActions(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)

	logger, _ := test.NewNullLogger()
	handler := NewHandler(server, nil, logger)

	n := event.Rename("/w/a", "/w/b")
	handler.OnActions(n, event.Classify(n))

	msg := read(t, ctx, conn)
	require.Equal(t, MessageTypeAction, msg.Type)

	var data ActionData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, n.ID, data.EventID)
	assert.Equal(t, "modify(name:both)", data.Kind)
	assert.Equal(t, "Rename", data.Verb)
	assert.Equal(t, []string{"/w/a", "/w/b"}, data.Paths)
	assert.Equal(t, "Rename: /w/a → /w/b", data.Line)
}

func TestHandler_RunStats(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)

	logger, _ := test.NewNullLogger()
	handler := NewHandler(server, func() any { return fakeStats{Received: 7} }, logger)

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go handler.RunStats(statsCtx, 10*time.Millisecond)

	msg := read(t, ctx, conn)
	assert.Equal(t, MessageTypeStats, msg.Type)
	assert.JSONEq(t, `{"received":7}`, string(msg.Data))
}

func TestHealth(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Status   string    `json:"status"`
		Clients  int       `json:"clients"`
		Pipeline fakeStats `json:"pipeline"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Clients)
	assert.Equal(t, 42, body.Pipeline.Received)
}

func TestServer_StopDisconnectsClients(t *testing.T) {
	logger, _ := test.NewNullLogger()
	server := NewServer(Config{Addr: "127.0.0.1:0", Logger: logger})
	require.NoError(t, server.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	require.NoError(t, server.Stop())
	assert.Zero(t, server.ClientCount())

	_, _, err := conn.Read(ctx)
	assert.Error(t, err)

	// Broadcasting to a stopped server returns immediately.
	server.Broadcast(Message{Type: MessageTypeStats})
}
