package dashboard

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/steveyegge/ffs/internal/event"
	"github.com/steveyegge/ffs/internal/logging"
)

// ActionData is the payload of an action message.
type ActionData struct {
	EventID string   `json:"event_id"`
	Kind    string   `json:"kind"`
	Verb    string   `json:"verb"`
	Paths   []string `json:"paths"`
	Line    string   `json:"line"`
}

// Handler turns processed notifications into dashboard messages. It
// implements process.Observer and never blocks the processor.
type Handler struct {
	server *Server
	stats  StatsFunc
	logger logrus.FieldLogger
}

// NewHandler creates a handler broadcasting through server. stats may be nil.
func NewHandler(server *Server, stats StatsFunc, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logging.Log()
	}
	if stats == nil {
		stats = server.stats
	}
	return &Handler{server: server, stats: stats, logger: logger}
}

// OnActions broadcasts one action message per action.
func (h *Handler) OnActions(n event.Notification, actions []event.Action) {
	for _, action := range actions {
		msg, err := newMessage(MessageTypeAction, ActionData{
			EventID: n.ID,
			Kind:    n.Kind.String(),
			Verb:    string(action.Verb),
			Paths:   action.Paths,
			Line:    action.String(),
		})
		if err != nil {
			h.logger.Warn(err)
			continue
		}
		h.server.Broadcast(msg)
	}
}

// BroadcastStats sends the current stats snapshot.
func (h *Handler) BroadcastStats() {
	msg, err := newMessage(MessageTypeStats, h.stats())
	if err != nil {
		h.logger.Warn(err)
		return
	}
	h.server.Broadcast(msg)
}

// RunStats broadcasts stats every interval until ctx is done.
func (h *Handler) RunStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastStats()
		}
	}
}
