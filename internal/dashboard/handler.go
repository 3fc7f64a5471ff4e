package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/aqademiq/aqsync/internal/sync"
)

// Handler bridges engine lifecycle events to the WebSocket server. It
// implements sync.EventSink and is handed to the daemon so every engine
// reports through it.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// SyncEvent implements sync.EventSink. The engine calls this inline, so it
// only marshals and hands off to the buffered broadcast channel.
func (h *Handler) SyncEvent(ev sync.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Printf("Failed to marshal sync event: %v", err)
		return
	}
	h.server.Broadcast(Message{
		Type:      MessageTypeSyncEvent,
		Timestamp: time.Now(),
		Data:      data,
	})
}
