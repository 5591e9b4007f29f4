package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/drishti/internal/app"
)

const (
	clientQueueSize = 8
	writeTimeout    = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Subscriber provides frame events.
type Subscriber interface {
	Subscribe(buffer int) *app.Subscription
}

// DetectionsHandler pushes a JSON message per annotated frame to every
// connected WebSocket client. Slow clients miss events rather than stall the
// frame loop.
type DetectionsHandler struct {
	events Subscriber
}

// NewDetectionsHandler creates a DetectionsHandler fed by events.
func NewDetectionsHandler(events Subscriber) *DetectionsHandler {
	return &DetectionsHandler{events: events}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *DetectionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.events.Subscribe(clientQueueSize)
	defer sub.Close()

	// Reading is required to process control frames; a read error means the
	// client went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Debug("detections client connected", "remote", r.RemoteAddr)
	defer func() {
		slog.Debug("detections client disconnected", "remote", r.RemoteAddr, "dropped", sub.Dropped())
	}()

	for {
		select {
		case <-gone:
			return
		case e, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
