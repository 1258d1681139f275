package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mtr002/Crawl-Queue/internal/interfaces"
	"github.com/mtr002/Crawl-Queue/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

// NotifyJobUpdate broadcasts a job state change to all connected clients.
// It satisfies the worker pool's Notifier interface.
func (h *Hub) NotifyJobUpdate(job *interfaces.Job) {
	message, err := json.Marshal(map[string]any{
		"type": "job_update",
		"data": job,
	})
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("Failed to marshal job update")
		return
	}

	h.Broadcast(message)
}
