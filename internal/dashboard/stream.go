package dashboard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans dashboard_update events out to every connected websocket client
// at a fixed interval (§6 "streaming channel ... emits dashboard_update
// events at a fixed refresh interval").
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	conn.Close()
}

func (h *hub) broadcast(payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(payload); err != nil {
			log.Warn().Err(err).Msg("dashboard: dropping unresponsive stream client")
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Run broadcasts a dashboard_update to all connected clients every
// refreshInterval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, refreshInterval time.Duration) {
	if refreshInterval <= 0 {
		refreshInterval = 30 * time.Second
	}
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			userCount, err := s.users.Count(ctx)
			if err != nil {
				userCount = 0
			}
			s.hub.broadcast(gin.H{
				"event":     "dashboard_update",
				"timestamp": time.Now().UTC(),
				"metrics":   Metrics(ctx, userCount),
			})
		}
	}
}

func (s *Service) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("dashboard: websocket upgrade failed")
		return
	}
	s.hub.add(conn)
	defer s.hub.remove(conn)

	// Drain and discard incoming frames; this channel is push-only from
	// the server's side. Reading keeps the connection's control frames
	// (ping/close) flowing until the client disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
