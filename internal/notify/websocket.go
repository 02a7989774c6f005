package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 32
)

// Envelope is the frame written to websocket clients.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// ServeWebSocket upgrades the request and streams userID's notifications to
// it until either side goes away.
func (h *Hub) ServeWebSocket(w http.ResponseWriter, r *http.Request, userID string, checkOrigin func(*http.Request) bool) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	logger := h.logger.With(zap.String("userID", userID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Envelope, sendBufferSize)
	out <- Envelope{Type: "CONNECTION_ESTABLISHED", Timestamp: time.Now().Unix(), Data: map[string]string{"userId": userID}}

	go readPump(conn, cancel, logger)
	go func() {
		err := h.Stream(ctx, userID, func(n Notification) error {
			select {
			case out <- Envelope{Type: "NOTIFICATION", Timestamp: time.Now().Unix(), Data: n}:
			default:
				logger.Warn("notification dropped, client too slow", zap.String("id", n.ID))
			}
			return nil
		})
		if err != nil {
			logger.Warn("notification stream ended", zap.Error(err))
		}
		cancel()
	}()

	writePump(ctx, conn, out, logger)
}

// readPump discards client frames and cancels the stream once the peer closes.
func readPump(conn *websocket.Conn, cancel context.CancelFunc, logger *zap.Logger) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, out <-chan Envelope, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case env := <-out:
			payload, err := json.Marshal(env)
			if err != nil {
				logger.Warn("encode websocket frame", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
