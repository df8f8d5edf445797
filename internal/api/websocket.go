package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/MahyudeenShahid/trade-analysis/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteWait = 5 * time.Second

type wsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// websocket streams a status frame every second plus trade and snapshot
// frames fanned out from the event bus. Auth via ?token= (the API key or a
// JWT) or the usual Authorization header. A client that cannot keep up is
// dropped rather than back-pressuring the engine.
func (s *Server) websocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = bearerToken(c)
	}
	if !keyMatches(token, s.Cfg.APIKey) {
		if _, err := parseToken(token, s.Cfg.JWTSecret); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_TOKEN",
				"error": "invalid or expired token",
			})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if s.Metrics != nil {
		s.Metrics.AddWSClient(1)
		defer s.Metrics.AddWSClient(-1)
	}

	trades, unsubTrades := s.Bus.Subscribe(events.EventTradeRecord, 64)
	defer unsubTrades()
	snapshots, unsubSnapshots := s.Bus.Subscribe(events.EventSnapshot, 64)
	defer unsubSnapshots()

	// Reader only detects disconnects; clients send nothing meaningful.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if s.writeFrame(conn, s.statusFrame()) != nil {
				return
			}
		case msg, ok := <-trades:
			if !ok {
				return
			}
			if s.writeFrame(conn, wsFrame{Type: "trade", Data: msg}) != nil {
				return
			}
		case msg, ok := <-snapshots:
			if !ok {
				return
			}
			if s.writeFrame(conn, wsFrame{Type: "snapshot", Data: msg}) != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(frame)
}

func (s *Server) statusFrame() gin.H {
	frame := gin.H{
		"type":           "status",
		"timestamp":      time.Now().UTC(),
		"node_id":        s.Meta.NodeID,
		"uptime_seconds": int64(time.Since(s.Meta.StartedAt).Seconds()),
		"bots":           s.Store.Summaries(),
	}
	if s.Metrics != nil {
		snap := s.Metrics.GetSnapshot()
		frame["metrics"] = gin.H{
			"ticks_processed": snap.TicksProcessed,
			"trades_recorded": snap.TradesRecorded,
			"ws_clients":      snap.WSClients,
		}
	}
	return frame
}
