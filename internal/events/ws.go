package events

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ksred/papertrade/internal/auth"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// OrderStream serves the authenticated user's order events over a websocket
type OrderStream struct {
	bus      *Bus
	upgrader websocket.Upgrader
}

func NewOrderStream(bus *Bus, origin string) *OrderStream {
	return &OrderStream{
		bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

// Handler must run behind the JWT middleware
func (s *OrderStream) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Uint("user_id", userID).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		logger := log.With().Str("component", "order_stream").Uint("user_id", userID).Logger()
		logger.Debug().Msg("client connected")

		events := s.bus.Subscribe(userID)
		defer s.bus.Unsubscribe(events)

		done := make(chan struct{})
		go func() {
			defer close(done)
			conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(evt); err != nil {
					logger.Debug().Err(err).Msg("write failed, closing stream")
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				logger.Debug().Msg("client disconnected")
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" || origin == "*" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Origin"), origin)
}
