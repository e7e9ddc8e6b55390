package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/orehub/metalx/internal/notify"
	"github.com/orehub/metalx/internal/utils"
)

// LiveHandler bridges the Redis pub/sub event stream onto websockets so
// marketplace clients can follow auctions in real time.  Each
// connection gets its own subscription; a slow or dead client only ever
// loses its own messages.
type LiveHandler struct {
	Broadcaster *notify.RedisBroadcaster
	upgrader    websocket.Upgrader
}

func NewLiveHandler(b *notify.RedisBroadcaster) *LiveHandler {
	return &LiveHandler{
		Broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens ride in the query string for websockets, so origin
			// checking is left to the deployment's reverse proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

const (
	liveWriteWait  = 10 * time.Second
	livePingPeriod = 30 * time.Second
)

// Stream handles GET /v1/live and GET /v1/auctions/:id/live.  Without
// an id the socket carries every auction event on the marketplace.
func (h *LiveHandler) Stream(c echo.Context) error {
	if h.Broadcaster == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "live updates unavailable"})
	}
	channel := notify.ChannelGlobal
	if c.Param("id") != "" {
		id, ok := pathID(c, "id")
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
		}
		channel = notify.ChannelAuction(id)
	}

	sub := h.Broadcaster.Subscribe(c.Request().Context(), channel)
	if sub == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "live updates unavailable"})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		_ = sub.Close()
		return err
	}

	log := utils.Logger("handler", "Stream").WithField("channel", channel)
	defer func() {
		_ = sub.Close()
		_ = conn.Close()
	}()

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()
	events := sub.Channel()
	for {
		select {
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case msg, ok := <-events:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.WithError(err).Debug("websocket write failed")
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
