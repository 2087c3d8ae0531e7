package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/wager_layer/internal/engine/events"
	"github.com/R3E-Network/wager_layer/internal/middleware"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBacklog    = 64
)

// newUpgrader accepts browser origins on the CORS allow-list or on the same
// host as the request. Requests without an Origin header come from non-browser
// clients and are accepted.
func newUpgrader(cors *middleware.CORSMiddleware) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if cors != nil && cors.AllowsOrigin(origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1000)
	q := r.URL.Query()

	var out []events.Event
	switch {
	case q.Get("type") != "":
		out = h.events.RecentByType(events.EventType(q.Get("type")), limit)
	case q.Get("player") != "":
		out = h.events.RecentByPlayer(q.Get("player"), limit)
	default:
		out = h.events.Recent(limit)
	}
	if out == nil {
		out = []events.Event{}
	}
	writeJSON(w, http.StatusOK, out)
}

// streamEvents pushes every new event to a WebSocket client. Slow clients
// drop events rather than stall the publisher.
func (h *handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	filter := events.EventType(r.URL.Query().Get("type"))
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	feed := make(chan events.Event, wsBacklog)
	unsubscribe := h.events.SubscribeFiltered(func(e events.Event) bool {
		return filter == "" || e.Type == filter
	}, func(e events.Event) {
		select {
		case feed <- e:
		default:
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e := <-feed:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
