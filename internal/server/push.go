package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/events"
	"github.com/muurk/printhost/internal/logging"
	"github.com/muurk/printhost/internal/version"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// pushMessage is one frame on the push socket. Exactly one field is set.
type pushMessage struct {
	Connected *connectedPayload `json:"connected,omitempty"`
	Event     *events.Event     `json:"event,omitempty"`
}

type connectedPayload struct {
	Version string `json:"version"`
}

// pushHub streams bus events to websocket clients
type pushHub struct {
	bus      *events.Bus
	upgrader websocket.Upgrader
	conns    *xsync.MapOf[*websocket.Conn, string]
	log      *zap.Logger
}

func newPushHub(bus *events.Bus, log *zap.Logger) *pushHub {
	return &pushHub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: xsync.NewMapOf[*websocket.Conn, string](),
		log:   log,
	}
}

// Connections returns the number of open push sockets
func (h *pushHub) Connections() int {
	return h.conns.Size()
}

func (h *pushHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Push socket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	remoteAddr := r.RemoteAddr

	h.conns.Store(conn, remoteAddr)
	logging.LogConnection(remoteAddr, "push_connected")

	sub, cancel := h.bus.Subscribe(0)
	defer func() {
		cancel()
		h.conns.Delete(conn)
		_ = conn.Close()
		logging.LogConnection(remoteAddr, "push_closed")
	}()

	go h.readLoop(conn, cancel)

	if err := h.write(conn, remoteAddr, "connected", pushMessage{Connected: &connectedPayload{Version: version.Version}}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			if err := h.write(conn, remoteAddr, string(e.Type), pushMessage{Event: &e}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop drains the client side so control frames are processed and
// cancels the subscription once the peer goes away
func (h *pushHub) readLoop(conn *websocket.Conn, cancel func()) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *pushHub) write(conn *websocket.Conn, remoteAddr, kind string, msg pushMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.log.Debug("Push write failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
		return err
	}
	logging.LogPushMessage(remoteAddr, kind, data)
	return nil
}

// closeAll closes every open push socket
func (h *pushHub) closeAll() {
	h.conns.Range(func(conn *websocket.Conn, remoteAddr string) bool {
		h.log.Info("Closing push socket", zap.String("remote_addr", remoteAddr))
		_ = conn.Close()
		return true
	})
}
