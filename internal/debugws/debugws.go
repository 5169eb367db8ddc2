// Package debugws mirrors a session's message stream to a local WebSocket
// for interactive inspection during development. It is a thin adaptation
// of wingedpig-trellis's terminal WebSocket bridge
// (internal/api/handlers/terminal.go): the same upgrade/ping-keepalive
// shape, narrowed from a full bidirectional terminal to a read-only
// mirror of this supervisor's already-parsed message buffer. It is not
// part of the tool-call surface and exists only to give a developer a way
// to watch a session live.
package debugws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/happyclaw/supervisor/internal/logging"
	"github.com/happyclaw/supervisor/internal/session"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	pollInterval = 200 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Local development tool: any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler serves GET /debug/ws?session=<id>, streaming new messages for
// that session as plain-text WebSocket frames until the client
// disconnects or the session is unknown to owner.
type Handler struct {
	mgr   *session.Manager
	owner string
}

// NewHandler creates a Handler scoped to owner: the debug surface mirrors
// only sessions owner is recorded as owning, the same ACL check every
// other SessionManager operation goes through.
func NewHandler(mgr *session.Manager, owner string) *Handler {
	return &Handler{mgr: mgr, owner: owner}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if _, err := h.mgr.Get(h.owner, sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger().Debug().Err(err).Msg("debugws: upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var writeMu sync.Mutex

	// A connected client that never sends anything still needs its
	// ReadMessage loop running so a close frame or dropped connection is
	// observed; discard whatever it sends.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()

	cursor := 0
	for {
		select {
		case <-closed:
			return
		case <-pingTicker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-pollTicker.C:
			msgs, next, err := h.mgr.ReadMessages(h.owner, sessionID, cursor, 0)
			if err != nil {
				return
			}
			cursor = next
			for _, m := range msgs {
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, []byte(m.Content))
				writeMu.Unlock()
				if werr != nil {
					return
				}
			}
		}
	}
}
