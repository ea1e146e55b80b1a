package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trafficwatch/internal/core"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 512 // buffered channel size — drops when full
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient wraps one WebSocket connection, dispatching each inbound
// Envelope against the shared core.Controller and writing back its
// reply. Grounded on the teacher's WSClient: a buffered send channel
// drained by a dedicated writeLoop so a slow client can't block
// command dispatch.
type wsClient struct {
	conn   *websocket.Conn
	ctl    *core.Controller
	sendCh chan Envelope
	done   chan struct{}
}

func newWSClient(conn *websocket.Conn, ctl *core.Controller) *wsClient {
	c := &wsClient{
		conn:   conn,
		ctl:    ctl,
		sendCh: make(chan Envelope, sendBuffer),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsClient) send(msg Envelope) {
	select {
	case c.sendCh <- msg:
	default:
		// Buffer full: drop rather than block the read loop.
	}
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case msg, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop reads commands from the client until the connection
// closes, dispatching each against ctl and replying on sendCh.
func (c *wsClient) readLoop() {
	defer func() {
		close(c.done)
		close(c.sendCh)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in Envelope
		if err := json.Unmarshal(raw, &in); err != nil {
			c.send(errEnvelope("", core.KindInternal, "invalid message format"))
			continue
		}
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		reply := dispatch(context.Background(), c.ctl, in)
		c.send(reply)
	}
}

// HandleWebSocket upgrades the request and services commands until
// the client disconnects.
func HandleWebSocket(ctl *core.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}
		client := newWSClient(conn, ctl)
		client.readLoop()
	}
}
