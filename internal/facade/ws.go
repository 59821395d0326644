package facade

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/events"
)

// webSocketBufferSize bounds each client's outbound queue, grounded on
// the teacher's internal/server/hub.go WebSocketBufferSize constant.
const webSocketBufferSize = 256

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// wsClient is one connected WebSocket subscriber, adapted from the
// teacher's Client type.
type wsClient struct {
	hub  *wsHub
	conn *websocket.Conn
	send chan []byte
}

// wsHub fans events.Bus events out to every connected client, adapted
// from the teacher's Hub type.
type wsHub struct {
	mu         sync.Mutex
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
}

func newWSHub() *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, webSocketBufferSize),
	}
}

func (h *wsHub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// checkOrigin allows localhost and same-origin requests, mirroring the
// teacher's checkWebSocketOrigin CSRF guard without its extra env-var
// allowlist (the fabric has no equivalent deployment config surface).
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || strings.EqualFold(host, r.Host)
}

var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

// handleWebSocket upgrades the connection and streams every Bus event
// to the client as JSON until it disconnects.
func (f *Facade) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{hub: f.wsHub(), conn: conn, send: make(chan []byte, webSocketBufferSize)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// wsHub lazily constructs and starts the Facade's single WebSocket hub.
func (f *Facade) wsHub() *wsHub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hub != nil {
		return f.hub
	}
	h := newWSHub()
	f.hub = h
	go h.run()
	if f.bus != nil {
		ch := f.bus.Subscribe("all", nil)
		go func() {
			for ev := range ch {
				if b, err := marshalEvent(ev); err == nil {
					h.broadcast <- b
				}
			}
		}()
	}
	return h
}

func marshalEvent(ev events.Event) ([]byte, error) {
	return json.Marshal(ev)
}
