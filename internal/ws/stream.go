// Package ws streams Live Delivery Bus subscriptions to websocket clients.
package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"collabhub/internal/bus"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriber is satisfied by *bus.Broker.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, predicate bus.Predicate) *bus.Subscription
}

// Frame is what a client receives for every event.
type Frame struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

type client struct {
	id   string
	conn *websocket.Conn
	sub  *bus.Subscription
}

// Stream upgrades the request and forwards every matching event on topic until
// either side goes away. The predicate sees the request context, so it can
// read the caller identity.
func Stream(w http.ResponseWriter, r *http.Request, broker Subscriber, topic string, predicate bus.Predicate) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] upgrade failed on %s: %v", r.URL.Path, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		sub:  broker.Subscribe(ctx, topic, predicate),
	}
	log.Printf("[WebSocket] %s subscribed to %s", c.id, topic)

	go c.writePump()
	c.readPump()
}

// readPump only watches for close and pong frames; clients never send data.
func (c *client) readPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
		log.Printf("[WebSocket] %s disconnected from %s", c.id, c.sub.Topic())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] read error for %s: %v", c.id, err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.sub.C():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(Frame{Topic: c.sub.Topic(), Data: payload}); err != nil {
				log.Printf("[WebSocket] write to %s failed: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
