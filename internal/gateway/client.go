package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig tunes the websocket pumps.
type ConnectionConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 256,
	}
}

// Client is one websocket connection bound to a session id. The read pump
// feeds inbound events to the handler; the write pump drains the send
// buffer and keeps the connection alive with pings.
type Client struct {
	id     string
	roomID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	handler *Handler
	cfg     ConnectionConfig
}

func newClient(id string, conn *websocket.Conn, handler *Handler, cfg ConnectionConfig) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, cfg.SendBufferSize),
		done:    make(chan struct{}),
		handler: handler,
		cfg:     cfg,
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("session_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("session_id", c.id).Msg("websocket ping failed")
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.handler.hub.unregister(c)
		c.close()
		if err := c.handler.game.Disconnect(context.Background(), c.id); err != nil {
			log.Error().Err(err).Str("session_id", c.id).Msg("disconnect reconciliation failed")
		}
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		c.handler.dispatch(c, message)
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}
