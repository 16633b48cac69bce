// Package socket maintains the push connection to the chat backend and
// feeds decoded events into the router. Connection state transitions
// drive the router's resync hook.
package socket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carousell/ct-go/pkg/logger"
	"github.com/gorilla/websocket"

	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/router"
)

var log = logger.MustNamed("socket")

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	writeWait      = 10 * time.Second
)

type Client struct {
	conf   config.Socket
	apiKey string
	router *router.Router
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(conf *config.Config, rt *router.Router) *Client {
	return &Client{
		conf:   conf.Socket,
		apiKey: conf.ChatAPI.APIKey,
		router: rt,
		done:   make(chan struct{}),
	}
}

// Start runs the connect loop until Stop is called. Each dial failure
// or dropped connection backs off exponentially up to maxBackoff; a
// successful read resets the backoff.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go c.run(ctx)
}

func (c *Client) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	backoff := initialBackoff
	for {
		if err := c.connectAndRead(ctx, &backoff); err != nil {
			log.Warnw(ctx, "socket connection lost", "error", err)
		}
		c.router.SetConnected(ctx, false)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Client) connectAndRead(ctx context.Context, backoff *time.Duration) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.conf.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := c.authenticate(conn); err != nil {
		return err
	}
	log.Infow(ctx, "socket connected", "url", c.conf.URL)
	c.router.SetConnected(ctx, true)

	stopPing := c.keepAlive(ctx, conn)
	defer stopPing()

	for {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		*backoff = initialBackoff
		c.dispatch(ctx, payload)
	}
}

func (c *Client) authenticate(conn *websocket.Conn) error {
	auth := map[string]string{"type": "auth", "api_key": c.apiKey}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(auth)
}

func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) func() {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	ticker := time.NewTicker(pingPeriod)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

func (c *Client) dispatch(ctx context.Context, payload []byte) {
	var ev models.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Warnw(ctx, "drop undecodable event", "error", err, "payload", string(payload))
		return
	}
	if ev.Type == "" {
		// health checks and acks arrive on the same stream
		return
	}
	if err := c.router.Apply(ctx, ev); err != nil {
		log.Errorw(ctx, "apply event", "error", err, "type", ev.Type, "cid", ev.CID)
	}
}
