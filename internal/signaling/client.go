package signaling

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/huddle/internal/dns"
	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// wsClient manages the WebSocket connection to the relay server.
type wsClient struct {
	conn     *websocket.Conn
	incoming chan *relay.Message
	outgoing chan *relay.Message
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	readErr   error
}

// dialRelay establishes the WebSocket connection and starts the pumps.
func dialRelay(ctx context.Context, serverURL string) (*wsClient, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	// Resolve through our DNS lookup with public-resolver fallback
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		resolvedIP, err := dns.Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}

		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(resolvedIP, port))
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &wsClient{
		conn:     conn,
		incoming: make(chan *relay.Message, 32),
		outgoing: make(chan *relay.Message, 64),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// readPump reads frames from the WebSocket connection.
func (c *wsClient) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg relay.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes frames to the WebSocket connection and sends periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"))
			return
		}
	}
}

// send queues a frame for the write pump.
func (c *wsClient) send(ctx context.Context, msg *relay.Message) error {
	// A dead connection must not keep filling the queue.
	select {
	case <-c.done:
		return ErrChannelUnavailable
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrChannelUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// err returns the error that stopped the read pump, if any.
func (c *wsClient) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// close stops both pumps. Either pump exiting closes the client too.
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
