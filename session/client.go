package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	sendBufferSize = 256
	pingInterval   = 30 * time.Second
)

type packetRouter interface {
	Deliver(sessionID string, from *Client, packet ClientPacket)
	Detach(sessionID string, from *Client)
}

// Client is one live transport connection bound to a user inside a session.
type Client struct {
	id        string
	userID    string
	username  string
	sessionID string

	socket      WebsocketConnection
	rateLimiter *rate.Limiter
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	closeReason string
}

func NewClient(userID, username, sessionID string, socket WebsocketConnection) *Client {
	return &Client{
		id:          uuid.NewString(),
		userID:      userID,
		username:    username,
		sessionID:   sessionID,
		socket:      socket,
		rateLimiter: rate.NewLimiter(2, 5),
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) UserID() string   { return c.userID }
func (c *Client) Username() string { return c.username }

// Send queues data for the write pump without blocking.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrActorStopped
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close marks the client as finished and returns at once. The write pump
// sends the close frame and tears the socket down on its own goroutine.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

func (c *Client) ReadPump(router packetRouter) {
	defer func() {
		router.Detach(c.sessionID, c)
		c.Close("")
	}()

	for {
		data, err := c.socket.Read()
		if err != nil {
			return
		}

		if !c.rateLimiter.Allow() {
			continue
		}

		var packet ClientPacket
		if err := json.Unmarshal(data, &packet); err != nil || packet.Type == "" {
			continue
		}

		router.Deliver(c.sessionID, c, packet)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close("")
		// closeReason is set before done is closed.
		c.socket.Close(c.closeReason)
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.socket.Write(data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.socket.Ping(); err != nil {
				return
			}
		}
	}
}
