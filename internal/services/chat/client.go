package chat

import "sync"

// Client is one connected socket as seen by the hub. Outbound events are
// queued on a bounded buffer drained by the transport writer.
type Client struct {
	UserID int64

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(userID int64, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		UserID: userID,
		send:   make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) Outbound() <-chan Event {
	return c.send
}

// Done is closed once the client is disconnected or evicted.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue never blocks. It reports false when the client is closed or its
// queue is full.
func (c *Client) enqueue(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}
