package live

import (
	"sync"
	"sync/atomic"
	"time"
)

// Message is one frame pushed to a live channel.
type Message struct {
	ID    string
	Event string
	Data  []byte
}

// Channel is a registered push subscription. The transport drains Messages
// until Done is closed.
type Channel struct {
	id    string
	topic string

	messages     chan Message
	done         chan struct{}
	closeOnce    sync.Once
	lastActivity atomic.Int64
	reason       atomic.Value
}

func newChannel(id, topic string, buffer int, now time.Time) *Channel {
	c := &Channel{
		id:       id,
		topic:    topic,
		messages: make(chan Message, buffer),
		done:     make(chan struct{}),
	}
	c.Touch(now)
	return c
}

func (c *Channel) ID() string    { return c.id }
func (c *Channel) Topic() string { return c.topic }

func (c *Channel) Messages() <-chan Message { return c.messages }

// Done is closed once the channel has been removed from the registry.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Touch records activity, such as a successful write or heartbeat.
func (c *Channel) Touch(now time.Time) {
	c.lastActivity.Store(now.UnixNano())
}

func (c *Channel) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// CloseReason reports why the registry dropped the channel, or "" while open.
func (c *Channel) CloseReason() string {
	r, _ := c.reason.Load().(string)
	return r
}

// offer enqueues msg without blocking. It returns false when the channel is
// closed or its buffer is full.
func (c *Channel) offer(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.messages <- msg:
		return true
	default:
		return false
	}
}

func (c *Channel) close(reason string) bool {
	closed := false
	c.closeOnce.Do(func() {
		c.reason.Store(reason)
		close(c.done)
		closed = true
	})
	return closed
}

// matches reports whether a subscription topic receives pushes for topic. A
// trailing "*" subscribes to every topic with that prefix.
func matches(subscription, topic string) bool {
	if subscription == topic {
		return true
	}
	n := len(subscription)
	if n == 0 || subscription[n-1] != '*' {
		return false
	}
	prefix := subscription[:n-1]
	return len(topic) >= len(prefix) && topic[:len(prefix)] == prefix
}
