package live

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"go.uber.org/zap"
)

var (
	ErrInvalidChannel = errors.New("channel id and topic are required")
	ErrRegistryClosed = errors.New("live registry closed")
)

const (
	defaultShards      = 32
	defaultBuffer      = 64
	defaultIdleTimeout = 30 * time.Minute
)

// Close reasons reported to metrics and to Channel.CloseReason.
const (
	ReasonClosed   = "closed"
	ReasonReplaced = "replaced"
	ReasonSlow     = "slow_consumer"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

// Metrics observes registry activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	SetOpenChannels(n int)
	ObserveChannelClosed(reason string)
	ObservePushed(topic string, delivered int)
}

type shard struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// Registry holds live channels in lock-striped shards keyed by channel id.
// Push fans out without holding any shard lock while sending.
type Registry struct {
	shards      []*shard
	clock       clock.Clock
	log         *zap.Logger
	metrics     Metrics
	buffer      int
	idleTimeout time.Duration

	mu    sync.Mutex
	count int

	// state is read-held by Open for the whole insert so Shutdown cannot
	// sweep the shards between the closed check and the insert.
	state  sync.RWMutex
	closed bool
}

type Option func(*Registry)

func WithBuffer(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.buffer = n
		}
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

func WithShards(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.shards = newShards(n)
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

func NewRegistry(clk clock.Clock, opts ...Option) *Registry {
	r := &Registry{
		shards:      newShards(defaultShards),
		clock:       clk,
		log:         zap.NewNop(),
		metrics:     nopMetrics{},
		buffer:      defaultBuffer,
		idleTimeout: defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("live")
	return r
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{channels: make(map[string]*Channel)}
	}
	return shards
}

func (r *Registry) shardFor(channelID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// IdleTimeout is the inactivity window after which Reap drops a channel.
func (r *Registry) IdleTimeout() time.Duration {
	return r.idleTimeout
}

// Open registers a channel. Opening an id that is already registered closes
// the previous channel.
func (r *Registry) Open(channelID, topic string) (*Channel, error) {
	channelID = strings.TrimSpace(channelID)
	topic = strings.TrimSpace(topic)
	if channelID == "" || topic == "" {
		return nil, ErrInvalidChannel
	}

	r.state.RLock()
	defer r.state.RUnlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}

	ch := newChannel(channelID, topic, r.buffer, r.clock.Now())
	s := r.shardFor(channelID)

	s.mu.Lock()
	prev := s.channels[channelID]
	s.channels[channelID] = ch
	s.mu.Unlock()

	if prev != nil {
		r.finish(prev, ReasonReplaced, false)
	} else {
		r.adjust(1)
	}
	r.log.Debug("channel opened", zap.String("channel_id", channelID), zap.String("topic", topic))
	return ch, nil
}

// Push delivers msg to every open channel subscribed to topic and returns
// how many accepted it. A channel that cannot accept the message is removed.
func (r *Registry) Push(topic string, msg Message) int {
	var targets []*Channel
	for _, s := range r.shards {
		s.mu.RLock()
		for _, ch := range s.channels {
			if matches(ch.topic, topic) {
				targets = append(targets, ch)
			}
		}
		s.mu.RUnlock()
	}

	delivered := 0
	now := r.clock.Now()
	for _, ch := range targets {
		if ch.offer(msg) {
			ch.Touch(now)
			delivered++
			continue
		}
		r.remove(ch, ReasonSlow)
	}
	r.metrics.ObservePushed(topic, delivered)
	return delivered
}

// Close removes the channel. Closing an unknown or already closed id is a
// no-op.
func (r *Registry) Close(channelID string) {
	s := r.shardFor(channelID)
	s.mu.RLock()
	ch := s.channels[channelID]
	s.mu.RUnlock()
	if ch != nil {
		r.remove(ch, ReasonClosed)
	}
}

// Release removes ch only if it is still the registered channel for its id,
// so a transport exiting late cannot evict a replacement.
func (r *Registry) Release(ch *Channel) {
	r.remove(ch, ReasonClosed)
}

// Reap removes channels idle for longer than the idle timeout and returns
// how many were removed.
func (r *Registry) Reap() int {
	cutoff := r.clock.Now().Add(-r.idleTimeout)
	var stale []*Channel
	for _, s := range r.shards {
		s.mu.RLock()
		for _, ch := range s.channels {
			if ch.LastActivity().Before(cutoff) {
				stale = append(stale, ch)
			}
		}
		s.mu.RUnlock()
	}

	reaped := 0
	for _, ch := range stale {
		if r.remove(ch, ReasonIdle) {
			reaped++
		}
	}
	if reaped > 0 {
		r.log.Info("reaped idle channels", zap.Int("count", reaped))
	}
	return reaped
}

// RunReaper calls Reap every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}

// Shutdown closes every channel and rejects further opens.
func (r *Registry) Shutdown() {
	r.state.Lock()
	r.closed = true
	r.state.Unlock()

	for _, s := range r.shards {
		s.mu.Lock()
		channels := s.channels
		s.channels = make(map[string]*Channel)
		s.mu.Unlock()
		for _, ch := range channels {
			r.finish(ch, ReasonShutdown, true)
		}
	}
}

// Len returns the number of open channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Registry) remove(ch *Channel, reason string) bool {
	s := r.shardFor(ch.id)
	s.mu.Lock()
	current, ok := s.channels[ch.id]
	if ok && current == ch {
		delete(s.channels, ch.id)
	}
	s.mu.Unlock()
	if !ok || current != ch {
		return false
	}
	return r.finish(ch, reason, true)
}

func (r *Registry) finish(ch *Channel, reason string, decrement bool) bool {
	if !ch.close(reason) {
		return false
	}
	if decrement {
		r.adjust(-1)
	}
	r.metrics.ObserveChannelClosed(reason)
	r.log.Debug("channel closed",
		zap.String("channel_id", ch.id),
		zap.String("topic", ch.topic),
		zap.String("reason", reason),
	)
	return true
}

func (r *Registry) adjust(delta int) {
	r.mu.Lock()
	r.count += delta
	n := r.count
	r.mu.Unlock()
	r.metrics.SetOpenChannels(n)
}

type nopMetrics struct{}

func (nopMetrics) SetOpenChannels(int)         {}
func (nopMetrics) ObserveChannelClosed(string) {}
func (nopMetrics) ObservePushed(string, int)   {}
