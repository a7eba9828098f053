package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/Agbobli5373/grocery-shop/internal/live"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultHeartbeat = 15 * time.Second
	retryMillis      = 3000
	channelIDParam   = "channel_id"
)

// LiveRegistry is the part of live.Registry the stream handlers use.
type LiveRegistry interface {
	Open(channelID, topic string) (*live.Channel, error)
	Release(ch *live.Channel)
}

// Streams serves server-sent event streams backed by live channels.
type Streams struct {
	registry  LiveRegistry
	orders    OrderReader
	inventory InventoryService
	clock     clock.Clock
	log       *zap.Logger
	heartbeat time.Duration
}

type StreamsOption func(*Streams)

func WithHeartbeat(d time.Duration) StreamsOption {
	return func(s *Streams) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

func NewStreams(registry LiveRegistry, orders OrderReader, inventory InventoryService, clk clock.Clock, log *zap.Logger, opts ...StreamsOption) *Streams {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Streams{
		registry:  registry,
		orders:    orders,
		inventory: inventory,
		clock:     clk,
		log:       log.Named("sse"),
		heartbeat: defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleOrder streams status changes for one of the caller's orders. The
// current status is sent first.
func (s *Streams) HandleOrder(w http.ResponseWriter, r *http.Request) {
	customer, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(r, "orderID")
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidID, domain.ErrInvalidID.Error())
		return
	}
	s.stream(w, r, live.OrderTopic(orderID), func(ctx context.Context) (live.Message, error) {
		order, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return live.Message{}, err
		}
		if order.CustomerID != customer {
			return live.Message{}, domain.ErrOrderNotFound
		}
		return frame(live.FrameInitialStatus, newOrderResponse(order))
	})
}

type connectedFrame struct {
	CustomerID  int64     `json:"customer_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// HandleNotifications streams every order notification for the caller.
func (s *Streams) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	customer, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	s.stream(w, r, live.UserTopic(customer), func(context.Context) (live.Message, error) {
		return frame(live.FrameConnected, connectedFrame{CustomerID: customer, ConnectedAt: s.clock.Now()})
	})
}

// HandleInventory streams stock changes and low-stock alerts, starting with
// the products currently at or below the threshold.
func (s *Streams) HandleInventory(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, live.AdminInventoryTopic, func(ctx context.Context) (live.Message, error) {
		levels, err := s.inventory.LowStock(ctx)
		if err != nil {
			return live.Message{}, err
		}
		return frame(live.FrameInventoryStatus, newLowStockResponse(s.inventory.Threshold(), levels))
	})
}

// snapshotFunc builds the first frame of a stream. It runs after the channel
// is open so an event published during the read is queued, not lost.
type snapshotFunc func(ctx context.Context) (live.Message, error)

func (s *Streams) stream(w http.ResponseWriter, r *http.Request, topic string, snapshot snapshotFunc) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeStreamingUnsupported, "streaming unsupported")
		return
	}

	channelID := strings.TrimSpace(r.URL.Query().Get(channelIDParam))
	if channelID == "" {
		channelID = uuid.NewString()
	}
	ch, err := s.registry.Open(channelID, topic)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeLiveUnavailable, err.Error())
		return
	}
	initial, err := snapshot(r.Context())
	if err != nil {
		s.registry.Release(ch)
		writeServiceError(w, s.log, err)
		return
	}
	defer s.registry.Release(ch)

	log := s.log.With(zap.String("channel_id", channelID), zap.String("topic", topic))
	log.Debug("stream opened")

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", retryMillis); err != nil {
		return
	}
	if err := writeFrame(w, initial); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("stream closed by client")
			return
		case <-ch.Done():
			log.Debug("stream closed by registry", zap.String("reason", ch.CloseReason()))
			return
		case msg := <-ch.Messages():
			if err := writeFrame(w, msg); err != nil {
				log.Debug("stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
			ch.Touch(s.clock.Now())
		}
	}
}

func frame(event string, v any) (live.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return live.Message{}, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return live.Message{Event: event, Data: data}, nil
}

func writeFrame(w http.ResponseWriter, msg live.Message) error {
	var buf bytes.Buffer
	if msg.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", msg.ID)
	}
	if msg.Event != "" {
		fmt.Fprintf(&buf, "event: %s\n", msg.Event)
	}
	for _, line := range bytes.Split(msg.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
