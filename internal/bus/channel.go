// Package bus carries assessment pipeline events (requested, completed,
// failed, conflict, audit) between the API, the background workers, and any
// external consumers. Topics are always tenant-scoped: a subscriber on one
// tenant never sees another tenant's traffic.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-compliance/kestrel/internal/domain"
)

// ChannelBus is the in-process event bus. Delivery is at-most-once: when a
// subscriber's buffer is full the message is dropped for that subscriber
// rather than blocking the publisher, which keeps assessment latency
// independent of slow audit consumers.
type ChannelBus struct {
	mu      sync.RWMutex
	buffer  int
	streams map[string]map[string]*subscriber // tenant:topic -> sub id -> subscriber
	closed  bool
}

type subscriber struct {
	id      string
	topic   string
	stream  string
	inbox   chan *domain.Message
	cancel  context.CancelFunc
	owner   *ChannelBus
	handler domain.MessageHandler
}

// NewChannelBus creates an in-process bus. bufferSize bounds each
// subscriber's inbox; zero or negative selects the default of 1000.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		buffer:  bufferSize,
		streams: make(map[string]map[string]*subscriber),
	}
}

func streamName(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Publish fans a message out to every subscriber of the tenant's topic.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	subs := make([]*subscriber, 0, 4)
	for _, s := range b.streams[streamName(tenantID, topic)] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.inbox <- msg:
		default:
			// Inbox full; drop for this subscriber.
		}
	}
	return nil
}

// Subscribe attaches a handler to a tenant's topic. Each subscriber gets its
// own inbox and delivery goroutine; the handler runs for one message at a
// time per subscription.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	stream := streamName(tenantID, topic)

	s := &subscriber{
		id:      uuid.New().String(),
		topic:   topic,
		stream:  stream,
		inbox:   make(chan *domain.Message, b.buffer),
		cancel:  cancel,
		owner:   b,
		handler: handler,
	}

	if b.streams[stream] == nil {
		b.streams[stream] = make(map[string]*subscriber)
	}
	b.streams[stream][s.id] = s

	go s.deliver(subCtx)
	return s, nil
}

func (s *subscriber) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbox:
			if msg == nil {
				return
			}
			_ = s.handler(ctx, msg)
		}
	}
}

// Request publishes to a topic and waits for one reply on a unique inbox
// topic. The handler on the far side is expected to publish its answer to
// the reply topic carried alongside the request.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	replyTopic := topic + ".reply." + uuid.New().String()
	replyCh := make(chan []byte, 1)

	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replyCh <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, tenantID, topic, payload); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("request timed out waiting for reply on %s", replyTopic)
	}
}

// Ping reports whether the bus accepts traffic.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close stops every delivery goroutine and rejects further operations.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.streams {
		for _, s := range subs {
			s.cancel()
			close(s.inbox)
		}
	}
	b.streams = make(map[string]map[string]*subscriber)
	return nil
}

// Unsubscribe detaches the subscriber and stops its delivery goroutine.
func (s *subscriber) Unsubscribe() error {
	s.cancel()

	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if subs, ok := s.owner.streams[s.stream]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.owner.streams, s.stream)
		}
	}
	return nil
}

// Topic returns the topic this subscription listens on.
func (s *subscriber) Topic() string {
	return s.topic
}
