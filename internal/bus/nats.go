package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/opensource-compliance/kestrel/internal/domain"
)

// NATSBus carries assessment events over NATS for multi-instance
// deployments. Subjects embed the tenant id, so tenant isolation holds
// across processes the same way it does in the in-process bus.
type NATSBus struct {
	mu   sync.Mutex
	conn *nats.Conn
	subs map[string]*natsSubscription
	cfg  domain.EventBusConfig
}

type natsSubscription struct {
	id    string
	topic string
	sub   *nats.Subscription
}

// subjectFor maps a tenant/topic pair onto a NATS subject.
func subjectFor(tenantID, topic string) string {
	return fmt.Sprintf("kestrel.%s.%s", tenantID, topic)
}

// NewNATSBus connects to NATS with reconnect handling. The initial connect
// is retried NATSMaxReconnects times before giving up, so a server that
// starts before its broker still comes up.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects == 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait == 0 {
		cfg.NATSReconnectWait = 5
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	opts := []nats.Option{
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("event bus disconnected", "error", err, "reconnecting", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("event bus reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("event bus error", "error", err, "subject", subject)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var conn *nats.Conn
	var err error
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		conn, err = nats.Connect(cfg.NATSUrl, opts...)
		if err == nil {
			break
		}
		slog.Warn("event bus connect failed",
			"attempt", attempt, "max_attempts", cfg.NATSMaxReconnects, "error", err)
		time.Sleep(wait)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS after %d attempts: %w", cfg.NATSMaxReconnects, err)
	}

	slog.Info("event bus connected", "url", conn.ConnectedUrl(), "server_id", conn.ConnectedServerId())

	return &NATSBus{
		conn: conn,
		subs: make(map[string]*natsSubscription),
		cfg:  cfg,
	}, nil
}

// Publish wraps the payload in a message envelope and sends it on the
// tenant's subject.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	data, err := json.Marshal(&domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return b.conn.Publish(subjectFor(tenantID, topic), data)
}

// Subscribe attaches a handler to the tenant's subject. Handler errors are
// logged, not propagated: one bad message must not tear down the
// subscription.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	subject := subjectFor(tenantID, topic)
	natsSub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("discarding malformed bus message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, &msg); err != nil {
			slog.Error("bus handler failed", "subject", m.Subject, "message_id", msg.ID, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	s := &natsSubscription{
		id:    uuid.New().String(),
		topic: topic,
		sub:   natsSub,
	}

	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()

	return s, nil
}

// Request performs a request-reply exchange. The timeout comes from the
// context deadline when set, otherwise 30s.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	data, err := json.Marshal(&domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	reply, err := b.conn.Request(subjectFor(tenantID, topic), data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request on %s: %w", topic, err)
	}

	var replyMsg domain.Message
	if err := json.Unmarshal(reply.Data, &replyMsg); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}
	return replyMsg.Payload, nil
}

// Ping verifies the connection and flushes pending traffic.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close unsubscribes everything and drops the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		_ = s.sub.Unsubscribe()
	}
	b.subs = make(map[string]*natsSubscription)

	b.conn.Close()
	return nil
}

// Stats exposes the underlying connection counters for the /stats surface.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
