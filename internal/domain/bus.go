package domain

import "context"

// EventBus carries assessment pipeline events between the API, background
// workers, and external consumers. Topics are tenant-scoped: every method
// takes a tenantID and implementations must keep tenants' traffic disjoint.
type EventBus interface {
	// Publish sends a payload to every subscriber of the tenant's topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe attaches a handler to a tenant's topic and returns a
	// handle for detaching it.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes and waits for a single reply.
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler consumes one delivered message. A returned error is logged
// by the bus; it does not tear down the subscription.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every bus implementation delivers.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is the detach handle returned by Subscribe.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the bus implementation.
type EventBusConfig struct {
	// Type is "channel" (in-process) or "nats".
	Type string

	// ChannelBufferSize bounds each in-process subscriber's inbox.
	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics of the assessment pipeline. Workers consume requested and publish
// completed/failed; conflict and audit topics feed observability consumers.
const (
	TopicAssessmentRequested = "kestrel.assessment.requested"
	TopicAssessmentCompleted = "kestrel.assessment.completed"
	TopicAssessmentFailed    = "kestrel.assessment.failed"
	TopicConflictDetected    = "kestrel.conflict.detected"
	TopicAudit               = "kestrel.audit"
)
