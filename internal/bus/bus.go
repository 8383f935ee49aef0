package bus

import (
	"fmt"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// New builds the event bus named by the configuration: "channel" for the
// in-process bus of a single-instance deployment, "nats" for the brokered
// bus shared by multiple instances.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %q", cfg.Type)
	}
}
