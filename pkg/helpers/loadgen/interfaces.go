package loadgen

import (
	"context"
)

// PayloadGenerator creates message payloads. It is passed the publisher so that
// per-publisher information can be included in the payload.
type PayloadGenerator interface {
	GeneratePayload(publisher *Publisher) ([]byte, error)
}

// Client publishes generated messages to a messaging system.
type Client interface {
	Connect() error
	Disconnect()
	// Publish generates the publisher's next payload and sends it. It reports
	// whether the message was accepted.
	Publish(ctx context.Context, publisher *Publisher) (bool, error)
}
