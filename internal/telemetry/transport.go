package telemetry

import (
	"context"
	"errors"
)

// Transport errors the publisher branches on. Both mean "try again later";
// the buffered event stays in the ring either way.
var (
	ErrNotConnected = errors.New("transport not connected")
	ErrBreakerOpen  = errors.New("publish circuit breaker open")
)

// Transport is the wire-level pub/sub client the publisher rides on. The
// core never talks to the network directly: it hands payloads over and
// listens for asynchronous confirmations.
type Transport interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)

	// Connected reports whether the transport currently believes it can
	// reach the broker.
	Connected() bool

	// Publish initiates delivery of one payload and returns a delivery id.
	// Delivery is asynchronous: success is signaled later on Acks carrying
	// the same id. An error means nothing was handed off.
	Publish(payload []byte) (uint32, error)

	// Acks carries delivery confirmations.
	Acks() <-chan uint32

	// Reconnects signals transitions from disconnected to connected.
	Reconnects() <-chan struct{}

	// SetCommandHandler installs the sink for inbound command payloads.
	// The handler must not block; it runs on the transport's goroutine.
	SetCommandHandler(fn func(payload []byte))
}
