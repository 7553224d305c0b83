// Package testutil provides shared test utilities for safehold.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/safehold-systems/safehold/internal/telemetry"
)

// Compile-time interface satisfaction check.
var _ telemetry.Transport = (*MockTransport)(nil)

// PublishedPayload records one Publish handoff.
type PublishedPayload struct {
	ID      uint32
	Payload []byte
}

// MockTransport is an in-memory Transport implementation for testing. Tests
// flip connectivity, confirm deliveries, and inject inbound commands; every
// Publish handoff is recorded in order.
type MockTransport struct {
	mu        sync.Mutex
	connected bool
	published []PublishedPayload
	failNext  error
	onCommand func([]byte)

	nextID    atomic.Uint32
	acks      chan uint32
	reconnect chan struct{}
}

// NewMockTransport creates a disconnected mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		acks:      make(chan uint32, 64),
		reconnect: make(chan struct{}, 1),
	}
}

func (m *MockTransport) Start(context.Context) error { return nil }

func (m *MockTransport) Stop(context.Context) {}

func (m *MockTransport) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetConnected flips connectivity. Turning it on signals a reconnect the way
// the real transport does on a fresh broker session.
func (m *MockTransport) SetConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
	if v {
		select {
		case m.reconnect <- struct{}{}:
		default:
		}
	}
}

// FailNextPublish makes the next Publish call return err without recording.
func (m *MockTransport) FailNextPublish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MockTransport) Publish(payload []byte) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return 0, telemetry.ErrNotConnected
	}
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return 0, err
	}

	id := m.nextID.Add(1)
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.published = append(m.published, PublishedPayload{ID: id, Payload: cp})
	return id, nil
}

// Ack confirms a delivery id, as the broker acknowledgement would.
func (m *MockTransport) Ack(id uint32) { m.acks <- id }

func (m *MockTransport) Acks() <-chan uint32 { return m.acks }

func (m *MockTransport) Reconnects() <-chan struct{} { return m.reconnect }

func (m *MockTransport) SetCommandHandler(fn func(payload []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCommand = fn
}

// InjectCommand delivers a raw inbound payload to the installed handler.
func (m *MockTransport) InjectCommand(payload []byte) {
	m.mu.Lock()
	fn := m.onCommand
	m.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}

// Published returns a copy of every handoff recorded so far, in order.
func (m *MockTransport) Published() []PublishedPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedPayload, len(m.published))
	copy(out, m.published)
	return out
}

// PublishCount returns how many handoffs have been recorded.
func (m *MockTransport) PublishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}
