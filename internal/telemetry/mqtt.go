package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/internal/protocol"
	"github.com/safehold-systems/safehold/pkg/types"
)

// Low-level transport bounds, distinct from the delivery buffer's business
// timeout.
const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	retryInterval  = 2 * time.Second
	reconnectMax   = 30 * time.Second

	ackBuffer = 64

	// paho quiesce on disconnect, in milliseconds.
	disconnectGrace = 250
)

// MQTT is the paho-backed Transport. Publishes go out QoS 1; the broker's
// acknowledgement completes the token, which feeds Acks. A circuit breaker
// across the publish path keeps a dead session from being hammered between
// sweep cycles.
type MQTT struct {
	clientID       string
	broker         string
	username       string
	password       string
	telemetryTopic string
	commandTopic   string

	client  mqtt.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	mu        sync.RWMutex
	connected bool
	onCommand func([]byte)

	nextID    atomic.Uint32
	acks      chan uint32
	reconnect chan struct{}
	wg        sync.WaitGroup
}

// NewMQTT builds the transport for one device. Topics derive from the
// device namespace and id.
func NewMQTT(cfg types.MQTTConfig, dev types.DeviceConfig, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = dev.ID
	}

	m := &MQTT{
		clientID:       clientID,
		broker:         cfg.Broker,
		username:       cfg.Username,
		password:       cfg.Password,
		telemetryTopic: protocol.TelemetryTopic(dev.Namespace, dev.ID),
		commandTopic:   protocol.CommandTopic(dev.Namespace, dev.ID),
		logger:         logger,
		acks:           make(chan uint32, ackBuffer),
		reconnect:      make(chan struct{}, 1),
	}

	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("publish breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	return m
}

// Start connects to the broker. An unreachable broker is not fatal: paho
// keeps retrying in the background and events buffer in the delivery ring
// until OnConnect fires.
func (m *MQTT) Start(_ context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", m.broker))
	opts.SetClientID(m.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retryInterval)
	opts.SetMaxReconnectInterval(reconnectMax)
	if m.username != "" {
		opts.SetUsername(m.username)
		opts.SetPassword(m.password)
	}

	opts.OnConnect = func(c mqtt.Client) {
		m.setConnected(true)
		select {
		case m.reconnect <- struct{}{}:
		default:
		}
		m.subscribeCommands(c)
		m.logger.Info("mqtt connected", "broker", m.broker, "client_id", m.clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.setConnected(false)
		m.logger.Warn("mqtt connection lost, auto-reconnecting", "error", err)
	}

	m.client = mqtt.NewClient(opts)
	m.logger.Info("connecting to mqtt broker", "broker", m.broker)

	token := m.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		m.logger.Warn("broker not reachable yet, retrying in background", "broker", m.broker)
		return nil
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("initial connect failed, retrying in background", "error", err)
	}
	return nil
}

// Stop disconnects and waits for in-flight confirmation waits to finish.
func (m *MQTT) Stop(_ context.Context) {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(disconnectGrace)
	}
	m.setConnected(false)
	m.wg.Wait()
	m.logger.Info("mqtt disconnected")
}

// Connected reports the session state as last signaled by paho.
func (m *MQTT) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Publish initiates a QoS 1 publish and returns its delivery id. The
// broker's acknowledgement arrives asynchronously on Acks; an error here
// means nothing was handed off.
func (m *MQTT) Publish(payload []byte) (uint32, error) {
	if !m.Connected() {
		return 0, ErrNotConnected
	}
	if m.breaker.State() == gobreaker.StateOpen {
		return 0, ErrBreakerOpen
	}

	id := m.nextID.Add(1)
	token := m.client.Publish(m.telemetryTopic, 1, false, payload)

	m.wg.Add(1)
	go m.confirm(id, token)
	return id, nil
}

// confirm waits for the broker acknowledgement and records the outcome in
// the breaker, so repeated broker silence opens it.
func (m *MQTT) confirm(id uint32, token mqtt.Token) {
	defer m.wg.Done()

	_, err := m.breaker.Execute(func() (any, error) {
		if !token.WaitTimeout(publishTimeout) {
			return nil, fmt.Errorf("confirmation timed out after %s", publishTimeout)
		}
		return nil, token.Error()
	})
	if err != nil {
		metrics.PublishFailures.Add(1)
		m.logger.Warn("delivery confirmation failed", "delivery_id", id, "error", err)
		return
	}

	select {
	case m.acks <- id:
	default:
		// A full ack channel leaves the entry pending; the sweep resends
		// it, which at-least-once delivery tolerates.
		m.logger.Warn("ack channel full, dropping confirmation", "delivery_id", id)
	}
}

// Acks carries confirmed delivery ids.
func (m *MQTT) Acks() <-chan uint32 { return m.acks }

// Reconnects signals each transition into a connected session.
func (m *MQTT) Reconnects() <-chan struct{} { return m.reconnect }

// SetCommandHandler installs the inbound command sink. Install before Start.
func (m *MQTT) SetCommandHandler(fn func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCommand = fn
}

// subscribeCommands (re)subscribes the command topic; paho drops
// subscriptions across reconnects unless the session is resumed.
func (m *MQTT) subscribeCommands(c mqtt.Client) {
	token := c.Subscribe(m.commandTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		m.mu.RLock()
		fn := m.onCommand
		m.mu.RUnlock()
		if fn != nil {
			fn(msg.Payload())
		}
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if !token.WaitTimeout(publishTimeout) {
			m.logger.Error("command subscribe timed out", "topic", m.commandTopic)
			return
		}
		if err := token.Error(); err != nil {
			m.logger.Error("command subscribe failed", "topic", m.commandTopic, "error", err)
		}
	}()
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}
