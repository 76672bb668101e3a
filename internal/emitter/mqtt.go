// Package emitter forwards live narrative events to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/transcript"
)

const (
	ConnectTimeout = 5 * time.Second
	PublishTimeout = 2 * time.Second
	DisconnectMS   = 250
)

type Config struct {
	Broker   string // host:port or a full URL
	Topic    string // prefix; events go to <Topic>/<type>
	ClientID string
}

// MQTTEmitter publishes each event as JSON. Narrative artifacts go out at
// QoS 1, progress events at QoS 0.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

func New(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg, published: make(map[string]uint64)}
}

func brokerURL(b string) string {
	if strings.Contains(b, "://") {
		return b
	}
	return "tcp://" + b
}

// Connect establishes the connection; the client reconnects on its own afterwards.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		slog.Info("mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)
	slog.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(ConnectTimeout):
		return apperrors.New(apperrors.CodeUnavailable, "mqtt connection timeout").WithMetadata("broker", e.cfg.Broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "mqtt connection failed").WithMetadata("broker", e.cfg.Broker)
	}
	e.setConnected(true)
	return nil
}

// Run publishes events until ctx ends or the channel closes. Publish failures
// are counted and logged, never returned.
func (e *MQTTEmitter) Run(ctx context.Context, events <-chan transcript.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := e.Publish(ev); err != nil {
				slog.Debug("mqtt publish failed", "type", ev.Type, "error", err)
			}
		}
	}
}

// Publish sends one event to <Topic>/<type>.
func (e *MQTTEmitter) Publish(ev transcript.Event) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	topic := e.cfg.Topic + "/" + string(ev.Type)
	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("marshal event: %w", err)
	}

	qos := QoS(ev.Type)
	token := e.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(PublishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	slog.Debug("event published", "topic", topic, "qos", qos, "size", len(payload))
	return nil
}

// QoS returns the delivery level for an event type.
func QoS(t transcript.EventType) byte {
	switch t {
	case transcript.EventEntry, transcript.EventSummary, transcript.EventFinal, transcript.EventSession:
		return 1
	default:
		return 0
	}
}

// Disconnect closes the connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(DisconnectMS)
		slog.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
