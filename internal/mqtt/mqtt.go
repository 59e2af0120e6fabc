// Package mqtt publishes forwarded heart-rate samples to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chaz8081/hrbridge/internal/heartrate"
)

// DefaultTopic is used when none is configured.
const DefaultTopic = "hrbridge/heartrate"

const publishTimeout = 2 * time.Second

// Publisher sends one JSON message per sample.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// Payload is the JSON document published per sample.
type Payload struct {
	BPM       uint8     `json:"bpm"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address,omitempty"`
	Session   string    `json:"session,omitempty"`
}

// Connect dials the broker. mqtt:// URLs are accepted as an alias for tcp://.
func Connect(brokerURL, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerAddress(brokerURL))
	if strings.TrimSpace(clientID) == "" {
		clientID = "hrbridge-" + time.Now().Format("150405.000")
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("[MQTT] connection lost", "error", err)
	}
	opts.OnConnect = func(_ mqtt.Client) {
		slog.Info("[MQTT] connected", "broker", brokerURL)
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if ok := tok.WaitTimeout(15 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt: connect to %s: timed out", brokerURL)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", brokerURL, err)
	}

	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: c, topic: topic}, nil
}

// Record publishes s without retaining it. It never waits for the broker:
// samples are skipped while the connection is down and publish failures
// are logged in the background.
func (p *Publisher) Record(s heartrate.Sample) error {
	if !p.client.IsConnectionOpen() {
		slog.Debug("[MQTT] broker unavailable, skipping sample", "bpm", s.BPM)
		return nil
	}
	data, err := encode(s)
	if err != nil {
		return err
	}
	tok := p.client.Publish(p.topic, 0, false, data)
	go p.watch(tok)
	return nil
}

func (p *Publisher) watch(tok mqtt.Token) {
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			slog.Warn("[MQTT] publish failed", "topic", p.topic, "error", err)
		}
	case <-time.After(publishTimeout):
		slog.Warn("[MQTT] publish timed out", "topic", p.topic)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.client.Disconnect(1000)
	return nil
}

func encode(s heartrate.Sample) ([]byte, error) {
	data, err := json.Marshal(Payload{
		BPM:       s.BPM,
		Timestamp: s.At,
		Address:   s.Source,
		Session:   s.Session,
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt: encode sample: %w", err)
	}
	return data, nil
}

func brokerAddress(url string) string {
	url = strings.TrimSpace(url)
	if strings.HasPrefix(url, "mqtt://") {
		return "tcp://" + strings.TrimPrefix(url, "mqtt://")
	}
	return url
}
