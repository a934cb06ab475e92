// Package mqttdoor publishes unlock commands to the door controller over
// MQTT. Delivery is best-effort: one long-lived connection with automatic
// reconnection, and publish calls fail fast while the link is down instead
// of queueing.
package mqttdoor

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	access "github.com/bryanwahyu/facegate/internal/domain/access"
)

const (
	DefaultTopic      = "access/door"
	reconnectInterval = 5 * time.Second
	publishQoS        = 1
)

type Publisher struct {
	client mqtt.Client
	topic  string
}

// openPayload is the wire format the lock controller expects
type openPayload struct {
	Command   string `json:"command"`
	Duration  int64  `json:"duration"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name"`
}

// New connects to the broker in the background. Startup never blocks on the
// broker being up; until the link is established OpenDoor reports false.
func New(brokerURL, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("facegate-" + uuid.New().String()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectInterval).
		SetMaxReconnectInterval(reconnectInterval).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("mqtt connected to %s", brokerURL)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost: %v", err)
		})

	client := mqtt.NewClient(opts)
	client.Connect()

	return &Publisher{client: client, topic: topic}
}

// OpenDoor publishes an OPEN command with QoS 1. Returns false without
// blocking when the broker link is down; the caller's decision stands either
// way. Safe for concurrent use — paho serializes the outbound channel.
func (p *Publisher) OpenDoor(ctx context.Context, cmd access.OpenCommand) bool {
	if !p.client.IsConnected() {
		log.Printf("mqtt not connected, dropping open command")
		return false
	}

	name := cmd.UserName
	if name == "" {
		name = "Unknown"
	}
	payload, err := json.Marshal(openPayload{
		Command:   "OPEN",
		Duration:  cmd.Duration.Milliseconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		UserID:    cmd.UserID,
		UserName:  name,
	})
	if err != nil {
		return false
	}

	tok := p.client.Publish(p.topic, publishQoS, false, payload)
	// fire and forget; surface broker errors in the log only
	go func() {
		tok.Wait()
		if tok.Error() != nil {
			log.Printf("mqtt publish failed: %v", tok.Error())
		}
	}()
	return true
}

// Connected reports the broker link state
func (p *Publisher) Connected() bool {
	return p.client.IsConnected()
}

// Close disconnects after flushing in-flight messages
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
