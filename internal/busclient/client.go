// Package busclient is the message-bus client. It speaks MQTT, publishing
// CAN frames and board health on one topic each and subscribing to the two
// topics that feed frames and fan setpoints back into the board: the
// in-process equivalent of the loopback pub/sub sockets the original system
// used.
package busclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Bus is the contract the pumps depend on, so they can be tested against a
// fake without a broker.
type Bus interface {
	PublishCAN(batch FramesBatch) error
	PublishHealth(env HealthEnvelope) error
	SubscribeSendCAN(handler func(FramesBatch)) error
	SubscribeFan(handler func(FanSetpoint)) error
	Close()
}

// Client is the MQTT-backed Bus implementation.
type Client struct {
	clientID string
	mq       mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// NewClient dials broker and blocks until the connection succeeds, the
// connect attempt itself fails, or five seconds pass, in which case it
// returns an error. Once connected, the underlying client reconnects on its
// own.
func NewClient(broker, clientID string) (*Client, error) {
	c := &Client{
		clientID:  clientID,
		published: make(map[string]uint64),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		slog.Info("bus connected", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		slog.Warn("bus connection lost, reconnecting", "error", err)
	}

	c.mq = mqtt.NewClient(opts)
	token := c.mq.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("busclient: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("busclient: connect to %s: %w", broker, err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return c, nil
}

func (c *Client) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("busclient: marshal %s: %w", topic, err)
	}

	token := c.mq.Publish(topic, qosByTopic[topic], false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		c.mu.Lock()
		c.errors++
		c.mu.Unlock()
		return fmt.Errorf("busclient: publish %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		c.mu.Lock()
		c.errors++
		c.mu.Unlock()
		return fmt.Errorf("busclient: publish %s: %w", topic, err)
	}

	c.mu.Lock()
	c.published[topic]++
	c.mu.Unlock()
	return nil
}

func (c *Client) PublishCAN(batch FramesBatch) error {
	return c.publish(TopicCAN, batch)
}

func (c *Client) PublishHealth(env HealthEnvelope) error {
	return c.publish(TopicHealth, env)
}

func (c *Client) subscribe(topic string, decode func([]byte)) error {
	token := c.mq.Subscribe(topic, qosByTopic[topic], func(_ mqtt.Client, msg mqtt.Message) {
		decode(msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("busclient: subscribe %s timed out", topic)
	}
	return token.Error()
}

func (c *Client) SubscribeSendCAN(handler func(FramesBatch)) error {
	return c.subscribe(TopicSendCAN, func(payload []byte) {
		var batch FramesBatch
		if err := json.Unmarshal(payload, &batch); err != nil {
			slog.Warn("sendcan: malformed message dropped", "error", err)
			return
		}
		handler(batch)
	})
}

func (c *Client) SubscribeFan(handler func(FanSetpoint)) error {
	return c.subscribe(TopicThermal, func(payload []byte) {
		var sp FanSetpoint
		if err := json.Unmarshal(payload, &sp); err != nil {
			slog.Warn("thermal: malformed message dropped", "error", err)
			return
		}
		handler(sp)
	})
}

func (c *Client) Close() {
	if c.mq != nil && c.mq.IsConnected() {
		c.mq.Disconnect(250)
	}
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
