package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/logger"
)

// ErrTimeout is returned when the broker does not answer in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Client wraps a paho client, remembering subscriptions so they are restored
// after an automatic reconnect.
type Client struct {
	client  paho.Client
	qos     byte
	timeout time.Duration
	topics  Topics

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

// Dial connects to the broker described by cfg.
func Dial(ctx context.Context, cfg config.MQTT, timeout time.Duration) (*Client, error) {
	ctx = logger.WithName(ctx, "mqtt")

	c := newClient(cfg.QoS, timeout, Topics{Prefix: cfg.TopicPrefix})
	c.client = paho.NewClient(clientOptions(ctx, cfg, timeout, c))

	if err := c.wait(ctx, c.client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return c, nil
}

// clientOptions builds the paho options. Handlers of one client run in arrival
// order, one at a time.
func clientOptions(ctx context.Context, cfg config.MQTT, timeout time.Duration, c *Client) *paho.ClientOptions {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "fall-monitor-" + uuid.NewString()
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)
	opts.SetOrderMatters(true)
	opts.SetOnConnectHandler(func(paho.Client) {
		logger.InfoKV(ctx, "Connected to MQTT broker", "broker", cfg.Broker, "client_id", clientID)
		c.resubscribe(ctx)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.WarnKV(ctx, "MQTT connection lost", "broker", cfg.Broker, "error", err)
	})

	return opts
}

// NewClient wraps an already connected paho client.
func NewClient(client paho.Client, qos byte, timeout time.Duration, topics Topics) *Client {
	c := newClient(qos, timeout, topics)
	c.client = client

	return c
}

func newClient(qos byte, timeout time.Duration, topics Topics) *Client {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	return &Client{
		qos:     qos,
		timeout: timeout,
		topics:  topics,
		subs:    make(map[string]paho.MessageHandler),
	}
}

// Topics returns the topic layout of the client.
func (c *Client) Topics() Topics {
	return c.topics
}

// Subscribe registers handler for topic and waits for the broker to confirm.
func (c *Client) Subscribe(ctx context.Context, topic string, handler paho.MessageHandler) error {
	if err := c.wait(ctx, c.client.Subscribe(topic, c.qos, handler)); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	return nil
}

// Unsubscribe removes the subscription to topic.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	_, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()

	if !ok {
		return nil
	}

	if err := c.wait(ctx, c.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}

	return nil
}

// Publish sends payload to topic and waits for delivery at the client's QoS.
func (c *Client) Publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	if err := c.wait(ctx, c.client.Publish(topic, c.qos, retained, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}

// PublishAsync sends payload to topic without waiting. Failures are logged.
func (c *Client) PublishAsync(ctx context.Context, topic string, payload []byte) {
	token := c.client.Publish(topic, c.qos, false, payload)

	go func() {
		if err := c.wait(ctx, token); err != nil {
			logger.WarnKV(ctx, "MQTT publish failed", "topic", topic, "error", err)
		}
	}()
}

// Close disconnects from the broker, allowing in-flight work a short grace period.
func (c *Client) Close() {
	const quiesceMillis = 250

	c.client.Disconnect(quiesceMillis)
}

// resubscribe restores every remembered subscription.
func (c *Client) resubscribe(ctx context.Context) {
	c.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))

	for topic, handler := range c.subs {
		subs[topic] = handler
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		token := c.client.Subscribe(topic, c.qos, handler)

		go func() {
			if err := c.wait(ctx, token); err != nil {
				logger.WarnKV(ctx, "MQTT resubscribe failed", "topic", topic, "error", err)
			}
		}()
	}
}

// wait blocks until token completes, the timeout elapses or ctx is done.
func (c *Client) wait(ctx context.Context, token paho.Token) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
