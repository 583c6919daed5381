package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

// MessageHandler receives one broker message.
type MessageHandler func(topic string, payload []byte)

// Client is the part of an MQTT session the bridge needs.
type Client interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error
	Disconnect(quiesce time.Duration)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// pahoClient adapts a paho client and re-subscribes after every reconnect.
type pahoClient struct {
	client paho.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

func newPahoClient(cfg Config, tlsConfig *tls.Config, logger *slog.Logger) *pahoClient {
	c := &pahoClient{logger: logger, subs: make(map[string]subscription)}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.ConnectTimeout.Std()).
		SetKeepAlive(30 * time.Second).
		SetOrderMatters(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}
	opts.SetOnConnectHandler(c.resubscribe)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", "broker", cfg.Broker, "error", err)
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Info("MQTT reconnecting", "broker", cfg.Broker)
	})

	c.client = paho.NewClient(opts)
	return c
}

func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pahoClient) Connect(ctx context.Context) error {
	if err := waitToken(ctx, c.client.Connect()); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrNoConnection, err), "MQTTClient", "Connect", "connect to broker")
	}
	return nil
}

func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.client.Subscribe(filter, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if err := waitToken(ctx, token); err != nil {
		return errors.WrapTransient(err, "MQTTClient", "Subscribe", fmt.Sprintf("subscribe to %s", filter))
	}
	return nil
}

// resubscribe restores filters on a fresh clean session. The first connect
// has none yet.
func (c *pahoClient) resubscribe(client paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for filter, sub := range c.subs {
		handler := sub.handler
		token := client.Subscribe(filter, sub.qos, func(_ paho.Client, msg paho.Message) {
			handler(msg.Topic(), msg.Payload())
		})
		go func(filter string) {
			if token.WaitTimeout(10*time.Second) && token.Error() != nil {
				c.logger.Error("MQTT resubscribe failed", "filter", filter, "error", token.Error())
			}
		}(filter)
	}
}

func (c *pahoClient) Disconnect(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce.Milliseconds()))
}
