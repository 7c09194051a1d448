package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 10 * time.Second
	maxReconnectDelay = time.Minute
	// Milliseconds paho waits for in-flight work on disconnect.
	quiesce = 250
)

var (
	errTimeout    = errors.New("timed out waiting for broker")
	errEmptyTopic = errors.New("empty topic")
	errEmptyID    = errors.New("empty client ID")
)

// Config holds the broker connection settings.
type Config struct {
	URL         string        `toml:"url"          env:"URL"           envDefault:"tcp://localhost:1883"`
	QoS         byte          `toml:"qos"          env:"QOS"           envDefault:"2"`
	ClientID    string        `toml:"client_id"    env:"CLIENT_ID"     envDefault:""`
	Username    string        `toml:"username"     env:"USERNAME"      envDefault:""`
	Password    string        `toml:"password"     env:"PASSWORD"      envDefault:""`
	TopicPrefix string        `toml:"topic_prefix" env:"TOPIC_PREFIX"  envDefault:"cohort"`
	Timeout     time.Duration `toml:"timeout"      env:"TIMEOUT"       envDefault:"30s"`
}

func (c Config) Topics() Topics { return NewTopics(c.TopicPrefix) }

// Handler receives the decoded JSON object of each message.
type Handler func(topic string, msg map[string]any) error

// PubSub exchanges JSON messages with the broker.
type PubSub interface {
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
}

type pubsub struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

// NewPubSub connects to the broker. The client announces itself offline on
// its status topic when the connection drops.
func NewPubSub(cfg Config, logger *slog.Logger) (PubSub, error) {
	if cfg.ClientID == "" {
		return nil, errEmptyID
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("mqtt.client_id", cfg.ClientID))

	ps := &pubsub{
		client:  mqtt.NewClient(clientOptions(cfg, logger)),
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		logger:  logger,
	}
	if err := ps.wait(context.Background(), ps.client.Connect(), "connect", cfg.URL); err != nil {
		return nil, err
	}

	return ps, nil
}

func (ps *pubsub) Publish(ctx context.Context, topic string, msg any) error {
	if topic == "" {
		return errEmptyTopic
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message for %q: %w", topic, err)
	}

	return ps.wait(ctx, ps.client.Publish(topic, ps.qos, false, payload), "publish", topic)
}

func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errEmptyTopic
	}

	return ps.wait(ctx, ps.client.Subscribe(topic, ps.qos, ps.dispatch(handler)), "subscribe", topic)
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errEmptyTopic
	}

	return ps.wait(ctx, ps.client.Unsubscribe(topic), "unsubscribe", topic)
}

func (ps *pubsub) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ps.client.Disconnect(quiesce)

	return nil
}

// wait blocks until the broker acknowledges tok, the timeout elapses or ctx
// ends.
func (ps *pubsub) wait(ctx context.Context, tok mqtt.Token, op, target string) error {
	timer := time.NewTimer(ps.timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("%s %q: %w", op, target, err)
		}

		return nil
	case <-timer.C:
		return fmt.Errorf("%s %q: %w", op, target, errTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%s %q: %w", op, target, ctx.Err())
	}
}

func (ps *pubsub) dispatch(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		defer m.Ack()

		topic := m.Topic()
		var msg map[string]any
		if len(m.Payload()) > 0 {
			if err := json.Unmarshal(m.Payload(), &msg); err != nil {
				ps.logger.Warn("dropped undecodable message", slog.String("topic", topic), slog.Any("error", err))

				return
			}
		}
		if err := h(topic, msg); err != nil {
			ps.logger.Warn("message handler failed", slog.String("topic", topic), slog.Any("error", err))
		}
	}
}

func clientOptions(cfg Config, logger *slog.Logger) *mqtt.ClientOptions {
	will, _ := json.Marshal(map[string]string{"status": "offline", "client_id": cfg.ClientID})

	return mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetMaxReconnectInterval(maxReconnectDelay).
		SetWill(cfg.Topics().Status(cfg.ClientID), string(will), 0, false).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("connected to MQTT broker", slog.String("url", cfg.URL))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("lost MQTT connection", slog.Any("error", err))
		}).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			logger.Info("reconnecting to MQTT broker")
		})
}
