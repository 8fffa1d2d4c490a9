// Package bus provides a Watermill-over-NATS implementation of the actor
// core's Bus gateway: every raised event is published as a single Watermill
// message on a subject derived from the actor's type code, so downstream
// services can subscribe by type without decoding the envelope first.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
)

// Config configures the NATS connection underlying the bus.
type Config struct {
	URL               string
	ConnectionTimeout time.Duration
	MaxReconnects     int
	ReconnectWait     time.Duration
	SubjectPrefix     string
}

// DefaultConfig mirrors the conservative NATS client defaults used
// elsewhere in the stack.
func DefaultConfig() Config {
	return Config{
		URL:               "nats://127.0.0.1:4222",
		ConnectionTimeout: 5 * time.Second,
		MaxReconnects:     10,
		ReconnectWait:     time.Second,
		SubjectPrefix:     "actorsourcing.events",
	}
}

// Bus is a Watermill-backed actor.Bus publishing onto NATS core (not
// JetStream: event durability already lives in the event log, so the bus
// only needs at-least-once fan-out to live subscribers).
type Bus struct {
	publisher     message.Publisher
	subjectPrefix string
	logger        *zap.Logger
}

// New connects to NATS and wraps it as an actor.Bus.
func New(cfg Config, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watermillLogger := watermill.NewStdLogger(false, false)

	publisher, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:         cfg.URL,
			NatsOptions: natsOptions(cfg, logger),
			Marshaler:   &nats.GobMarshaler{},
		},
		watermillLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect to nats: %w", err)
	}

	return &Bus{publisher: publisher, subjectPrefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Publish implements actor.Bus.
func (b *Bus) Publish(ctx context.Context, id actor.ID, typeCode uint32, payload []byte) error {
	subject := fmt.Sprintf("%s.%d", b.subjectPrefix, typeCode)

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("actor_id", id.String())
	msg.Metadata.Set("type_code", fmt.Sprintf("%d", typeCode))
	msg.SetContext(ctx)

	if err := b.publisher.Publish(subject, msg); err != nil {
		b.logger.Warn("bus publish failed", zap.Error(err), zap.String("subject", subject))
		return err
	}
	return nil
}

// Close releases the underlying NATS connection.
func (b *Bus) Close() error {
	return b.publisher.Close()
}

func natsOptions(cfg Config, logger *zap.Logger) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("actorsourcing"),
		natsgo.Timeout(cfg.ConnectionTimeout),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
}
