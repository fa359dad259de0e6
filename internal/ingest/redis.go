package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisSubscriber ingests raw words and variable changes from redis pub/sub.
type RedisSubscriber struct {
	client    *redis.Client
	publisher EventPublisher
	logger    *log.Logger
	raw       string
	variables string
}

// NewRedisSubscriber constructs a redis subscriber.
func NewRedisSubscriber(cfg RedisConfig, publisher EventPublisher, logger *log.Logger) (*RedisSubscriber, error) {
	if publisher == nil {
		return nil, errors.New("ingest redis: nil publisher")
	}
	if cfg.Addr == "" {
		return nil, errors.New("ingest redis: empty addr")
	}
	if logger == nil {
		logger = log.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisSubscriber{
		client:    client,
		publisher: publisher,
		logger:    logger,
		raw:       cfg.RawChannel,
		variables: cfg.VariableChannel,
	}, nil
}

// Run subscribes and processes messages until the context is canceled.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("ingest redis: nil subscriber")
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return err
	}

	pubsub := s.client.Subscribe(ctx, s.raw, s.variables)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("ingest redis: subscription closed")
			}
			if err := s.handle(ctx, msg.Channel, []byte(msg.Payload)); err != nil {
				s.logger.Printf("ingest redis: %v", err)
			}
		}
	}
}

// Close releases the redis connection.
func (s *RedisSubscriber) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisSubscriber) handle(ctx context.Context, channel string, payload []byte) error {
	now := time.Now()
	switch channel {
	case s.raw:
		var raw RawPayload
		if err := json.Unmarshal(payload, &raw); err != nil {
			return err
		}
		event, err := raw.ToEvent(now)
		if err != nil {
			return err
		}
		return s.publisher.Publish(ctx, event)
	case s.variables:
		var variable VariablePayload
		if err := json.Unmarshal(payload, &variable); err != nil {
			return err
		}
		event, err := variable.ToEvent(now)
		if err != nil {
			return err
		}
		return s.publisher.Publish(ctx, event)
	default:
		return nil
	}
}
