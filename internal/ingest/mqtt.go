package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSubscriber ingests raw words and variable changes from an MQTT
// broker and records the last payload per topic for topic-backed labels.
type MQTTSubscriber struct {
	client    mqtt.Client
	publisher EventPublisher
	topics    *TopicStore
	logger    *log.Logger
	cfg       MQTTConfig
}

// NewMQTTSubscriber constructs an MQTT subscriber. The connection is
// established on Start.
func NewMQTTSubscriber(cfg MQTTConfig, publisher EventPublisher, topics *TopicStore, logger *log.Logger) (*MQTTSubscriber, error) {
	if publisher == nil {
		return nil, errors.New("ingest mqtt: nil publisher")
	}
	if cfg.Broker == "" {
		return nil, errors.New("ingest mqtt: empty broker")
	}
	if logger == nil {
		logger = log.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	return &MQTTSubscriber{
		client:    mqtt.NewClient(opts),
		publisher: publisher,
		topics:    topics,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// Start connects and subscribes to the configured topics.
func (s *MQTTSubscriber) Start(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("ingest mqtt: nil subscriber")
	}
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("ingest mqtt: connect: %w", token.Error())
	}

	qos := byte(s.cfg.QoS)
	if token := s.client.Subscribe(s.cfg.RawTopic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleRaw(ctx, msg.Topic(), msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("ingest mqtt: subscribe %s: %w", s.cfg.RawTopic, token.Error())
	}
	if token := s.client.Subscribe(s.cfg.VariableTopic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleVariable(ctx, msg.Topic(), msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("ingest mqtt: subscribe %s: %w", s.cfg.VariableTopic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSubscriber) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Disconnect(250)
}

func (s *MQTTSubscriber) handleRaw(ctx context.Context, topic string, payload []byte) {
	s.topics.Record(topic, string(payload))

	var raw RawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		s.logger.Printf("ingest mqtt: decode raw on %s: %v", topic, err)
		return
	}
	// Topic-suffix addressing: hmi/raw/<identifier> with a bare payload.
	if raw.Identifier == "" {
		raw.Identifier = topicSuffix(topic)
	}
	event, err := raw.ToEvent(time.Now())
	if err != nil {
		s.logger.Printf("ingest mqtt: invalid raw on %s: %v", topic, err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("ingest mqtt: publish raw: %v", err)
	}
}

func (s *MQTTSubscriber) handleVariable(ctx context.Context, topic string, payload []byte) {
	s.topics.Record(topic, string(payload))

	var variable VariablePayload
	if err := json.Unmarshal(payload, &variable); err != nil {
		s.logger.Printf("ingest mqtt: decode variable on %s: %v", topic, err)
		return
	}
	if variable.Name == "" {
		variable.Name = topicSuffix(topic)
	}
	event, err := variable.ToEvent(time.Now())
	if err != nil {
		s.logger.Printf("ingest mqtt: invalid variable on %s: %v", topic, err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("ingest mqtt: publish variable: %v", err)
	}
}

func topicSuffix(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
