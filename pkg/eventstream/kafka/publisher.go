// Package kafka publishes session events to a Kafka topic with
// github.com/segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/eventstream"
)

const (
	defaultBatchTimeout = 50 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second

	headerEventType     = "event_type"
	headerSchemaVersion = "schema_version"
)

// Config is the configuration of a Kafka Publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses (host:port).
	Brokers []string

	// Topic receives every event.
	Topic string

	// ClientID is reported to the brokers. Defaults to eventstream.SourceName.
	ClientID string

	// WriteTimeout bounds a single produce call. Defaults to 10 seconds.
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes events as JSON messages keyed by session id, so all
// events of one session land on the same partition.
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher validates cfg and creates a Publisher. Brokers are contacted
// lazily on the first publish.
func NewPublisher(cfg Config) (*Publisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}

	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = eventstream.SourceName
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: defaultBatchTimeout,
		WriteTimeout: writeTimeout,
		Transport: &kafkago.Transport{
			ClientID: clientID,
		},
	}

	return &Publisher{writer: w, topic: topic}, nil
}

// PublishSession encodes event and writes it to the topic.
func (p *Publisher) PublishSession(ctx context.Context, event *eventstream.SessionClosedEvent) error {
	if event == nil {
		return eventstream.ErrNilSessionEvent
	}

	msg, err := newMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newMessage(event *eventstream.SessionClosedEvent) (kafkago.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding session event: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(event.Session.ID),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerSchemaVersion, Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}, nil
}
