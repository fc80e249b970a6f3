// Package queue carries cross-process notification requests over a NATS JetStream work queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"collabhub/internal/config"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Envelope is the wire shape shared by producers and the consumer.
type Envelope struct {
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
}

// Connect opens the NATS connection and its JetStream context.
func Connect(cfg config.NATSConfig) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("collabhub"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates the work-queue stream when it does not exist yet.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg config.NATSConfig) (jetstream.Stream, error) {
	stream, err := js.Stream(ctx, cfg.Stream)
	if err == nil {
		log.Printf("Found existing stream '%s'", cfg.Stream)
		return stream, nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, fmt.Errorf("failed to look up stream '%s': %w", cfg.Stream, err)
	}

	log.Printf("Stream '%s' not found, attempting to create...", cfg.Stream)
	stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Queued notification requests",
		Subjects:    []string{Subject(cfg.SubjectPrefix, "*")},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream '%s': %w", cfg.Stream, err)
	}
	log.Printf("Stream '%s' created successfully", cfg.Stream)
	return stream, nil
}

func Subject(prefix, pattern string) string {
	return fmt.Sprintf("%s.%s", prefix, pattern)
}

// JetStreamPublisher is the part of jetstream.JetStream the producer needs.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type Producer struct {
	js     JetStreamPublisher
	prefix string
}

func NewProducer(js JetStreamPublisher, cfg config.NATSConfig) *Producer {
	return &Producer{js: js, prefix: cfg.SubjectPrefix}
}

// Publish enqueues data under pattern and returns the message id used for dedupe.
func (p *Producer) Publish(ctx context.Context, pattern string, data interface{}) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", pattern, err)
	}
	body, err := json.Marshal(Envelope{Pattern: pattern, Data: raw})
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msgID := uuid.NewString()
	subject := Subject(p.prefix, pattern)
	if _, err := p.js.Publish(ctx, subject, body, jetstream.WithMsgID(msgID)); err != nil {
		return "", fmt.Errorf("failed to publish to subject '%s': %w", subject, err)
	}
	log.Printf("Enqueued %s (ID: %s)", subject, msgID)
	return msgID, nil
}
