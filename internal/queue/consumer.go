package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"collabhub/internal/common"
	"collabhub/internal/config"
	"collabhub/internal/dbmysql"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes the data part of one envelope.
type Handler func(ctx context.Context, data []byte) error

// DeadLetterRecorder stores events that will not be processed again.
type DeadLetterRecorder interface {
	Record(ctx context.Context, dl *dbmysql.DeadLetter) error
}

var errNoHandler = errors.New("no handler registered")

type Consumer struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	cfg        config.NotificationConfig
	deadLetter DeadLetterRecorder
	tracer     trace.Tracer
}

// NewConsumer builds a consumer. deadLetter may be nil when no ledger is configured.
func NewConsumer(cfg config.NotificationConfig, deadLetter DeadLetterRecorder) *Consumer {
	return &Consumer{
		handlers:   make(map[string]Handler),
		cfg:        cfg,
		deadLetter: deadLetter,
		tracer:     otel.Tracer("collabhub/queue"),
	}
}

func (c *Consumer) Handle(pattern string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[pattern] = h
}

func (c *Consumer) handler(pattern string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[pattern]
	return h, ok
}

// Start attaches a durable pull consumer to the stream and processes messages until the
// returned ConsumeContext is stopped.
func (c *Consumer) Start(ctx context.Context, js jetstream.JetStream, natsCfg config.NATSConfig) (jetstream.ConsumeContext, error) {
	cons, err := js.CreateOrUpdateConsumer(ctx, natsCfg.Stream, consumerConfig(c.cfg, natsCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer '%s': %w", natsCfg.Consumer, err)
	}

	log.Printf("Consuming %s with ack mode %s", Subject(natsCfg.SubjectPrefix, "*"), c.cfg.AckMode)

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		c.Process(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return consumeCtx, nil
}

// consumerConfig maps the ack mode onto the durable consumer. Always mode gets a
// single delivery so a handler outliving AckWait is not run twice.
func consumerConfig(cfg config.NotificationConfig, natsCfg config.NATSConfig) jetstream.ConsumerConfig {
	maxDeliver := 1
	if cfg.AckMode == config.AckRetry {
		maxDeliver = cfg.MaxDeliver
	}
	return jetstream.ConsumerConfig{
		Durable:       natsCfg.Consumer,
		FilterSubject: Subject(natsCfg.SubjectPrefix, "*"),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    maxDeliver,
	}
}

// Process runs the registered handler for msg and settles it according to the ack mode.
// In always mode the message is acked whatever the outcome. In retry mode failures are
// redelivered with a delay until MaxDeliver is reached, then terminated.
func (c *Consumer) Process(ctx context.Context, msg jetstream.Msg) {
	ctx, span := c.tracer.Start(ctx, "queue.HandleEvent", trace.WithAttributes(
		attribute.String("messaging.destination", msg.Subject()),
	))
	defer span.End()

	pattern, err := c.dispatch(ctx, msg)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("Failed to ack %s: %v", msg.Subject(), ackErr)
		}
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	delivered := deliveries(msg)
	if c.cfg.AckMode == config.AckRetry && !isPermanent(err) && delivered < uint64(c.cfg.MaxDeliver) {
		log.Printf("Processing %s failed (attempt %d/%d), retrying: %v", msg.Subject(), delivered, c.cfg.MaxDeliver, err)
		if nakErr := msg.NakWithDelay(c.cfg.RetryDelay); nakErr != nil {
			log.Printf("Failed to nak %s: %v", msg.Subject(), nakErr)
		}
		return
	}

	log.Printf("Dropping %s after %d attempt(s): %v", msg.Subject(), delivered, err)
	c.recordDeadLetter(ctx, msg, pattern, delivered, err)

	var settleErr error
	if c.cfg.AckMode == config.AckRetry {
		settleErr = msg.TermWithReason(err.Error())
	} else {
		settleErr = msg.Ack()
	}
	if settleErr != nil {
		log.Printf("Failed to settle %s: %v", msg.Subject(), settleErr)
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg jetstream.Msg) (string, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		return "", Permanent(fmt.Errorf("invalid envelope: %w", err))
	}
	h, ok := c.handler(env.Pattern)
	if !ok {
		return env.Pattern, Permanent(fmt.Errorf("%w for pattern %q", errNoHandler, env.Pattern))
	}
	return env.Pattern, h(ctx, env.Data)
}

func (c *Consumer) recordDeadLetter(ctx context.Context, msg jetstream.Msg, pattern string, delivered uint64, cause error) {
	if c.deadLetter == nil {
		return
	}
	dl := &dbmysql.DeadLetter{
		MsgID:      msg.Headers().Get("Nats-Msg-Id"),
		Subject:    msg.Subject(),
		Pattern:    pattern,
		Payload:    msg.Data(),
		Error:      cause.Error(),
		Deliveries: delivered,
	}
	if err := c.deadLetter.Record(ctx, dl); err != nil {
		log.Printf("Failed to record dead letter for %s: %v", msg.Subject(), err)
	}
}

func deliveries(msg jetstream.Msg) uint64 {
	md, err := msg.Metadata()
	if err != nil || md == nil {
		return 1
	}
	return md.NumDelivered
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// isPermanent covers explicit Permanent errors and invalid or unresolvable requests.
func isPermanent(err error) bool {
	var p permanentError
	if errors.As(err, &p) {
		return true
	}
	return errors.Is(err, common.ErrBadRequest) || errors.Is(err, common.ErrNotFound)
}
