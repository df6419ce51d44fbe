// Package events publishes payment lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/domain/payment"
)

// Writer is the subset of *kafka.Writer used by KafkaPublisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Writer = (*kafka.Writer)(nil)

// KafkaConfig configures the Kafka writer.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// KafkaPublisher publishes events to a Kafka topic keyed by order id, so
// events of one order stay ordered within a partition.
type KafkaPublisher struct {
	w Writer
}

var _ payment.Publisher = (*KafkaPublisher)(nil)

// NewKafkaWriter creates a writer for cfg.
func NewKafkaWriter(cfg KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, nil
}

// NewKafkaPublisher creates a publisher writing to w.
func NewKafkaPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Publish writes e as a JSON message.
func (p *KafkaPublisher) Publish(ctx context.Context, e payment.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s", e.Type)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// LogPublisher logs events instead of publishing them. It is used when no
// broker is configured.
type LogPublisher struct{}

var _ payment.Publisher = LogPublisher{}

// Publish logs e.
func (LogPublisher) Publish(ctx context.Context, e payment.Event) error {
	zctx.From(ctx).Info("Payment event",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.Int64("order_id", e.OrderID),
		zap.String("status", string(e.Status)),
		zap.String("reference", e.Reference),
	)
	return nil
}

// CartClearer asks the storefront to empty the buyer's cart by publishing a
// cart.clear_requested event.
type CartClearer struct {
	pub payment.Publisher
	now func() time.Time
}

var _ payment.Cart = (*CartClearer)(nil)

// NewCartClearer creates a CartClearer publishing through pub.
func NewCartClearer(pub payment.Publisher) *CartClearer {
	return &CartClearer{pub: pub, now: time.Now}
}

// Clear publishes the clear request for orderID.
func (c *CartClearer) Clear(ctx context.Context, orderID int64) error {
	return c.pub.Publish(ctx, payment.Event{
		ID:         uuid.NewString(),
		Type:       payment.EventCartClearRequested,
		OrderID:    orderID,
		OccurredAt: c.now().UTC(),
	})
}
