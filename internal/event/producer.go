package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	pkgkafka "github.com/caraseli02/MoldovaDirect-sub004/pkg/kafka"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

// Kafka topic constants for checkout domain events.
const (
	TopicCheckoutInitiated = "storefront.checkout.initiated"
	TopicCheckoutCompleted = "storefront.checkout.completed"
	TopicCheckoutCancelled = "storefront.checkout.cancelled"
	TopicPaymentFailed     = "storefront.checkout.payment_failed"
)

// AggregateTypeCheckout is the aggregate type of every checkout event.
const AggregateTypeCheckout = "checkout"

// SourceCheckoutService identifies events originating from this service.
const SourceCheckoutService = "checkout-service"

// Producer publishes checkout lifecycle events to Kafka.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the checkout service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutInitiated publishes a checkout.initiated event.
func (p *Producer) PublishCheckoutInitiated(ctx context.Context, e service.CheckoutEvent) error {
	return p.publish(ctx, TopicCheckoutInitiated, e)
}

// PublishCheckoutCompleted publishes a checkout.completed event.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, e service.CheckoutEvent) error {
	return p.publish(ctx, TopicCheckoutCompleted, e)
}

// PublishCheckoutCancelled publishes a checkout.cancelled event.
func (p *Producer) PublishCheckoutCancelled(ctx context.Context, e service.CheckoutEvent) error {
	return p.publish(ctx, TopicCheckoutCancelled, e)
}

// PublishPaymentFailed publishes a checkout.payment_failed event.
func (p *Producer) PublishPaymentFailed(ctx context.Context, e service.CheckoutEvent) error {
	return p.publish(ctx, TopicPaymentFailed, e)
}

func (p *Producer) publish(ctx context.Context, topic string, e service.CheckoutEvent) error {
	event, err := pkgkafka.NewEvent(topic, e.SessionID, AggregateTypeCheckout, SourceCheckoutService, e)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		event.WithCorrelationID(cid)
	}
	if e.UserID != "" {
		event.WithMetadata("user_id", e.UserID)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published checkout event",
		slog.String("topic", topic),
		slog.String("session_id", e.SessionID),
		slog.String("step", string(e.Step)),
	)
	return nil
}

var _ service.EventPublisher = (*Producer)(nil)
