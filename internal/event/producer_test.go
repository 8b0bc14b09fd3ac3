package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	pkgkafka "github.com/caraseli02/MoldovaDirect-sub004/pkg/kafka"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	return m.Called(ctx, topic, event).Error(0)
}

func sampleEvent() service.CheckoutEvent {
	return service.CheckoutEvent{
		SessionID:     "sess-1",
		UserID:        "user-1",
		Step:          domain.StepConfirmation,
		OrderID:       "ord-1",
		PaymentMethod: domain.PaymentCash,
		ItemCount:     2,
		Total:         699,
		Currency:      "EUR",
	}
}

func TestProducer_Topics(t *testing.T) {
	tests := []struct {
		topic   string
		publish func(*Producer, context.Context, service.CheckoutEvent) error
	}{
		{TopicCheckoutInitiated, (*Producer).PublishCheckoutInitiated},
		{TopicCheckoutCompleted, (*Producer).PublishCheckoutCompleted},
		{TopicCheckoutCancelled, (*Producer).PublishCheckoutCancelled},
		{TopicPaymentFailed, (*Producer).PublishPaymentFailed},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			pub := new(mockPublisher)
			pub.On("Publish", mock.Anything, tt.topic, mock.MatchedBy(func(e *pkgkafka.Event) bool {
				return e.EventType == tt.topic &&
					e.AggregateID == "sess-1" &&
					e.AggregateType == AggregateTypeCheckout &&
					e.Source == SourceCheckoutService &&
					e.Metadata["user_id"] == "user-1"
			})).Return(nil)

			p := NewProducer(pub, logger.Discard())
			require.NoError(t, tt.publish(p, context.Background(), sampleEvent()))
			pub.AssertExpectations(t)
		})
	}
}

func TestProducer_PayloadAndCorrelation(t *testing.T) {
	pub := new(mockPublisher)
	var published *pkgkafka.Event
	pub.On("Publish", mock.Anything, TopicCheckoutCompleted, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	ctx := logger.WithCorrelationID(context.Background(), "corr-9")
	require.NoError(t, NewProducer(pub, logger.Discard()).PublishCheckoutCompleted(ctx, sampleEvent()))

	require.NotNil(t, published)
	assert.Equal(t, "corr-9", published.CorrelationID)

	var data service.CheckoutEvent
	require.NoError(t, json.Unmarshal(published.Data, &data))
	assert.Equal(t, sampleEvent(), data)
}

func TestProducer_PublishError(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := NewProducer(pub, logger.Discard()).PublishPaymentFailed(context.Background(), sampleEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), TopicPaymentFailed)
}
