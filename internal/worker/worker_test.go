package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) HandleEvent(ctx context.Context, event *models.OrderEvent) error {
	return m.Called(ctx, event).Error(0)
}

// sliceSource replays fixed messages then returns
type sliceSource struct {
	msgs   []kafka.Message
	errs   []error
	closed bool
}

func (s *sliceSource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range s.msgs {
		s.errs = append(s.errs, handler(ctx, msg))
	}
	return nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func TestNotificationWorker_DeliversOrderEvents(t *testing.T) {
	event := models.OrderEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-9", EventType: models.EventTypeOrderCancelled, Timestamp: time.Now()},
		OrderID:   5,
		UserID:    3,
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	sink := &mockSink{}
	sink.On("HandleEvent", mock.Anything, mock.MatchedBy(func(e *models.OrderEvent) bool {
		return e.EventID == "evt-9" && e.OrderID == 5
	})).Return(nil).Once()

	src := &sliceSource{msgs: []kafka.Message{{Value: body}}}
	w := newNotificationWorker(src, sink)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())

	sink.AssertExpectations(t)
	assert.Equal(t, []error{nil}, src.errs)
	assert.True(t, src.closed)
}
