package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
)

type ingesterMock struct {
	submissions []ingestion.Submission
}

func (i *ingesterMock) Ingest(ctx context.Context, s ingestion.Submission) (ingestion.Receipt, error) {
	i.submissions = append(i.submissions, s)
	return ingestion.Receipt{ID: "r-1", Variant: s.Variant()}, nil
}

func newSubscriberForTest() (*Subscriber, *ingesterMock) {
	ingester := &ingesterMock{}
	s := NewSubscriber(Options{Broker: "tcp://localhost:1883", ClientID: "test"}, ingester, logging.NewLogger())
	return s, ingester
}

func TestThatTopicsSelectTheReportVariant(t *testing.T) {
	s, ingester := newSubscriberForTest()

	receipt, err := s.handle(context.Background(), "reports/flow/lab", []byte(`{"id_device":"gw-1","flow":"3.5"}`))
	require.NoError(t, err)
	assert.Equal(t, ingestion.FlowLab, receipt.Variant)

	require.Len(t, ingester.submissions, 1)
	field, id := ingester.submissions[0].Device()
	assert.Equal(t, "id_device", field)
	assert.Equal(t, "gw-1", id)
}

func TestThatUnknownTopicsAreIgnored(t *testing.T) {
	s, ingester := newSubscriberForTest()

	for _, topic := range []string{"reports/radiation", "other/flow", "reports"} {
		_, err := s.handle(context.Background(), topic, []byte(`{}`))
		assert.Error(t, err, topic)
	}

	assert.Empty(t, ingester.submissions)
}

func TestThatMalformedPayloadsAreRejected(t *testing.T) {
	s, ingester := newSubscriberForTest()

	_, err := s.handle(context.Background(), "reports/quality", []byte(`{"idDevice":`))

	assert.Error(t, err)
	assert.Empty(t, ingester.submissions)
}

func TestThatTheSubscriptionCoversEveryVariant(t *testing.T) {
	s, _ := newSubscriberForTest()
	assert.Equal(t, "reports/#", s.Topic())
}
