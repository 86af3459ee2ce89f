package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-ledger-service/pkg/cloudevents"
)

func TestMessageRoundTrip(t *testing.T) {
	factory := cloudevents.NewEventFactory(cloudevents.SourceStockLedger)
	event, err := factory.CreateEvent(context.Background(), "evt-1", "wms.stock.moved", "stock-WH1:A:SKU", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), map[string]string{"k": "v"})
	require.NoError(t, err)
	event.Sequence = 42
	event.WarehouseID = "WH1"
	event.CorrelationID = "corr-1"

	msg, err := toMessage(event)
	require.NoError(t, err)
	assert.Equal(t, []byte("stock-WH1:A:SKU"), msg.Key)

	parsed, err := ParseMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), parsed.Sequence)
	assert.Equal(t, "WH1", parsed.WarehouseID)
	assert.Equal(t, "corr-1", parsed.CorrelationID)
	assert.Equal(t, event.ID, parsed.ID)
	assert.JSONEq(t, `{"k":"v"}`, string(parsed.Data))
}

func TestParseMessage_Rejects(t *testing.T) {
	tests := []struct {
		name string
		msg  kafka.Message
	}{
		{name: "not json", msg: kafka.Message{Value: []byte("{")}},
		{name: "missing id", msg: kafka.Message{Value: []byte(`{"specversion":"1.0","type":"t","source":"s"}`)}},
		{name: "bad sequence header", msg: kafka.Message{
			Value:   []byte(`{"specversion":"1.0","id":"1","type":"t","source":"s"}`),
			Headers: []kafka.Header{{Key: "ce-wmssequence", Value: []byte("abc")}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage(tt.msg)
			assert.Error(t, err)
		})
	}
}
