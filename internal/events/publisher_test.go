package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishAndConsume(t *testing.T) {
	bus := NewBus(2)
	ev := BatchCreated{BatchID: 1, ProductID: "prod-a", Manufacturer: "mfg-01", Quantity: 1000}

	require.NoError(t, bus.Publish(context.Background(), ev))
	got := <-bus.C()
	assert.Equal(t, ev, got)
}

func TestBus_FullBufferDrops(t *testing.T) {
	bus := NewBus(1)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, BatchCreated{BatchID: 1}))

	err := bus.Publish(ctx, BatchCreated{BatchID: 2})
	assert.True(t, errors.Is(err, ErrBufferFull))
}

type failingSink struct{ err error }

func (s failingSink) Publish(context.Context, Event) error { return s.err }

func TestFanout_ContinuesPastFailingSink(t *testing.T) {
	bus := NewBus(1)
	boom := errors.New("boom")
	fan := NewFanout(failingSink{err: boom}, bus)

	err := fan.Publish(context.Background(), UnitsSold{BatchID: 3, SaleID: 1})
	assert.True(t, errors.Is(err, boom))

	// The healthy sink still received the event.
	got := <-bus.C()
	assert.Equal(t, "UnitsSold", got.Name())
}

// TestWirePayloads pins the external event contract: field names consumers
// index on must not drift.
func TestWirePayloads(t *testing.T) {
	raw, err := json.Marshal(BatchTransferred{BatchID: 7, DistributionID: 9, From: "a", To: "b", Quantity: 50})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, field := range []string{"batchId", "distributionId", "from", "to", "quantity", "timestamp"} {
		assert.Contains(t, decoded, field)
	}

	raw, err = json.Marshal(UnitsSold{BatchID: 7, SaleID: 2, Pharmacy: "ph", Consumer: "c", Quantity: 5})
	require.NoError(t, err)
	decoded = nil
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, field := range []string{"batchId", "saleId", "pharmacy", "consumer", "quantity", "timestamp"} {
		assert.Contains(t, decoded, field)
	}
}
