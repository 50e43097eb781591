//go:build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"custodia/internal/platform/config"
	"custodia/pkg/testutil/containers"
)

func TestKafkaPublisherRoundtrip(t *testing.T) {
	ctx := context.Background()
	broker := containers.StartRedpanda(ctx, t)

	cfg := config.KafkaConfig{Brokers: []string{broker}, Topic: "custodia.ledger.events"}
	publisher, err := NewKafkaPublisher(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(publisher.Close)

	event := BatchTransferred{
		BatchID:        7,
		DistributionID: 4,
		From:           "acme-labs",
		To:             "medsupply-east",
		Quantity:       600,
		Timestamp:      time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, publisher.Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	record := records[0]
	require.Equal(t, "7", string(record.Key), "keyed by batch id")

	var header string
	for _, h := range record.Headers {
		if h.Key == "event" {
			header = string(h.Value)
		}
	}
	require.Equal(t, "BatchTransferred", header)

	var got BatchTransferred
	require.NoError(t, json.Unmarshal(record.Value, &got))
	require.Equal(t, event, got)
}
