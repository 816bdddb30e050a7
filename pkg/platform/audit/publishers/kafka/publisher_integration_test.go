//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "verethfier/pkg/platform/audit"
	"verethfier/pkg/testutil/containers"
)

func TestSink_RoundTripThroughBroker(t *testing.T) {
	broker := containers.NewKafkaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "verethfier.audit.it"
	client, err := NewClient([]string{broker.Broker}, topic)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, EnsureTopic(ctx, client, topic, 1, 1))
	// second call hits TopicAlreadyExists
	require.NoError(t, EnsureTopic(ctx, client, topic, 1, 1))

	event := audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UserID:    "1234",
		GuildID:   "guild-1",
		RoleID:    "role-1",
		Action:    string(audit.EventRoleGranted),
	}
	require.NoError(t, NewSink(client, topic).Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, "1234", string(records[0].Key))
	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, event, got)
}
