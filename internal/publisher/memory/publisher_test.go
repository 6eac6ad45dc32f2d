package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsRunEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id, err := pub.Publish(ctx, "sauna-runs", map[string]string{"run_id": "r1", "result": "success"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "memory-1", msgs[0].ID)
	require.Equal(t, "sauna-runs", msgs[0].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "sauna-runs", pub.Messages()[0].Topic)
}

func TestPublisherDropsOldest(t *testing.T) {
	t.Parallel()

	pub := NewWithRetention(2)
	ctx := context.Background()
	for _, run := range []string{"r1", "r2", "r3"} {
		_, err := pub.Publish(ctx, "sauna-runs", run)
		require.NoError(t, err)
	}

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "r2", msgs[0].Payload)
	require.Equal(t, "memory-3", msgs[1].ID)
}
