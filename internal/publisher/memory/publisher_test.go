package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "topic-a", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "topic-b", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	recs := pub.Records()
	require.Len(t, recs, 2)
	require.Equal(t, "topic-a", recs[0].Topic)
	require.JSONEq(t, `{"k":"v"}`, string(recs[0].Data))
	require.Equal(t, "topic-b", recs[1].Topic)

	recs[0].Topic = "modified"
	require.Equal(t, "topic-a", pub.Records()[0].Topic)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "topic", make(chan int))
	require.Error(t, err)
	require.Empty(t, pub.Records())
}
