package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/private-sauna-availability/internal/orchestrator"
)

type fakeRunner struct {
	mu       sync.Mutex
	triggers []orchestrator.Trigger
	err      error
}

func (r *fakeRunner) Run(_ context.Context, trigger orchestrator.Trigger) (orchestrator.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
	return orchestrator.RunSummary{RunID: "run-1", Trigger: trigger}, r.err
}

func (r *fakeRunner) calls() []orchestrator.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orchestrator.Trigger(nil), r.triggers...)
}

func newTestSubscription(t *testing.T) (*pubsub.Topic, *pubsub.Subscription, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "sauna-refresh")
	require.NoError(t, err)
	t.Cleanup(topic.Stop)
	sub, err := client.CreateSubscription(ctx, "sauna-refresh-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)
	return topic, sub, srv
}

func TestSubscriberRunsAndAcks(t *testing.T) {
	t.Parallel()

	topic, sub, srv := newTestSubscription(t)
	runner := &fakeRunner{}
	s := NewSubscriber(sub, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	id, err := topic.Publish(context.Background(), &pubsub.Message{Data: []byte("refresh")}).Get(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(runner.calls()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, orchestrator.TriggerExternal, runner.calls()[0])
	require.Eventually(t, func() bool {
		msg := srv.Message(id)
		return msg != nil && msg.Acks == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestShouldAck(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{name: "success", ctx: context.Background(), want: true},
		{name: "overlap", ctx: context.Background(), err: orchestrator.ErrRunInProgress, want: true},
		{name: "all failed", ctx: context.Background(), err: orchestrator.ErrAllSourcesFailed, want: true},
		{name: "unexpected", ctx: context.Background(), err: errors.New("boom"), want: false},
		{name: "shutdown", ctx: canceled, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, shouldAck(tt.ctx, tt.err))
		})
	}
}

func TestHandleNacksWithoutPanicking(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("boom")}
	s := NewSubscriber(nil, runner, nil)
	s.handle(context.Background(), &pubsub.Message{ID: "m1", Attributes: map[string]string{}})
	require.Len(t, runner.calls(), 1)
}
