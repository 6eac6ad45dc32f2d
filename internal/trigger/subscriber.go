// Package trigger starts refresh runs from Pub/Sub messages, so a Cloud
// Scheduler job or any other publisher can request a run without calling the
// HTTP API.
package trigger

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/orchestrator"
)

// Receiver delivers messages to f until ctx is done. *pubsub.Subscription implements it.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Subscriber runs the orchestrator once per received message.
type Subscriber struct {
	receiver Receiver
	runner   orchestrator.Runner
	logger   *zap.Logger
}

// NewSubscriber builds a Subscriber.
func NewSubscriber(receiver Receiver, runner orchestrator.Runner, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{receiver: receiver, runner: runner, logger: logger.Named("trigger")}
}

// Run blocks receiving messages until ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.Info("listening for refresh requests")
	if err := s.receiver.Receive(ctx, s.handle); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive refresh requests: %w", err)
	}
	return nil
}

func (s *Subscriber) handle(ctx context.Context, msg *pubsub.Message) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Attributes))
	logger := s.logger.With(zap.String("message_id", msg.ID))

	summary, err := s.runner.Run(ctx, orchestrator.TriggerExternal)
	switch {
	case err == nil:
		logger.Info("refresh run finished", zap.String("run_id", summary.RunID), zap.String("message", summary.Message))
	case errors.Is(err, orchestrator.ErrRunInProgress):
		logger.Info("refresh request coalesced into the running run")
	default:
		logger.Warn("refresh run failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}

	if shouldAck(ctx, err) {
		msg.Ack()
		return
	}
	msg.Nack()
}

// shouldAck acks every request that reached the orchestrator. Only requests
// interrupted by shutdown are redelivered; a failed run is not retried here
// because the next scheduled run covers it.
func shouldAck(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return err == nil ||
		errors.Is(err, orchestrator.ErrRunInProgress) ||
		errors.Is(err, orchestrator.ErrAllSourcesFailed)
}
