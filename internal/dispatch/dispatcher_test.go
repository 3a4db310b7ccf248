package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"

	"github.com/thgg666/seckill-core/internal/domain"
)

func TestIsRetryable_RetriableProtocolError(t *testing.T) {
	err := kerr.RequestTimedOut // a kerr.Error with Retriable=true
	if !isRetryable(err) {
		t.Error("expected RequestTimedOut to be classified as retryable")
	}
}

func TestIsRetryable_TerminalProtocolError(t *testing.T) {
	err := kerr.InvalidTopicException // a kerr.Error with Retriable=false
	if isRetryable(err) {
		t.Error("expected InvalidTopicException to be classified as terminal")
	}
}

func TestIsRetryable_UnclassifiedErrorDefaultsToRetryable(t *testing.T) {
	err := errors.New("connection reset by peer")
	if !isRetryable(err) {
		t.Error("expected a non-protocol transport error to default to retryable")
	}
}

func TestDispatcher_PublishFailsFastWhenQueueFull(t *testing.T) {
	d := &kafkaDispatcher{
		topic: "seckill.reservations",
		queue: make(chan publishRequest, 1),
		done:  make(chan struct{}),
	}
	// Fill the queue without a drain loop running, so the next Publish
	// has nowhere to go.
	d.queue <- publishRequest{}

	err := d.Publish(context.Background(), domain.ReservationEvent{ActivityID: "act1"})
	if domain.KindOf(err) != domain.KindBrokerUnavailable {
		t.Fatalf("expected KindBrokerUnavailable, got %v", domain.KindOf(err))
	}
}

func TestDispatcher_PublishRespectsContextDeadline(t *testing.T) {
	d := &kafkaDispatcher{
		topic: "seckill.reservations",
		queue: make(chan publishRequest, 1),
		done:  make(chan struct{}),
	}
	// No drain loop is running, so the request is accepted into the
	// queue but never answered — Publish must still return once ctx
	// expires rather than blocking forever.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Publish(ctx, domain.ReservationEvent{ActivityID: "act1"})
	if domain.KindOf(err) != domain.KindDeadlineExceeded {
		t.Fatalf("expected KindDeadlineExceeded, got %v", domain.KindOf(err))
	}
}
