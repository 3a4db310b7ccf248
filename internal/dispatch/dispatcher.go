// Package dispatch is the durable, at-least-once publish of
// ReservationEvents to a downstream Kafka/Redpanda broker via franz-go.
// The order-materialization worker is expected to be a consumer group
// reading the same topic.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/thgg666/seckill-core/internal/domain"
	"github.com/thgg666/seckill-core/internal/metrics"
)

// Dispatcher publishes a ReservationEvent and returns once the broker
// has acknowledged persistence. KindBrokerUnavailable marks a transient
// broker condition; the reservation engine does not retry and runs its
// compensating rollback on any returned error, whatever its kind.
type Dispatcher interface {
	Publish(ctx context.Context, event domain.ReservationEvent) error
	Ping(ctx context.Context) error
	Close()
}

// kafkaDispatcher buffers publishes through a bounded channel drained by
// a single goroutine. A publish that finds the channel full fails at once
// with KindBrokerUnavailable instead of piling up goroutines; a caller
// whose deadline expires while waiting gets KindDeadlineExceeded.
type kafkaDispatcher struct {
	client *kgo.Client
	topic  string
	logger zerolog.Logger

	queue chan publishRequest
	done  chan struct{}
}

type publishRequest struct {
	ctx   context.Context
	event domain.ReservationEvent
	resp  chan error
}

// Config configures the dispatcher's underlying franz-go client.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	QueueLen int
}

// New connects a franz-go producer client and starts the drain loop.
func New(cfg Config, logger zerolog.Logger) (Dispatcher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = 1000
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker client: %w", err)
	}

	d := &kafkaDispatcher{
		client: client,
		topic:  cfg.Topic,
		logger: logger,
		queue:  make(chan publishRequest, cfg.QueueLen),
		done:   make(chan struct{}),
	}
	go d.drain()
	return d, nil
}

// Publish enqueues event for synchronous, acknowledged delivery. If the
// local queue is full, it returns KindBrokerUnavailable immediately and
// the caller must run its compensating rollback.
func (d *kafkaDispatcher) Publish(ctx context.Context, event domain.ReservationEvent) error {
	resp := make(chan error, 1)
	select {
	case d.queue <- publishRequest{ctx: ctx, event: event, resp: resp}:
	default:
		return domain.New(domain.KindBrokerUnavailable, "dispatch queue full")
	}

	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return domain.Wrap(domain.KindDeadlineExceeded, "publish deadline exceeded", ctx.Err())
	}
}

// Ping confirms the broker's metadata is reachable. Used only by the
// startup reachability probe, never on the request path.
func (d *kafkaDispatcher) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx); err != nil {
		return domain.Wrap(domain.KindBrokerUnavailable, "broker unreachable", err)
	}
	return nil
}

func (d *kafkaDispatcher) drain() {
	for {
		select {
		case req := <-d.queue:
			req.resp <- d.produceSync(req.ctx, req.event)
		case <-d.done:
			return
		}
	}
}

func (d *kafkaDispatcher) produceSync(ctx context.Context, event domain.ReservationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "failed to encode reservation event", err)
	}

	record := &kgo.Record{
		Topic: d.topic,
		Key:   []byte(event.ActivityID),
		Value: payload,
	}

	results := d.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			metrics.DispatchErrors.WithLabelValues(string(domain.KindDeadlineExceeded)).Inc()
			return domain.Wrap(domain.KindDeadlineExceeded, "publish deadline exceeded", err)
		}
		if isRetryable(err) {
			metrics.DispatchErrors.WithLabelValues(string(domain.KindBrokerUnavailable)).Inc()
			d.logger.Warn().Err(err).Str("activity_id", event.ActivityID).Msg("broker publish failed, retryable")
			return domain.Wrap(domain.KindBrokerUnavailable, "broker unavailable", err)
		}
		metrics.DispatchErrors.WithLabelValues(string(domain.KindInternal)).Inc()
		d.logger.Error().Err(err).Str("activity_id", event.ActivityID).Msg("broker publish rejected")
		return domain.Wrap(domain.KindInternal, "broker rejected message", err)
	}

	return nil
}

// isRetryable reports whether a produce error is a transient broker
// condition rather than a terminal rejection. Kafka protocol errors
// carry a Retriable flag (pkg/kerr); anything else that isn't a typed
// protocol error (dial failures, connection resets) is treated as
// retryable too, since those are transport failures, not rejections.
func isRetryable(err error) bool {
	var ke *kerr.Error
	if errors.As(err, &ke) {
		return ke.Retriable
	}
	return true
}

func (d *kafkaDispatcher) Close() {
	close(d.done)
	d.client.Close()
}
