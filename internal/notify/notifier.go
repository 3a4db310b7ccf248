// Package notify is a best-effort alert fan-out used by the reconciler
// and the metrics collector to publish alerts for an external
// on-call/alerting consumer. It is deliberately separate from the
// message dispatcher: alerts are not ReservationEvents, carry no
// ordering or delivery guarantee, and are allowed to be dropped if
// nothing is subscribed. NATS core pub/sub (not JetStream) fits exactly
// that fire-and-forget shape.
package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Alert is a structured notification emitted by the reconciler or the
// metrics collector.
type Alert struct {
	Source    string    `json:"source"` // "reconciler" | "metrics"
	Severity  string    `json:"severity"`
	Subject   string    `json:"subject"` // e.g. a hot-store key, a metric name
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier publishes alerts. Publish never blocks the caller on a slow
// or absent subscriber beyond the underlying NATS client's internal
// buffering — it is not in the request-serving hot path.
type Notifier interface {
	Publish(alert Alert)
	Close()
}

const subject = "seckill.alerts"

type natsNotifier struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// New connects to the NATS server at url. On connection failure it logs
// and returns a no-op notifier rather than failing startup — alerting is
// an ambient concern, not a request-path dependency, and doesn't carry
// the durable broker's reachability bar.
func New(url string, logger zerolog.Logger) Notifier {
	conn, err := nats.Connect(url,
		nats.Name("seckill-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("alert notifier: NATS unreachable, alerts will be dropped")
		return noopNotifier{logger: logger}
	}
	return &natsNotifier{conn: conn, logger: logger}
}

func (n *natsNotifier) Publish(alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error().Err(err).Msg("failed to encode alert")
		return
	}
	if err := n.conn.Publish(subject, payload); err != nil {
		n.logger.Warn().Err(err).Msg("failed to publish alert")
	}
}

func (n *natsNotifier) Close() {
	n.conn.Drain()
}

type noopNotifier struct{ logger zerolog.Logger }

func (n noopNotifier) Publish(alert Alert) {
	n.logger.Warn().Str("severity", alert.Severity).Str("subject", alert.Subject).Msg(alert.Message)
}

func (n noopNotifier) Close() {}
