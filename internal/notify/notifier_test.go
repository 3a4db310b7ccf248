package notify

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_FallsBackToNoopWhenNATSUnreachable(t *testing.T) {
	n := New("nats://127.0.0.1:1", zerolog.Nop())
	if _, ok := n.(noopNotifier); !ok {
		t.Fatalf("expected a noopNotifier when the broker is unreachable, got %T", n)
	}
}

func TestNoopNotifier_PublishAndCloseNeverPanic(t *testing.T) {
	n := noopNotifier{logger: zerolog.Nop()}
	n.Publish(Alert{Source: "reconciler", Severity: "warning", Subject: "stock:act1", Message: "drift detected"})
	n.Close()
}
