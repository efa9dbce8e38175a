package diag

import "testing"

func TestLoggerForwardsEventsToSink(t *testing.T) {
	var got []Event
	l := New(func(e Event) { got = append(got, e) })

	l.Info("started", map[string]any{"subscriptionId": 1})
	l.Warn("queue full", map[string]any{"requestHandle": 7})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Level != LevelInfo || got[0].Message != "started" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].Level != LevelWarn || got[1].Message != "queue full" {
		t.Fatalf("unexpected second event: %+v", got[1])
	}
}

func TestLoggerNilReceiverAndNilSinkAreSafe(t *testing.T) {
	var l *Logger
	l.Info("ignored", nil)

	empty := New(nil)
	empty.Warn("also ignored", nil)
}
