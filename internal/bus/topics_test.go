package bus

import (
	"testing"
)

// TestEventTopics_Constants verifies all event constants exist and are unique.
func TestEventTopics_Constants(t *testing.T) {
	all := []string{
		TopicProcessStarting,
		TopicProcessStarted,
		TopicProcessOutput,
		TopicProcessExited,
		TopicProcessSpawnError,
		TopicAttachStarted,
		TopicAttachRetry,
		TopicAttached,
		TopicAttachFailed,
	}

	seen := map[string]bool{}
	for _, topic := range all {
		if topic == "" {
			t.Fatal("empty topic constant")
		}
		if seen[topic] {
			t.Fatalf("duplicate topic %q", topic)
		}
		seen[topic] = true
	}
}

// TestEventTopics_Prefixes verifies the prefix contract consumers rely on:
// a "process." subscription sees every child lifecycle event and a "ui."
// subscription sees every attachment event.
func TestEventTopics_Prefixes(t *testing.T) {
	b := New()
	procSub := b.Subscribe("process.")
	uiSub := b.Subscribe("ui.")
	defer b.Unsubscribe(procSub)
	defer b.Unsubscribe(uiSub)

	b.Publish(TopicProcessStarted, ProcessStartedEvent{RunID: "r1", PID: 42, Port: 18789})
	b.Publish(TopicAttachRetry, AttachAttemptEvent{Attempt: 1, Err: "connection refused"})

	ev := <-procSub.Ch()
	if _, ok := ev.Payload.(ProcessStartedEvent); !ok {
		t.Fatalf("unexpected payload type %T", ev.Payload)
	}
	ev = <-uiSub.Ch()
	got, ok := ev.Payload.(AttachAttemptEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", ev.Payload)
	}
	if got.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", got.Attempt)
	}
}
