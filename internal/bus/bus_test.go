package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribePrefix(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 4)
	defer unsub()

	b.Emit(KindPassStarted, nil)
	b.Emit(KindChatUpserted, nil) // different namespace, must not arrive

	select {
	case evt := <-ch:
		if evt.Kind != KindPassStarted {
			t.Errorf("kind = %q, want %q", evt.Kind, KindPassStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sync event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected extra event %q", evt.Kind)
	default:
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 1)
	defer unsub()

	b.Emit(KindPassStarted, 1)
	b.Emit(KindPassStarted, 2) // dropped, buffer is full

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("payload = %v, want 1", evt.Payload)
	}
	select {
	case <-ch:
		t.Error("second event should have been dropped")
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 4)
	unsub()

	b.Emit(KindPassFinished, nil)

	select {
	case <-ch:
		t.Error("received event after unsubscribe")
	default:
	}
}
