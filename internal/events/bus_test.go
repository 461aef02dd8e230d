package events

import (
	"errors"
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	ch2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	if ch1 == nil || ch2 == nil {
		t.Error("expected non-nil channels")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(ch)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusPublish(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()

	event := NewWorkerStartedEvent("client-1")
	bus.Publish(event)

	select {
	case received := <-ch:
		if received.Type != EventWorkerStarted {
			t.Errorf("expected type %s, got %s", EventWorkerStarted, received.Type)
		}
		if received.WorkerID != "client-1" {
			t.Errorf("expected client-1, got %s", received.WorkerID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestBusPublishMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewSessionConnectedEvent("client-0", "127.0.0.1:31850", 0))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != EventSessionConnected {
				t.Errorf("subscriber %d: expected type %s, got %s", i, EventSessionConnected, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusPublishNonBlocking(t *testing.T) {
	bus := NewBusWithBuffer(1)

	ch := bus.Subscribe()

	// Fill the buffer
	bus.Publish(NewWorkerStartedEvent("client-1"))
	bus.Publish(NewWorkerStartedEvent("client-2"))
	bus.Publish(NewWorkerStartedEvent("client-3"))

	if bus.Dropped() != 2 {
		t.Errorf("expected 2 dropped deliveries, got %d", bus.Dropped())
	}

	select {
	case ev := <-ch:
		if ev.WorkerID != "client-1" {
			t.Errorf("expected first event to be kept, got %s", ev.WorkerID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}

	// Channel should be closed
	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed")
	}
}

func TestEventCreation(t *testing.T) {
	t.Run("IndexReadyEvent", func(t *testing.T) {
		event := NewIndexReadyEvent("server", 1000)
		if event.Type != EventIndexReady {
			t.Errorf("expected %s, got %s", EventIndexReady, event.Type)
		}
		if event.Data.Keys != 1000 {
			t.Errorf("expected 1000 keys, got %d", event.Data.Keys)
		}
	})

	t.Run("SessionFailedEvent", func(t *testing.T) {
		event := NewSessionFailedEvent("client-2", 3, errors.New("connection refused"))
		if event.Type != EventSessionFailed {
			t.Errorf("expected %s, got %s", EventSessionFailed, event.Type)
		}
		if event.Data.Session != 3 {
			t.Errorf("expected session 3, got %d", event.Data.Session)
		}
		if event.Data.Error != "connection refused" {
			t.Errorf("unexpected error text %q", event.Data.Error)
		}

		noErr := NewSessionFailedEvent("client-2", 0, nil)
		if noErr.Data.Error != "" {
			t.Errorf("expected empty error, got %q", noErr.Data.Error)
		}
	})

	t.Run("LatencyReportEvent", func(t *testing.T) {
		at := time.Unix(1_700_000_000, 0)
		event := NewLatencyReportEvent("client-0", at, LatencyData{Completions: 4, PointCount: 4, PointP50: 3, PointP99: 99})
		if event.Type != EventLatencyReport {
			t.Errorf("expected %s, got %s", EventLatencyReport, event.Type)
		}
		if !event.Timestamp.Equal(at) {
			t.Errorf("expected timestamp %v, got %v", at, event.Timestamp)
		}
		if event.Data.Latency == nil || event.Data.Latency.PointP99 != 99 {
			t.Errorf("unexpected latency data %+v", event.Data.Latency)
		}
	})

	t.Run("WorkerLifecycle", func(t *testing.T) {
		start := NewWorkerStartedEvent("server-0")
		stop := NewWorkerStoppedEvent("server-0")
		if start.Type != EventWorkerStarted || stop.Type != EventWorkerStopped {
			t.Errorf("unexpected types %s/%s", start.Type, stop.Type)
		}
	})
}

func TestBusSubscribeFiltersByType(t *testing.T) {
	bus := NewBus()

	reports := bus.Subscribe(EventLatencyReport)
	all := bus.Subscribe()

	bus.Publish(NewWorkerStartedEvent("client-0"))
	bus.Publish(NewLatencyReportEvent("client-0", time.Unix(1_700_000_000, 0), LatencyData{Completions: 1}))

	if len(reports) != 1 {
		t.Fatalf("expected 1 filtered event, got %d", len(reports))
	}
	if ev := <-reports; ev.Type != EventLatencyReport {
		t.Errorf("expected %s, got %s", EventLatencyReport, ev.Type)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 events on unfiltered subscriber, got %d", len(all))
	}
}

func TestBusDroppedForSubscriber(t *testing.T) {
	bus := NewBusWithBuffer(1)

	slow := bus.Subscribe(EventWorkerStarted)
	other := bus.Subscribe(EventLatencyReport)

	bus.Publish(NewWorkerStartedEvent("server-0"))
	bus.Publish(NewWorkerStartedEvent("server-1"))

	if got := bus.DroppedFor(slow); got != 1 {
		t.Errorf("expected 1 drop for slow subscriber, got %d", got)
	}
	if got := bus.DroppedFor(other); got != 0 {
		t.Errorf("filtered subscriber should not count drops, got %d", got)
	}
	if bus.Dropped() != 1 {
		t.Errorf("expected 1 total drop, got %d", bus.Dropped())
	}

	bus.Unsubscribe(slow)
	if got := bus.DroppedFor(slow); got != 0 {
		t.Errorf("expected 0 for removed subscriber, got %d", got)
	}
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
}
