package events

import (
	"errors"
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventJobProgress)
	bus.PublishJobProgress("paper.docx", 60, "processing")

	select {
	case received := <-ch:
		progress, ok := received.(*JobProgressEvent)
		if !ok {
			t.Fatal("Expected JobProgressEvent")
		}
		if progress.SourceName != "paper.docx" {
			t.Errorf("Expected source 'paper.docx', got '%s'", progress.SourceName)
		}
		if progress.Percent != 60 {
			t.Errorf("Expected percent 60, got %d", progress.Percent)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_TypeFiltering(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	stateCh := bus.Subscribe(EventJobState)
	allCh := bus.SubscribeAll()

	bus.PublishSecondaryFailure("history", "could not save history", errors.New("store down"))

	select {
	case ev := <-stateCh:
		t.Fatalf("state subscriber should not see %s", ev.Type())
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case ev := <-allCh:
		n, ok := ev.(*NotificationEvent)
		if !ok {
			t.Fatalf("Expected NotificationEvent, got %T", ev)
		}
		if !n.Secondary {
			t.Error("Expected Secondary to be true")
		}
		if n.Source != "history" {
			t.Errorf("Expected source history, got %s", n.Source)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event on all-events channel")
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventJobState)
	bus.PublishJobState("a.docx", "idle", "uploading", "", "", "")
	bus.PublishJobState("a.docx", "uploading", "processing", "", "", "")

	if got := bus.GetDroppedEventCount(); got != 1 {
		t.Errorf("Expected 1 dropped event, got %d", got)
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(EventJobState)
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed")
	}

	// Publishing after close must not panic
	bus.PublishJobState("a.docx", "idle", "uploading", "", "", "")

	late := bus.Subscribe(EventJobState)
	if _, ok := <-late; ok {
		t.Error("Expected subscription on closed bus to be closed")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTemplatesChanged)
	bus.Unsubscribe(EventTemplatesChanged, ch)
	bus.PublishTemplatesChanged("ieee_conference", 2)

	if _, ok := <-ch; ok {
		t.Error("Expected unsubscribed channel to be closed and empty")
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	bus.PublishJobProgress("x", 20, "dispatch")
	if got := bus.GetDroppedEventCount(); got != 0 {
		t.Errorf("nil bus reported %d dropped events", got)
	}
}
