// Package events provides an in-process event bus for job, template and
// artifact notifications.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/doclatex/doclatex/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventJobState           EventType = "job_state"
	EventJobProgress        EventType = "job_progress"
	EventTemplatesChanged   EventType = "templates_changed"
	EventArtifactDownloaded EventType = "artifact_downloaded"
	EventNotification       EventType = "notification"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

func newBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// JobStateEvent is published on every job status transition.
type JobStateEvent struct {
	BaseEvent
	SourceName   string
	OldStatus    string
	NewStatus    string
	JobID        string
	ErrorMessage string
	FailureKind  string
}

// JobProgressEvent carries the client-reported progress percentage.
type JobProgressEvent struct {
	BaseEvent
	SourceName string
	Percent    int
	Stage      string // "dispatch", "upload", "processing", "complete"
}

// TemplatesChangedEvent is published after the registry's view changes.
type TemplatesChangedEvent struct {
	BaseEvent
	ActiveID string
	Count    int
}

// ArtifactDownloadedEvent is published when an archive has been delivered.
type ArtifactDownloadedEvent struct {
	BaseEvent
	JobID    string
	Location string
	Bytes    int64
}

// NotificationEvent reports a user-facing notice.
// Secondary marks failures that happened after a successful primary action
// (history append, template refresh) and must not roll it back.
type NotificationEvent struct {
	BaseEvent
	Source    string // "history", "templates", "artifact"
	Message   string
	Secondary bool
	Err       error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // events dropped because a subscriber buffer was full
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// A nil bus is a no-op so components can run without one.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishJobState publishes a job status transition.
func (eb *EventBus) PublishJobState(sourceName, oldStatus, newStatus, jobID, errorMsg, failureKind string) {
	eb.Publish(&JobStateEvent{
		BaseEvent:    newBase(EventJobState),
		SourceName:   sourceName,
		OldStatus:    oldStatus,
		NewStatus:    newStatus,
		JobID:        jobID,
		ErrorMessage: errorMsg,
		FailureKind:  failureKind,
	})
}

// PublishJobProgress publishes a progress checkpoint.
func (eb *EventBus) PublishJobProgress(sourceName string, percent int, stage string) {
	eb.Publish(&JobProgressEvent{
		BaseEvent:  newBase(EventJobProgress),
		SourceName: sourceName,
		Percent:    percent,
		Stage:      stage,
	})
}

// PublishTemplatesChanged publishes the registry's new active id and size.
func (eb *EventBus) PublishTemplatesChanged(activeID string, count int) {
	eb.Publish(&TemplatesChangedEvent{
		BaseEvent: newBase(EventTemplatesChanged),
		ActiveID:  activeID,
		Count:     count,
	})
}

// PublishArtifactDownloaded publishes a completed archive delivery.
func (eb *EventBus) PublishArtifactDownloaded(jobID, location string, bytes int64) {
	eb.Publish(&ArtifactDownloadedEvent{
		BaseEvent: newBase(EventArtifactDownloaded),
		JobID:     jobID,
		Location:  location,
		Bytes:     bytes,
	})
}

// PublishSecondaryFailure publishes a failure that follows a successful primary action.
func (eb *EventBus) PublishSecondaryFailure(source, message string, err error) {
	eb.Publish(&NotificationEvent{
		BaseEvent: newBase(EventNotification),
		Source:    source,
		Message:   message,
		Secondary: true,
		Err:       err,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			close(subCh)
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers.
// A nil bus reports zero.
func (eb *EventBus) GetDroppedEventCount() int64 {
	if eb == nil {
		return 0
	}
	return eb.droppedEvents.Load()
}
