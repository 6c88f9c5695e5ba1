package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/logging"
)

type sent struct {
	title, message string
}

func newTestNotifier(enabled bool) (*Notifier, func() []sent) {
	var mu sync.Mutex
	var got []sent
	n := NewNotifier(enabled, logging.NewNopLogger())
	n.send = func(title, message string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, sent{title, message})
		return nil
	}
	return n, func() []sent {
		mu.Lock()
		defer mu.Unlock()
		return append([]sent(nil), got...)
	}
}

func TestNotifier_Disabled(t *testing.T) {
	n, got := newTestNotifier(false)
	n.DownloadComplete("j1", "/tmp/a.zip")
	n.SecondaryFailure("history_append_failed", "x")
	if len(got()) != 0 {
		t.Errorf("disabled notifier sent %v", got())
	}
	if n.IsEnabled() {
		t.Error("IsEnabled() = true for a disabled notifier")
	}
}

func TestNotifier_DownloadComplete(t *testing.T) {
	n, got := newTestNotifier(true)
	n.DownloadComplete("j1", "/tmp/a.zip")

	msgs := got()
	if len(msgs) != 1 || msgs[0].title != "Download Complete" || !strings.Contains(msgs[0].message, "/tmp/a.zip") {
		t.Errorf("unexpected notifications %v", msgs)
	}
}

func TestNotifier_Watch(t *testing.T) {
	n, got := newTestNotifier(true)
	bus := events.NewEventBus(16)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		n.Watch(ctx, bus)
		close(done)
	}()
	// Let Watch subscribe before publishing.
	time.Sleep(20 * time.Millisecond)

	bus.PublishArtifactDownloaded("j1", "/tmp/a.zip", 10)
	bus.PublishSecondaryFailure("history_append_failed", "history could not be saved", errors.New("boom"))
	bus.PublishJobProgress("a.docx", 40, "processing")

	deadline := time.After(2 * time.Second)
	for len(got()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 notifications, got %v", got())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	if len(got()) != 2 {
		t.Errorf("progress events must not notify, got %v", got())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10c", 10, "exactly10c"},
		{"this is a long string", 10, "this is..."},
		{"", 10, ""},
	}
	for _, tt := range tests {
		if result := truncate(tt.input, tt.maxLen); result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestShortenPath(t *testing.T) {
	long := "/a/very/long/path/that/exceeds/the/maximum/length/for/notification/display/file.zip"
	if got := shortenPath(long); len(got) >= len(long) || !strings.HasSuffix(got, "file.zip") {
		t.Errorf("shortenPath(%q) = %q", long, got)
	}
	if got := shortenPath("/short/path"); got != "/short/path" {
		t.Errorf("short path changed: %q", got)
	}
}
