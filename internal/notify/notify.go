// Package notify sends desktop notifications for finished downloads and for
// failures that follow an otherwise successful action.
package notify

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gen2brain/beeep"

	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/logging"
)

// Notifier sends desktop notifications.
type Notifier struct {
	logger  *logging.Logger
	send    func(title, message string) error
	enabled bool
}

// NewNotifier creates a notifier backed by beeep.
func NewNotifier(enabled bool, logger *logging.Logger) *Notifier {
	return &Notifier{
		logger:  logging.OrDefault(logger).Child("notify"),
		enabled: enabled,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// DownloadComplete announces a delivered archive.
func (n *Notifier) DownloadComplete(jobID, location string) {
	if !n.IsEnabled() {
		return
	}
	message := fmt.Sprintf("Archive for job %s saved to:\n%s", truncate(jobID, 40), shortenPath(location))
	if err := n.send("Download Complete", message); err != nil {
		n.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to send download notification")
	}
}

// SecondaryFailure announces a failure that did not undo the main action.
func (n *Notifier) SecondaryFailure(source, message string) {
	if !n.IsEnabled() {
		return
	}
	if err := n.send("doclatex warning", truncate(message, 120)); err != nil {
		n.logger.Warn().Err(err).Str("source", source).Msg("failed to send warning notification")
	}
}

// Watch forwards bus events to desktop notifications until ctx is done or
// the bus is closed.
func (n *Notifier) Watch(ctx context.Context, bus *events.EventBus) {
	if bus == nil {
		return
	}
	ch := bus.SubscribeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *events.ArtifactDownloadedEvent:
				n.DownloadComplete(e.JobID, e.Location)
			case *events.NotificationEvent:
				if e.Secondary {
					n.SecondaryFailure(e.Source, e.Message)
				}
			}
		}
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60
	if len(path) <= maxLen {
		return path
	}
	short := filepath.Join("...", filepath.Base(filepath.Dir(path)), filepath.Base(path))
	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
