// Package viewer exposes a finished job's LaTeX text and copies it to the
// clipboard.
package viewer

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"

	"github.com/doclatex/doclatex/internal/models"
)

var (
	// ErrNothingToCopy is returned by Copy when the job has no result text.
	ErrNothingToCopy = errors.New("no converted text to copy")
	// ErrClipboard wraps clipboard failures.
	ErrClipboard = errors.New("clipboard unavailable")
)

// Clipboard writes text to a clipboard.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard uses the operating system clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return errors.New("no clipboard utility found")
	}
	return clipboard.WriteAll(text)
}

// Viewer projects job results for display.
type Viewer struct {
	clip Clipboard
}

// New returns a viewer; a nil clipboard means the system clipboard.
func New(clip Clipboard) *Viewer {
	if clip == nil {
		clip = SystemClipboard{}
	}
	return &Viewer{clip: clip}
}

// Text returns the result text of a done job.
func (v *Viewer) Text(job models.ConversionJob) (string, bool) {
	if job.Status != models.StatusDone || job.ResultText == "" {
		return "", false
	}
	return job.ResultText, true
}

// Copy puts the result text of a done job on the clipboard.
func (v *Viewer) Copy(job models.ConversionJob) error {
	text, ok := v.Text(job)
	if !ok {
		return ErrNothingToCopy
	}
	if err := v.clip.WriteAll(text); err != nil {
		return fmt.Errorf("%w: %v", ErrClipboard, err)
	}
	return nil
}

// Summary is a one-line description of a done job's metrics.
func Summary(job models.ConversionJob) string {
	m := job.Metrics
	return fmt.Sprintf("%d pages, %d formulas, %d images, %.2fs on the server",
		m.PageCount, m.FormulaCount, m.ImageCount, m.ElapsedSeconds)
}
