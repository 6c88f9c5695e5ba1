// Package progress draws terminal progress for conversions and archive downloads.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ConversionBar shows a conversion job's 0..100 progress. On a terminal it
// renders a bar; otherwise it prints one line per stage change.
type ConversionBar struct {
	out       io.Writer
	bar       *progressbar.ProgressBar
	name      string
	lastStage string
}

// NewConversionBar starts a bar for the named document on stderr.
func NewConversionBar(name string) *ConversionBar {
	return newConversionBar(os.Stderr, name, IsTerminal(os.Stderr))
}

func newConversionBar(w io.Writer, name string, interactive bool) *ConversionBar {
	c := &ConversionBar{out: w, name: name}
	if interactive {
		if f, ok := w.(*os.File); ok {
			enableWindowsANSI(f)
		}
		c.bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(describe(name, "uploading")),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(w, "\n")
			}),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	return c
}

// Set moves the bar to percent and labels it with stage.
func (c *ConversionBar) Set(percent int, stage string) {
	if c.bar == nil {
		if stage != c.lastStage {
			fmt.Fprintf(c.out, "%s: %s (%d%%)\n", c.name, stage, percent)
			c.lastStage = stage
		}
		return
	}
	if stage != c.lastStage {
		c.bar.Describe(describe(c.name, stage))
		c.lastStage = stage
	}
	_ = c.bar.Set(percent)
}

// Finish fills the bar.
func (c *ConversionBar) Finish() {
	if c.bar != nil {
		_ = c.bar.Finish()
	}
}

// Abort stops the bar without filling it.
func (c *ConversionBar) Abort() {
	if c.bar != nil {
		_ = c.bar.Exit()
		fmt.Fprint(c.out, "\n")
	}
}

func describe(name, stage string) string {
	return fmt.Sprintf("%-10s %s", stage, truncate(name, 40))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
