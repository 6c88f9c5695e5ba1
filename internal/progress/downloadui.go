package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/doclatex/doclatex/internal/artifact"
)

// DownloadUI renders archive download bars with mpb.
type DownloadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
}

// NewDownloadUI draws on stderr when it is a terminal and prints plain
// summary lines otherwise.
func NewDownloadUI() *DownloadUI {
	return newDownloadUI(os.Stderr, IsTerminal(os.Stderr))
}

func newDownloadUI(w io.Writer, interactive bool) *DownloadUI {
	var p *mpb.Progress
	if interactive {
		if f, ok := w.(*os.File); ok {
			enableWindowsANSI(f)
		}
		p = mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(200*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &DownloadUI{progress: p, out: w, isTerminal: interactive}
}

// DownloadBar follows one archive download.
type DownloadBar struct {
	ui    *DownloadUI
	bar   *mpb.Bar
	name  string
	size  int64
	start time.Time
}

// Start adds a bar for name. size <= 0 means unknown.
func (u *DownloadUI) Start(name string, size int64) artifact.Tracker {
	db := &DownloadBar{ui: u, name: name, size: size, start: time.Now()}

	if u.isTerminal {
		total := size
		if total < 0 {
			total = 0
		}
		db.bar = u.progress.New(total,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(truncate(name, 40), decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Downloading %s (%s)\n", name, formatSize(size))
	}
	return db
}

// ProxyReader counts bytes read through r into the bar.
func (d *DownloadBar) ProxyReader(r io.Reader) io.Reader {
	if d.bar == nil {
		return r
	}
	return d.bar.ProxyReader(r)
}

// Complete closes the bar and prints a summary line.
func (d *DownloadBar) Complete(location string, err error) {
	elapsed := time.Since(d.start).Round(time.Millisecond)

	var msg string
	if err == nil {
		if d.bar != nil {
			d.bar.SetTotal(-1, true)
		}
		msg = fmt.Sprintf("✓ %s → %s (%s)\n", d.name, shortenPath(location), elapsed)
	} else {
		if d.bar != nil {
			d.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s: %v\n", d.name, err)
	}

	if d.ui.isTerminal {
		d.ui.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(d.ui.out, msg)
	}
}

// Wait blocks until every bar has finished rendering.
func (u *DownloadUI) Wait() {
	u.progress.Wait()
}

func formatSize(n int64) string {
	if n <= 0 {
		return "unknown size"
	}
	return fmt.Sprintf("%.1f KiB", float64(n)/1024)
}

// shortenPath keeps the last two components of long paths.
func shortenPath(p string) string {
	const maxLen = 60
	if len(p) <= maxLen {
		return p
	}
	return filepath.Join("...", filepath.Base(filepath.Dir(p)), filepath.Base(p))
}
