package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/diskspace"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/validation"
)

// maxCollisionSuffix bounds the "name (n).ext" search.
const maxCollisionSuffix = 9999

// LocalSink writes archives into a directory. An existing file is never
// overwritten; the new file gets a " (n)" suffix instead.
type LocalSink struct {
	dir    string
	logger *logging.Logger
}

// NewLocalSink returns a sink writing into dir ("" means the working directory).
func NewLocalSink(dir string, logger *logging.Logger) *LocalSink {
	if dir == "" {
		dir = "."
	}
	return &LocalSink{dir: dir, logger: logging.OrDefault(logger)}
}

func (s *LocalSink) Deliver(ctx context.Context, req DeliverRequest) (string, int64, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	target := filepath.Join(s.dir, req.FileName)
	if err := validation.ValidatePathInDirectory(target, s.dir); err != nil {
		return "", 0, err
	}
	if err := diskspace.CheckAvailableSpace(target, req.Size, constants.DiskSpaceBufferPercent); err != nil {
		return "", 0, err
	}

	f, path, err := createUnique(s.dir, req.FileName)
	if err != nil {
		return "", 0, err
	}

	written, err := io.Copy(f, contextReader{ctx: ctx, r: req.Body})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if req.Size > 0 && written != req.Size {
		os.Remove(path)
		return "", 0, fmt.Errorf("archive truncated: got %d of %d bytes", written, req.Size)
	}
	return path, written, nil
}

// createUnique exclusively creates name in dir, or the first free
// "stem (n).ext" variant.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i <= maxCollisionSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
