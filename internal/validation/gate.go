package validation

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/models"
)

// allowedTypes maps accepted extensions to their MIME types.
var allowedTypes = map[string]string{
	constants.ExtDocx: constants.MIMETypeDocx,
	constants.ExtDocm: constants.MIMETypeDocm,
}

// Result is the outcome of a Submit. Exactly one of File and Err is set.
type Result struct {
	File *models.SelectedFile
	Err  *models.ValidationError
}

// Accepted reports whether the file passed the gate.
func (r Result) Accepted() bool {
	return r.File != nil
}

// Gate holds at most one accepted document.
type Gate struct {
	mu      sync.Mutex
	current *models.SelectedFile
	maxSize int64
}

// NewGate returns a gate with the default 10 MiB size limit.
func NewGate() *Gate {
	return &Gate{maxSize: constants.MaxDocumentSize}
}

// Submit checks a candidate and replaces the current selection.
// Type is checked before size. A rejected candidate clears any previously
// accepted file.
func (g *Gate) Submit(file *models.SelectedFile) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := Check(file, g.maxSize); err != nil {
		g.current = nil
		return Result{Err: err}
	}
	g.current = file
	return Result{File: file}
}

// Current returns the accepted file, or nil.
func (g *Gate) Current() *models.SelectedFile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Clear drops the current selection.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.current = nil
	g.mu.Unlock()
}

// Check applies the type and size rules without touching gate state.
// maxSize <= 0 means the default limit.
func Check(file *models.SelectedFile, maxSize int64) *models.ValidationError {
	if maxSize <= 0 {
		maxSize = constants.MaxDocumentSize
	}
	if file == nil {
		return &models.ValidationError{Kind: models.ValidationUnsupportedType}
	}
	if !isAllowedType(file) {
		return &models.ValidationError{Kind: models.ValidationUnsupportedType, Name: file.Name, Size: file.Size}
	}
	if file.Size > maxSize {
		return &models.ValidationError{Kind: models.ValidationTooLarge, Name: file.Name, Size: file.Size}
	}
	return nil
}

// isAllowedType accepts a file whose MIME type or extension is on the allow-list.
func isAllowedType(file *models.SelectedFile) bool {
	mimeType := strings.ToLower(strings.TrimSpace(file.MIMEType))
	for ext, allowed := range allowedTypes {
		if mimeType == allowed {
			return true
		}
		if strings.EqualFold(filepath.Ext(file.Name), ext) {
			return true
		}
	}
	return false
}
