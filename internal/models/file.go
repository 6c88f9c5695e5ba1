package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/doclatex/doclatex/internal/constants"
)

// SelectedFile is a source document picked by the user.
// It lives only in memory and is never persisted.
type SelectedFile struct {
	Name     string
	Size     int64
	MIMEType string
	Content  []byte
}

// LoadSelectedFile reads a document from disk.
// The MIME type is derived from the extension; unknown extensions get
// application/octet-stream and are left for the validation gate to reject.
func LoadSelectedFile(path string) (*SelectedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	name := filepath.Base(path)
	return &SelectedFile{
		Name:     name,
		Size:     int64(len(data)),
		MIMEType: MIMETypeForName(name),
		Content:  data,
	}, nil
}

// MIMETypeForName returns the document MIME type for a file name.
func MIMETypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case constants.ExtDocx:
		return constants.MIMETypeDocx
	case constants.ExtDocm:
		return constants.MIMETypeDocm
	default:
		return "application/octet-stream"
	}
}

// Stem returns the file name without its extension.
func (f *SelectedFile) Stem() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

// ValidationErrorKind classifies a rejected candidate file.
type ValidationErrorKind string

const (
	ValidationUnsupportedType ValidationErrorKind = "unsupported-type"
	ValidationTooLarge        ValidationErrorKind = "too-large"
)

// ValidationError is returned by the validation gate.
type ValidationError struct {
	Kind ValidationErrorKind
	Name string
	Size int64
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ValidationUnsupportedType:
		return fmt.Sprintf("%s: only .docx and .docm documents are supported", e.Name)
	case ValidationTooLarge:
		return fmt.Sprintf("%s: file is %d bytes, the limit is %d bytes (10 MiB)", e.Name, e.Size, constants.MaxDocumentSize)
	default:
		return fmt.Sprintf("%s: invalid file", e.Name)
	}
}
