package validation

import (
	"testing"

	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/models"
)

func TestGate_Submit(t *testing.T) {
	tests := []struct {
		name     string
		file     *models.SelectedFile
		wantKind models.ValidationErrorKind
	}{
		{"docx by mime", &models.SelectedFile{Name: "a", MIMEType: constants.MIMETypeDocx, Size: 100}, ""},
		{"docm by mime", &models.SelectedFile{Name: "a", MIMEType: constants.MIMETypeDocm, Size: 100}, ""},
		{"docx by extension", &models.SelectedFile{Name: "paper.DOCX", Size: 100}, ""},
		{"docm by extension", &models.SelectedFile{Name: "macro.docm", MIMEType: "application/octet-stream", Size: 100}, ""},
		{"exactly 10 MiB", &models.SelectedFile{Name: "big.docx", Size: 10485760}, ""},
		{"one byte over", &models.SelectedFile{Name: "big.docx", Size: 10485761}, models.ValidationTooLarge},
		{"pdf", &models.SelectedFile{Name: "a.pdf", MIMEType: "application/pdf", Size: 10}, models.ValidationUnsupportedType},
		{"legacy doc", &models.SelectedFile{Name: "a.doc", MIMEType: "application/msword", Size: 10}, models.ValidationUnsupportedType},
		{"type checked before size", &models.SelectedFile{Name: "huge.pdf", Size: 50 << 20}, models.ValidationUnsupportedType},
		{"nil file", nil, models.ValidationUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate()
			res := g.Submit(tt.file)
			if tt.wantKind == "" {
				if !res.Accepted() {
					t.Fatalf("expected accepted, got %v", res.Err)
				}
				if g.Current() != tt.file {
					t.Error("Current() should return the accepted file")
				}
				return
			}
			if res.Accepted() {
				t.Fatal("expected rejection")
			}
			if res.Err.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", res.Err.Kind, tt.wantKind)
			}
			if g.Current() != nil {
				t.Error("rejected file must not become current")
			}
		})
	}
}

func TestGate_ReplaceAndClear(t *testing.T) {
	g := NewGate()
	first := &models.SelectedFile{Name: "one.docx", Size: 1}
	second := &models.SelectedFile{Name: "two.docx", Size: 2}

	g.Submit(first)
	g.Submit(second)
	if g.Current() != second {
		t.Error("second submit should replace the first")
	}

	g.Submit(&models.SelectedFile{Name: "bad.txt", Size: 1})
	if g.Current() != nil {
		t.Error("rejected submit should clear the previous selection")
	}

	g.Submit(first)
	g.Clear()
	if g.Current() != nil {
		t.Error("Clear() should drop the selection")
	}
}

func TestCheck_CustomLimit(t *testing.T) {
	f := &models.SelectedFile{Name: "a.docx", Size: 11}
	if err := Check(f, 10); err == nil || err.Kind != models.ValidationTooLarge {
		t.Errorf("expected too-large with limit 10, got %v", err)
	}
	if err := Check(f, 0); err != nil {
		t.Errorf("zero limit should fall back to default, got %v", err)
	}
}
