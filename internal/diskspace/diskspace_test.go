package diskspace

import (
	"fmt"
	"path/filepath"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.zip")

	if err := CheckAvailableSpace(target, 1024, 0.15); err != nil {
		t.Errorf("1 KiB should fit in a temp dir: %v", err)
	}
	if err := CheckAvailableSpace(target, 0, 0.15); err != nil {
		t.Errorf("unknown size should pass: %v", err)
	}

	err := CheckAvailableSpace(target, 1<<62, 0.15)
	if !IsInsufficientSpaceError(err) {
		t.Fatalf("expected InsufficientSpaceError, got %v", err)
	}
	ise := err.(*InsufficientSpaceError)
	if ise.Path != target || ise.AvailableBytes <= 0 {
		t.Errorf("unexpected error fields %+v", ise)
	}
}

func TestCheckAvailableSpace_MissingDirPasses(t *testing.T) {
	target := filepath.Join(t.TempDir(), "does", "not", "exist", "out.zip")
	if err := CheckAvailableSpace(target, 1<<62, 0); err != nil {
		t.Errorf("unqueryable filesystem should pass, got %v", err)
	}
}

func TestIsInsufficientSpaceError(t *testing.T) {
	base := &InsufficientSpaceError{Path: "p", RequiredBytes: 2 << 20, AvailableBytes: 1 << 20}
	if !IsInsufficientSpaceError(fmt.Errorf("wrapped: %w", base)) {
		t.Error("wrapped error should match")
	}
	if IsInsufficientSpaceError(fmt.Errorf("other")) {
		t.Error("unrelated error should not match")
	}
	if base.Error() != "insufficient disk space for p: need 2.00 MB, have 1.00 MB available" {
		t.Errorf("unexpected message %q", base.Error())
	}
}
