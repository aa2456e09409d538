//go:build !windows

package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/phototag/internal/errors"
)

func TestOpenNoFollow(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "album.jsonl")
	if err := os.WriteFile(target, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	link := filepath.Join(dir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	f, err := openNoFollow(target, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("openNoFollow(regular) error = %v", err)
	}
	f.Close()

	if _, err := openNoFollow(link, os.O_RDONLY, 0); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("openNoFollow(symlink) error = %v, want VALIDATION_ERROR", err)
	}
	if _, err := openNoFollow(filepath.Join(dir, "missing.jsonl"), os.O_RDONLY, 0); !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("openNoFollow(missing) error = %v, want FILE_NOT_FOUND", err)
	}
}
