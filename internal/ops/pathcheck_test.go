package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/phototag/internal/config"
	"github.com/hpungsan/phototag/internal/errors"
)

// pathFixture lays out an exports dir, one extra allowed dir with a nested
// subdir, and an outside dir. Symlinks are created when the OS allows it.
type pathFixture struct {
	exports, allowed, nested, outside string
	symlinks                          bool
}

func newPathFixture(t *testing.T) *pathFixture {
	t.Helper()
	f := &pathFixture{
		exports: ExportsDir(t.TempDir()),
		allowed: t.TempDir(),
		outside: t.TempDir(),
	}
	f.nested = filepath.Join(f.allowed, "2024")
	for _, dir := range []string{f.exports, f.nested} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	for _, p := range []string{
		filepath.Join(f.exports, "backup.jsonl"),
		filepath.Join(f.allowed, "album.jsonl"),
		filepath.Join(f.nested, "summer.jsonl"),
		filepath.Join(f.outside, "secret.jsonl"),
	} {
		if err := os.WriteFile(p, []byte("{}\n"), 0600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	target := filepath.Join(f.outside, "secret.jsonl")
	f.symlinks = os.Symlink(target, filepath.Join(f.allowed, "link.jsonl")) == nil &&
		os.Symlink(target, filepath.Join(f.outside, "unsafe-link.jsonl")) == nil
	return f
}

func TestValidatePath(t *testing.T) {
	f := newPathFixture(t)

	restricted := config.DefaultConfig()
	restricted.AllowedPaths = []string{f.allowed, "relative/ignored"}
	unsafe := config.DefaultConfig()
	unsafe.AllowUnsafePaths = true

	tests := []struct {
		name     string
		path     string
		mode     PathCheckMode
		cfg      *config.Config
		symlinks bool
		wantCode errors.ErrorCode // empty means success
	}{
		{"empty", "", PathCheckWrite, restricted, false, errors.ErrValidation},
		{"parent traversal", "../backup.jsonl", PathCheckWrite, restricted, false, errors.ErrValidation},
		{"mid-path traversal", "/tmp/../etc/backup.jsonl", PathCheckWrite, unsafe, false, errors.ErrValidation},
		{"no extension", filepath.Join(f.exports, "backup"), PathCheckWrite, restricted, false, errors.ErrValidation},
		{"json extension", filepath.Join(f.exports, "backup.json"), PathCheckWrite, restricted, false, errors.ErrValidation},

		{"exports dir write", filepath.Join(f.exports, "new.jsonl"), PathCheckWrite, restricted, false, ""},
		{"exports dir read", filepath.Join(f.exports, "backup.jsonl"), PathCheckRead, restricted, false, ""},
		{"allowed path read", filepath.Join(f.allowed, "album.jsonl"), PathCheckRead, restricted, false, ""},
		{"default config rejects allowed path", filepath.Join(f.allowed, "album.jsonl"), PathCheckRead, config.DefaultConfig(), false, errors.ErrValidation},
		{"outside dir", filepath.Join(f.outside, "secret.jsonl"), PathCheckRead, restricted, false, errors.ErrValidation},
		{"nested read", filepath.Join(f.nested, "summer.jsonl"), PathCheckRead, restricted, false, errors.ErrValidation},
		{"nested write", filepath.Join(f.nested, "out.jsonl"), PathCheckWrite, restricted, false, errors.ErrValidation},
		{"missing file read", filepath.Join(f.exports, "missing.jsonl"), PathCheckRead, restricted, false, errors.ErrFileNotFound},

		{"unsafe outside read", filepath.Join(f.outside, "secret.jsonl"), PathCheckRead, unsafe, false, ""},
		{"unsafe nested write", filepath.Join(f.nested, "out.jsonl"), PathCheckWrite, unsafe, false, ""},
		{"unsafe missing read", filepath.Join(f.outside, "missing.jsonl"), PathCheckRead, unsafe, false, errors.ErrFileNotFound},

		{"symlink read", filepath.Join(f.allowed, "link.jsonl"), PathCheckRead, restricted, true, errors.ErrValidation},
		{"symlink write", filepath.Join(f.allowed, "link.jsonl"), PathCheckWrite, restricted, true, errors.ErrValidation},
		{"symlink with unsafe paths", filepath.Join(f.outside, "unsafe-link.jsonl"), PathCheckRead, unsafe, true, errors.ErrValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.symlinks && !f.symlinks {
				t.Skip("symlinks not supported")
			}
			err := ValidatePath(tc.path, tc.mode, tc.cfg, f.exports)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("ValidatePath(%q) = %v, want nil", tc.path, err)
				}
				return
			}
			if !errors.Is(err, tc.wantCode) {
				t.Fatalf("ValidatePath(%q) = %v, want %s", tc.path, err, tc.wantCode)
			}
		})
	}
}

func TestValidatePath_SymlinkedAllowedDirResolved(t *testing.T) {
	target, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	link := filepath.Join(t.TempDir(), "album")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{link}

	if err := ValidatePath(filepath.Join(target, "out.jsonl"), PathCheckWrite, cfg, ""); err != nil {
		t.Errorf("file in resolved allowed dir: %v", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/home/user/file.jsonl", false},
		{"../file.jsonl", true},
		{"/home/../etc/passwd", true},
		{"./file.jsonl", false},
		{"/home/user/.hidden/file.jsonl", false},
		{"file..name.jsonl", false},
		{"a/b/../c.jsonl", true},
		{"..", true},
	}

	for _, tc := range tests {
		if got := containsTraversal(tc.path); got != tc.want {
			t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"summer", "summer"},
		{"vet visit", "vet visit"},
		{"path/to/file", "path-to-file"},
		{"path\\to\\file", "path-to-file"},
		{"foo..bar", "foo-bar"},
		{"../../../etc/passwd", "etc-passwd"},
		{"/tmp/evil", "tmp-evil"},
		{"../foo/bar\\..\\baz", "foo-bar-baz"},
		{"foo\x00bar", "foobar"},
		{"foo\x01\x7fbar", "foobar"},
		{"../../..", "unnamed"},
		{"///", "unnamed"},
		{"album-中文", "album-中文"},
		{"a---b", "a-b"},
		{"--foo--", "foo"},
	}

	for _, tc := range tests {
		if got := SanitizeForFilename(tc.input); got != tc.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
