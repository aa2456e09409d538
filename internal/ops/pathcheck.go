package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/phototag/internal/config"
	"github.com/hpungsan/phototag/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import
	PathCheckWrite                      // export
)

// exportExt is the only extension accepted for export and import files.
const exportExt = ".jsonl"

// ValidatePath checks an export or import path before it is opened:
//   - no ".." components
//   - a .jsonl extension
//   - the file sits directly in exportsDir or one of cfg.AllowedPaths,
//     never in a subdirectory, unless cfg.AllowUnsafePaths is set
//   - neither the file nor its parent directory is a symlink
//   - in read mode, the file exists
//
// Files are opened with O_NOFOLLOW afterwards, so the only component that
// could be swapped between check and open is the final one.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config, exportsDir string) error {
	if path == "" {
		return errors.NewValidation("path is required")
	}
	if containsTraversal(path) {
		return errors.NewValidation("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != exportExt {
		return errors.NewValidation("path must have " + exportExt + " extension")
	}
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewValidation(fmt.Sprintf("invalid path: %v", err))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		if err := checkAllowedParent(absPath, cfg, exportsDir); err != nil {
			return err
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(absPath) {
		return errors.NewValidation("path must not be a symlink")
	}
	return nil
}

// checkAllowedParent requires absPath's directory to be one of the allowed
// directories exactly, and not a symlink itself.
func checkAllowedParent(absPath string, cfg *config.Config, exportsDir string) error {
	allowed, err := allowedDirs(cfg, exportsDir)
	if err != nil {
		return err
	}

	parent := filepath.Dir(absPath)
	found := false
	for _, dir := range allowed {
		if parent == dir {
			found = true
			break
		}
	}
	if !found {
		return errors.NewValidation(fmt.Sprintf(
			"file must be directly in an allowed directory (no subdirectories); allowed: %v", allowed))
	}
	if isSymlink(parent) {
		return errors.NewValidation("parent directory must not be a symlink")
	}
	return nil
}

// allowedDirs returns exportsDir plus every absolute cfg.AllowedPaths entry,
// cleaned and with a symlinked entry resolved to its target.
func allowedDirs(cfg *config.Config, exportsDir string) ([]string, error) {
	var candidates []string
	if exportsDir != "" {
		candidates = append(candidates, exportsDir)
	}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				candidates = append(candidates, p)
			}
		}
	}

	dirs := make([]string, 0, len(candidates))
	for _, d := range candidates {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewValidation(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if isSymlink(abs) {
			if abs, err = filepath.EvalSymlinks(abs); err != nil {
				return nil, errors.NewValidation(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
		}
		dirs = append(dirs, abs)
	}
	return dirs, nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// ExportsDir returns the exports directory inside a phototag base directory.
func ExportsDir(baseDir string) string {
	return filepath.Join(baseDir, "exports")
}

// containsTraversal reports whether any component of path is "..", splitting
// on both the OS separator and "/".
func containsTraversal(path string) bool {
	split := func(r rune) bool { return r == '/' || r == filepath.Separator }
	for _, part := range strings.FieldsFunc(path, split) {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename turns a tag into something safe to embed in an export
// file name. Separators and ".." become dashes, control characters are
// dropped, dash runs collapse. An empty result becomes "unnamed".
func SanitizeForFilename(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
