package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
	"github.com/hpungsan/phototag/internal/tags"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <base>/exports/<tag|all>-<timestamp>.jsonl
	Tag  string // optional: only records carrying this tag
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes records and their alarms to a JSONL file: a header line, then
// one line per record.
func (s *Service) Export(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()
	exportsDir := ExportsDir(s.baseDir)
	tag := tags.Token(input.Tag)

	// Determine export path
	exportPath := strings.TrimSpace(input.Path)
	if exportPath == "" {
		exportPath = defaultExportPath(exportsDir, tag, now)
	}

	// Validate ALL paths (both user-provided and default) for security
	// This catches tag injection attacks in default paths
	if err := ValidatePath(exportPath, PathCheckWrite, s.cfg, exportsDir); err != nil {
		return nil, err
	}

	var (
		records []record.TaggedRecord
		err     error
	)
	if tag != "" {
		records, err = db.ListByTag(ctx, s.db, tag)
	} else {
		records, err = db.AllRecords(ctx, s.db)
	}
	if err != nil {
		return nil, err
	}

	// Ensure parent directory exists
	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to temp file first, then atomic rename to preserve existing file on failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	header := record.ExportHeader{
		PhotoTagExport: true,
		SchemaVersion:  record.ExportSchemaVersion,
		ExportedAt:     exportedAt,
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}

	count := 0
	for i := range records {
		select {
		case <-ctx.Done():
			return nil, errors.NewCancelled("export")
		default:
		}

		alarms, err := db.ListAlarms(ctx, s.db, db.AlarmFilter{RecordID: records[i].ID})
		if err != nil {
			return nil, err
		}
		if err := enc.Encode(record.ToExportLine(&records[i], alarms)); err != nil {
			return nil, errors.NewInternal(err)
		}
		count++
	}

	// Ensure file is written
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// Check if destination is a symlink (os.Rename would follow it)
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows os.Rename fails if the destination exists; we keep the
	// existing file rather than risk a non-atomic delete+rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewValidation("export destination already exists; overwriting is not supported on Windows yet (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	s.log.Info().Str("path", exportPath).Int("count", count).Msg("export written")
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: exportedAt,
	}, nil
}

// defaultExportPath generates the default export path.
// Format: <exportsDir>/<tag>-<timestamp>.jsonl or all-<timestamp>.jsonl
func defaultExportPath(exportsDir, tag string, now time.Time) string {
	timestamp := now.Format("2006-01-02T150405")
	name := "all"
	if tag != "" {
		// Tags are free text; sanitize to prevent path traversal/injection
		name = SanitizeForFilename(tag)
	}
	return filepath.Join(exportsDir, fmt.Sprintf("%s-%s.jsonl", name, timestamp))
}
