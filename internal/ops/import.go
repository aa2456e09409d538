package ops

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
	"github.com/hpungsan/phototag/internal/tags"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision (atomic)
	ImportModeReplace ImportMode = "replace" // overwrite on collision
	ImportModeRename  ImportMode = "rename"  // assign fresh ids on collision
)

// maxImportLine bounds one JSONL line; comments are capped far below this.
const maxImportLine = 4 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Armed    int           `json:"armed"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// importLine is a parsed, validated export line.
type importLine struct {
	num    int
	record *record.TaggedRecord
	alarms []record.Alarm
}

// errAbort rolls back a mode:error import after a collision was recorded.
var errAbort = stderrors.New("import aborted")

// Import loads records and alarms from a JSONL export file. Imported records
// are indexed and their pending alarms armed after the data is committed.
func (s *Service) Import(ctx context.Context, input ImportInput) (*ImportOutput, error) {
	// Validate input
	if strings.TrimSpace(input.Path) == "" {
		return nil, errors.NewValidation("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewValidation("mode must be one of: error, replace, rename")
	}

	if err := ValidatePath(input.Path, PathCheckRead, s.cfg, ExportsDir(s.baseDir)); err != nil {
		return nil, err
	}

	file, err := openNoFollow(input.Path, os.O_RDONLY, 0)
	if err != nil {
		if errors.As(err) != nil {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	// Parse all lines first
	lines, parseErrors := s.parseExportFile(file)

	// For mode:error, fail on any parse errors
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		return &ImportOutput{Errors: parseErrors}, nil
	}

	var out *ImportOutput
	var imported []importLine
	var replaced []string
	switch input.Mode {
	case ImportModeError:
		out, imported, err = s.importModeError(ctx, lines)
	default:
		out, imported, replaced, err = s.importEach(ctx, lines, input.Mode)
	}
	if err != nil {
		return nil, err
	}
	if input.Mode != ImportModeError {
		out.Errors = append(parseErrors, out.Errors...)
		out.Skipped += len(parseErrors)
	}

	// Post-commit: timers of replaced records, index, arm pending alarms
	postCtx := context.WithoutCancel(ctx)
	s.sched.CancelTimers(postCtx, replaced)
	for _, l := range imported {
		if err := s.indexIfPresent(postCtx, l.record); err != nil {
			s.log.Warn().Err(err).Str("record_id", l.record.ID).Msg("imported record not indexed")
		}
		for _, a := range l.alarms {
			if a.Status != record.StatusPending {
				continue
			}
			if err := s.sched.Rearm(postCtx, a.ID); err != nil {
				s.log.Warn().Err(err).Str("alarm_id", a.ID).Msg("imported alarm not armed")
				continue
			}
			out.Armed++
		}
	}

	if out.Errors == nil {
		out.Errors = []ImportError{}
	}
	s.log.Info().Int("imported", out.Imported).Int("skipped", out.Skipped).Int("armed", out.Armed).
		Msg("import finished")
	return out, nil
}

// indexIfPresent adds r to the index under its record lock, unless a delete
// already removed it after the import committed.
func (s *Service) indexIfPresent(ctx context.Context, r *record.TaggedRecord) error {
	unlock := s.sched.Lock(r.ID)
	defer unlock()

	ok, err := db.RecordExists(ctx, s.db, r.ID)
	if err != nil || !ok {
		return err
	}
	s.index.Add(r)
	return nil
}

// parseExportFile parses and validates every line of an export file.
func (s *Service) parseExportFile(r io.Reader) ([]importLine, []ImportError) {
	var lines []importLine
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}

		var line record.ExportLine
		if err := json.Unmarshal(raw, &line); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		// Skip header line
		if line.PhotoTagExport {
			continue
		}

		parsed, msg := s.validateLine(lineNum, &line)
		if msg != "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      line.ID,
				Code:    "INVALID_RECORD",
				Message: msg,
			})
			continue
		}
		lines = append(lines, parsed)
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return lines, parseErrors
}

// validateLine applies the same rules as create to an imported record.
func (s *Service) validateLine(num int, line *record.ExportLine) (importLine, string) {
	r := line.Record()
	r.ID = strings.TrimSpace(r.ID)
	r.PhotoRef = strings.TrimSpace(r.PhotoRef)
	if r.ID == "" {
		return importLine{}, "missing id field"
	}
	if r.PhotoRef == "" {
		return importLine{}, "missing photo_ref field"
	}
	r.Tags = tags.Clean(r.Tags)
	if err := s.validateTags(r.Tags); err != nil {
		return importLine{}, errors.As(err).Message
	}
	if err := s.validateComment(r.Comment); err != nil {
		return importLine{}, errors.As(err).Message
	}
	if r.UpdatedAt < r.CreatedAt {
		r.UpdatedAt = r.CreatedAt
	}

	pending := 0
	alarms := make([]record.Alarm, 0, len(line.Alarms))
	for _, a := range line.Alarms {
		if strings.TrimSpace(a.ID) == "" {
			return importLine{}, "alarm missing id field"
		}
		if !a.Status.Valid() {
			return importLine{}, fmt.Sprintf("alarm %s has invalid status %q", a.ID, a.Status)
		}
		if a.Status == record.StatusPending {
			pending++
		}
		a.RecordID = r.ID
		a.ScheduleError = nil
		alarms = append(alarms, a)
	}
	if pending > 1 {
		return importLine{}, "record has more than one pending alarm"
	}

	return importLine{num: num, record: r, alarms: alarms}, ""
}

// importModeError imports every line in one transaction, rolling back on the
// first collision.
func (s *Service) importModeError(ctx context.Context, lines []importLine) (*ImportOutput, []importLine, error) {
	out := &ImportOutput{}
	err := db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		for _, l := range lines {
			ie, err := checkCollisions(ctx, tx, l)
			if err != nil {
				return err
			}
			if ie != nil {
				out.Errors = append(out.Errors, *ie)
				return errAbort
			}
			if err := insertLine(ctx, tx, l); err != nil {
				return err
			}
			out.Imported++
		}
		return nil
	})
	if stderrors.Is(err, errAbort) {
		out.Imported = 0
		return out, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return out, lines, nil
}

// importEach imports lines one transaction at a time. In replace mode an
// existing record with the same id is deleted (with its alarms) first; in
// rename mode colliding records and alarms get fresh ids.
func (s *Service) importEach(ctx context.Context, lines []importLine, mode ImportMode) (*ImportOutput, []importLine, []string, error) {
	out := &ImportOutput{}
	var imported []importLine
	var replaced []string

	for _, l := range lines {
		if mode == ImportModeRename {
			if err := renameCollisions(ctx, s.db, &l); err != nil {
				return nil, nil, nil, err
			}
		}

		var cancelled []string
		var ie *ImportError
		unlock := s.sched.Lock(l.record.ID)
		err := db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
			if mode == ImportModeReplace {
				exists, err := db.RecordExists(ctx, tx, l.record.ID)
				if err != nil {
					return err
				}
				if exists {
					cancelled, err = db.DeleteRecord(ctx, tx, l.record.ID)
					if err != nil {
						return err
					}
				}
			}
			var err error
			ie, err = checkCollisions(ctx, tx, l)
			if err != nil {
				return err
			}
			if ie != nil {
				return errAbort
			}
			return insertLine(ctx, tx, l)
		})
		unlock()

		if stderrors.Is(err, errAbort) {
			out.Errors = append(out.Errors, *ie)
			out.Skipped++
			continue
		}
		if err != nil {
			if pe := errors.As(err); pe != nil && pe.Code == errors.ErrConflict {
				out.Errors = append(out.Errors, ImportError{Line: l.num, ID: l.record.ID, Code: "INSERT_FAILED", Message: pe.Message})
				out.Skipped++
				continue
			}
			return nil, nil, nil, err
		}

		replaced = append(replaced, cancelled...)
		imported = append(imported, l)
		out.Imported++
	}

	return out, imported, replaced, nil
}

// checkCollisions reports an existing record id or alarm id.
func checkCollisions(ctx context.Context, q db.DBTX, l importLine) (*ImportError, error) {
	exists, err := db.RecordExists(ctx, q, l.record.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return &ImportError{
			Line:    l.num,
			ID:      l.record.ID,
			Code:    "ID_COLLISION",
			Message: fmt.Sprintf("record with id %q already exists", l.record.ID),
		}, nil
	}

	for _, a := range l.alarms {
		_, err := db.GetAlarm(ctx, q, a.ID)
		if err == nil {
			return &ImportError{
				Line:    l.num,
				ID:      l.record.ID,
				Code:    "ALARM_ID_COLLISION",
				Message: fmt.Sprintf("alarm with id %q already exists", a.ID),
			}, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// renameCollisions gives the line fresh ids wherever its record id or any
// alarm id is taken.
func renameCollisions(ctx context.Context, q db.DBTX, l *importLine) error {
	exists, err := db.RecordExists(ctx, q, l.record.ID)
	if err != nil {
		return err
	}
	if exists {
		l.record.ID = record.NewID()
	}

	for i := range l.alarms {
		l.alarms[i].RecordID = l.record.ID
		_, err := db.GetAlarm(ctx, q, l.alarms[i].ID)
		if err == nil {
			l.alarms[i].ID = record.NewID()
			continue
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}
	return nil
}

func insertLine(ctx context.Context, tx db.DBTX, l importLine) error {
	if err := db.InsertRecord(ctx, tx, l.record); err != nil {
		return err
	}
	for i := range l.alarms {
		if err := db.InsertAlarm(ctx, tx, &l.alarms[i]); err != nil {
			return err
		}
	}
	return nil
}
