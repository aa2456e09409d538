package db

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
)

const recordColumns = `id, photo_ref, comment, created_at, updated_at`

// idBatchSize bounds the ids bound into one IN clause. SQLite rejects
// statements with more than 32766 variables.
const idBatchSize = 500

// InsertRecord stores a new tagged record and its tag rows.
// Callers wanting atomicity across both tables pass a transaction.
func InsertRecord(ctx context.Context, q DBTX, r *record.TaggedRecord) error {
	query := `
		INSERT INTO records (id, photo_ref, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query, r.ID, r.PhotoRef, r.Comment, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("record already exists: " + r.ID)
		}
		return errors.NewStorage(err)
	}

	return insertTags(ctx, q, r.ID, r.Tags)
}

// insertTags writes tag rows, keeping the slice order in the position column.
func insertTags(ctx context.Context, q DBTX, recordID string, tags []string) error {
	for i, tag := range tags {
		_, err := q.ExecContext(ctx,
			`INSERT INTO record_tags (record_id, position, tag) VALUES (?, ?, ?)`,
			recordID, i, tag,
		)
		if err != nil {
			return errors.NewStorage(err)
		}
	}
	return nil
}

// GetRecord retrieves a record by its ULID.
func GetRecord(ctx context.Context, q DBTX, id string) (*record.TaggedRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)

	var r record.TaggedRecord
	err := row.Scan(&r.ID, &r.PhotoRef, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("record", id)
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}

	tagMap, err := loadTags(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	r.Tags = tagsOrEmpty(tagMap[id])

	return &r, nil
}

// RecordExists reports whether a record with id is stored.
func RecordExists(ctx context.Context, q DBTX, id string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ? LIMIT 1`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewStorage(err)
	}
	return true, nil
}

// GetRecords retrieves the records with the given ids, newest first.
// Unknown ids are skipped.
func GetRecords(ctx context.Context, q DBTX, ids []string) ([]record.TaggedRecord, error) {
	if len(ids) == 0 {
		return []record.TaggedRecord{}, nil
	}

	records := []record.TaggedRecord{}
	for _, batch := range batches(ids) {
		query := `SELECT ` + recordColumns + ` FROM records WHERE id IN (` + placeholders(len(batch)) + `)`
		page, err := queryRecords(ctx, q, query, toArgs(batch)...)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// ListRecords returns a page of records, newest first, and the total count.
func ListRecords(ctx context.Context, q DBTX, limit, offset int) ([]record.TaggedRecord, int, error) {
	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&total); err != nil {
		return nil, 0, errors.NewStorage(err)
	}

	records, err := queryRecords(ctx, q,
		`SELECT `+recordColumns+` FROM records ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListByTag returns every record carrying tag exactly, newest first.
func ListByTag(ctx context.Context, q DBTX, tag string) ([]record.TaggedRecord, error) {
	query := `
		SELECT r.id, r.photo_ref, r.comment, r.created_at, r.updated_at
		FROM records r
		JOIN record_tags t ON t.record_id = r.id
		WHERE t.tag = ?
		ORDER BY r.created_at DESC, r.id DESC
	`
	return queryRecords(ctx, q, query, tag)
}

// AllRecords returns every stored record. Used to rebuild the search index.
// Tags are read in one pass over record_tags, so no id list is bound.
func AllRecords(ctx context.Context, q DBTX) ([]record.TaggedRecord, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	tagMap := make(map[string][]string, len(records))
	if err := scanTags(ctx, q, tagMap, `SELECT record_id, tag FROM record_tags ORDER BY record_id, position`); err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Tags = tagsOrEmpty(tagMap[records[i].ID])
	}
	return records, nil
}

// UpdateRecord replaces the tags and comment of an existing record and
// stamps UpdatedAt. Run inside a transaction so the tag rows and the record
// row change together.
func UpdateRecord(ctx context.Context, q DBTX, r *record.TaggedRecord) error {
	result, err := q.ExecContext(ctx,
		`UPDATE records SET comment = ?, updated_at = ? WHERE id = ?`,
		r.Comment, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return errors.NewStorage(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorage(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("record", r.ID)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM record_tags WHERE record_id = ?`, r.ID); err != nil {
		return errors.NewStorage(err)
	}
	return insertTags(ctx, q, r.ID, r.Tags)
}

// DeleteRecord removes a record together with its tag rows and alarms.
// It returns the ids of alarms that were still pending, whose platform
// timers the caller must cancel once the transaction commits.
// Run inside a transaction: the cascade is one logical write.
func DeleteRecord(ctx context.Context, q DBTX, id string) ([]string, error) {
	pending, err := pendingAlarmIDs(ctx, q, id)
	if err != nil {
		return nil, err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM alarms WHERE record_id = ?`, id); err != nil {
		return nil, errors.NewStorage(err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM record_tags WHERE record_id = ?`, id); err != nil {
		return nil, errors.NewStorage(err)
	}

	result, err := q.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	if rowsAffected == 0 {
		return nil, errors.NewNotFound("record", id)
	}

	return pending, nil
}

// queryRecords runs a record query and attaches tags to every row.
func queryRecords(ctx context.Context, q DBTX, query string, args ...any) ([]record.TaggedRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	tagMap, err := loadTags(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Tags = tagsOrEmpty(tagMap[records[i].ID])
	}

	return records, nil
}

// scanRecords drains and closes rows before any tag query runs.
func scanRecords(rows *sql.Rows) ([]record.TaggedRecord, error) {
	defer rows.Close()

	records := []record.TaggedRecord{}
	for rows.Next() {
		var r record.TaggedRecord
		if err := rows.Scan(&r.ID, &r.PhotoRef, &r.Comment, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, errors.NewStorage(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	if err := rows.Close(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return records, nil
}

// loadTags returns the ordered tags of each record id.
func loadTags(ctx context.Context, q DBTX, ids []string) (map[string][]string, error) {
	result := make(map[string][]string, len(ids))
	for _, batch := range batches(ids) {
		query := `SELECT record_id, tag FROM record_tags WHERE record_id IN (` + placeholders(len(batch)) +
			`) ORDER BY record_id, position`
		if err := scanTags(ctx, q, result, query, toArgs(batch)...); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// scanTags appends the (record_id, tag) rows of query to result.
func scanTags(ctx context.Context, q DBTX, result map[string][]string, query string, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.NewStorage(err)
	}
	defer rows.Close()

	for rows.Next() {
		var recordID, tag string
		if err := rows.Scan(&recordID, &tag); err != nil {
			return errors.NewStorage(err)
		}
		result[recordID] = append(result[recordID], tag)
	}
	if err := rows.Err(); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// batches splits ids into slices of at most idBatchSize.
func batches(ids []string) [][]string {
	var out [][]string
	for len(ids) > idBatchSize {
		out = append(out, ids[:idBatchSize])
		ids = ids[idBatchSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func tagsOrEmpty(ts []string) []string {
	if ts == nil {
		return []string{}
	}
	return ts
}
