// Package ops implements the consumer-facing operations of phototag on top of
// the record store, the alarm scheduler, the correlator and the search index.
//
// Every surface (CLI, MCP, web) goes through a Service, so validation and the
// ordering of storage writes, timer requests and index updates live here.
package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/hpungsan/phototag/internal/config"
	"github.com/hpungsan/phototag/internal/correlator"
	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/index"
	"github.com/hpungsan/phototag/internal/scheduler"
	"github.com/hpungsan/phototag/internal/timer"
)

// Pagination limits
const (
	DefaultListLimit    = 20
	MaxListLimit        = 100
	DefaultSuggestLimit = 10
	MaxSuggestLimit     = 50
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Options wires a Service. DB and Timers are required.
type Options struct {
	DB      *sql.DB
	Config  *config.Config
	BaseDir string
	Timers  timer.Service
	Sink    correlator.Sink
	Logger  zerolog.Logger
}

// Service is the process-wide owner of record and alarm state.
type Service struct {
	db      *sql.DB
	cfg     *config.Config
	baseDir string
	index   *index.Index
	sched   *scheduler.Scheduler
	corr    *correlator.Correlator
	log     zerolog.Logger
}

// New assembles a Service. Call Start before serving requests.
func New(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	corr := correlator.New(opts.DB, opts.Sink, opts.Logger)
	return &Service{
		db:      opts.DB,
		cfg:     cfg,
		baseDir: opts.BaseDir,
		index:   index.New(),
		sched:   scheduler.New(opts.DB, opts.Timers, corr, opts.Logger),
		corr:    corr,
		log:     opts.Logger.With().Str("component", "ops").Logger(),
	}
}

// Index exposes the search index for read-only callers.
func (s *Service) Index() *index.Index {
	return s.index
}

// StartOutput contains the result of Start.
type StartOutput struct {
	Indexed int `json:"indexed"`
	Armed   int `json:"armed"`
	Failed  int `json:"failed"`
}

// Start rebuilds the search index from the store and re-arms every pending
// alarm. The store is the single source of truth for both. Only the
// process that owns delivery (the MCP server or serve) calls Start; one-shot
// commands call RebuildIndex.
func (s *Service) Start(ctx context.Context) (*StartOutput, error) {
	indexed, err := s.RebuildIndex(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.sched.Reconcile(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("indexed", indexed).Int("armed", res.Armed).Int("failed", res.Failed).
		Msg("started")
	return &StartOutput{Indexed: indexed, Armed: res.Armed, Failed: res.Failed}, nil
}

// RebuildIndex replaces the search index with the current store contents
// and returns the number of records indexed. Alarms are left untouched.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	records, err := db.AllRecords(ctx, s.db)
	if err != nil {
		return 0, err
	}
	s.index.Rebuild(records)
	return len(records), nil
}

// ReconcileOutput contains the result of Reconcile.
type ReconcileOutput struct {
	Armed  int `json:"armed"`
	Failed int `json:"failed"`
}

// Reconcile re-requests platform timers for all pending alarms.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileOutput, error) {
	res, err := s.sched.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return &ReconcileOutput{Armed: res.Armed, Failed: res.Failed}, nil
}

// validateComment enforces the configured comment size.
func (s *Service) validateComment(comment string) error {
	if limit := s.cfg.CommentMaxChars; limit > 0 {
		if n := utf8.RuneCountInString(comment); n > limit {
			return errors.NewValidation(fmt.Sprintf("comment is %d characters, maximum is %d", n, limit))
		}
	}
	return nil
}

// validateTags enforces the configured tag count.
func (s *Service) validateTags(ts []string) error {
	if limit := s.cfg.MaxTags; limit > 0 && len(ts) > limit {
		return errors.NewValidation(fmt.Sprintf("%d tags given, maximum is %d", len(ts), limit))
	}
	return nil
}

// requireID trims id and fails if it is empty.
func requireID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewValidation(field + " is required")
	}
	return id, nil
}

// clampLimit applies default and maximum limits.
func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
