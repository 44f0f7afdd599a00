// Package database persists run and per-test results with gorm on SQLite
// or PostgreSQL.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the result database.
type Store interface {
	provider.DatabaseProvider

	Start(ctx context.Context) error
	Stop() error

	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListResults(ctx context.Context, runID string) ([]Result, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log       logrus.FieldLogger
	driver    string
	dialector func() gorm.Dialector
	db        *gorm.DB
	newID     func() string
}

// NewSQLite creates a Store backed by a SQLite file. Use ":memory:" for an
// in-memory database.
func NewSQLite(log logrus.FieldLogger, cfg *config.SQLiteSettings) Store {
	return newStore(log, "sqlite", func() gorm.Dialector { return sqlite.Open(cfg.Path) })
}

// NewPostgres creates a Store backed by PostgreSQL.
func NewPostgres(log logrus.FieldLogger, cfg *config.PostgresSettings) Store {
	return newStore(log, "postgres", func() gorm.Dialector { return postgres.Open(cfg.DSN()) })
}

func newStore(log logrus.FieldLogger, driver string, dialector func() gorm.Dialector) *store {
	return &store{
		log:       log.WithField("component", "database"),
		driver:    driver,
		dialector: dialector,
		newID:     uuid.NewString,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	db, err := gorm.Open(s.dialector(), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return fmt.Errorf("opening results database: %w", err)
	}

	if s.driver == "sqlite" {
		// Every connection to an in-memory SQLite database is a new database.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Run{}, &Result{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.driver).Info("Results database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// SaveTestRun inserts the run row and returns its generated id.
func (s *store) SaveTestRun(ctx context.Context, run provider.TestRun) (string, error) {
	if s.db == nil {
		return "", provider.NewError(provider.KindConfiguration, "save run", errors.New("database not started"))
	}

	row := &Run{
		RunID:         s.newID(),
		StartedAt:     run.StartedAt,
		EndedAt:       run.EndedAt,
		Status:        run.Status,
		TestCount:     run.TestCount,
		PassedCount:   run.PassedCount,
		FailedCount:   run.FailedCount,
		SkippedCount:  run.SkippedCount,
		FlakyCount:    run.FlakyCount,
		DurationSecs:  run.DurationSecs,
		Commit:        run.Commit,
		Branch:        run.Branch,
		BuildID:       run.BuildID,
		BuildURL:      run.BuildURL,
		RunnerVersion: run.RunnerVersion,
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", provider.NewError(provider.KindTransient, "save run", err)
	}

	return row.RunID, nil
}

// SaveTestResult inserts one result row linked to an existing run.
func (s *store) SaveTestResult(ctx context.Context, result provider.TestResult) (string, error) {
	if s.db == nil {
		return "", provider.NewError(provider.KindConfiguration, "save result", errors.New("database not started"))
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Run{}).
		Where("run_id = ?", result.RunID).
		Count(&count).Error; err != nil {
		return "", provider.NewError(provider.KindTransient, "save result", err)
	}

	if count == 0 {
		return "", provider.NewError(
			provider.KindPermanent, "save result", fmt.Errorf("unknown run id %q", result.RunID),
		)
	}

	row := &Result{
		ResultID:     s.newID(),
		RunID:        result.RunID,
		TestID:       result.TestID,
		Title:        result.Title,
		Suite:        result.Suite,
		File:         result.File,
		Status:       result.Status,
		Retries:      result.Retries,
		DurationSecs: result.DurationSecs,
		ErrorMessage: result.ErrorMessage,
		Category:     result.Category,
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", provider.NewError(provider.KindTransient, "save result", err)
	}

	return row.ResultID, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run

	q := s.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListResults returns the results of a run in insertion order.
func (s *store) ListResults(ctx context.Context, runID string) ([]Result, error) {
	var results []Result
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}

	return results, nil
}
