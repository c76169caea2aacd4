package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", sqliteDSN(dsn))
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// An in-memory database exists per connection; keep one.
	if dsn == MemoryDSN {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// sqliteDSN adds a busy timeout to dsn unless it already sets one.
func sqliteDSN(dsn string) string {
	// Matches both _busy_timeout and _timeout.
	if strings.Contains(dsn, "_timeout=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Plan Operations
// =============================================================================

// planRow represents a plan row in the database.
type planRow struct {
	ID             string `db:"id"`
	Project        string `db:"project"`
	CreatedAt      string `db:"created_at"`
	CanProceed     bool   `db:"can_proceed"`
	ReuseCount     int    `db:"reuse_count"`
	CreateCount    int    `db:"create_count"`
	AlongsideCount int    `db:"alongside_count"`
	SkipCount      int    `db:"skip_count"`
	BlockerCount   int    `db:"blocker_count"`
	PlanJSON       string `db:"plan_json"`
}

const headerColumns = `id, project, created_at, can_proceed, reuse_count, create_count,
	alongside_count, skip_count, blocker_count`

func (s *SQLiteStore) SavePlan(ctx context.Context, plan *domain.DeploymentPlanSummary) error {
	if plan == nil {
		return NewStoreError("SavePlan", "plan", "", "plan is nil", ErrInvalidData)
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return NewStoreError("SavePlan", "plan", plan.ID(), "failed to serialize plan", ErrInvalidData)
	}

	query := `
		INSERT INTO plans (
			id, project, created_at, can_proceed, reuse_count, create_count,
			alongside_count, skip_count, blocker_count, plan_json
		) VALUES (
			:id, :project, :created_at, :can_proceed, :reuse_count, :create_count,
			:alongside_count, :skip_count, :blocker_count, :plan_json
		)`

	row := planRow{
		ID:             plan.ID(),
		Project:        plan.ProjectName(),
		CreatedAt:      plan.CreatedAt().UTC().Format(time.RFC3339Nano),
		CanProceed:     plan.CanProceed(),
		ReuseCount:     len(plan.Partition(domain.StrategyReuse)),
		CreateCount:    len(plan.Partition(domain.StrategyCreate)),
		AlongsideCount: len(plan.Partition(domain.StrategyAlongside)),
		SkipCount:      len(plan.Partition(domain.StrategySkip)),
		BlockerCount:   len(plan.Blockers()),
		PlanJSON:       string(data),
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: plans.id") {
			return NewStoreError("SavePlan", "plan", plan.ID(), "plan with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("SavePlan", "plan", plan.ID(), err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*domain.DeploymentPlanSummary, error) {
	var row planRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM plans WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetPlan", "plan", id, "plan not found", ErrNotFound)
		}
		return nil, NewStoreError("GetPlan", "plan", id, err.Error(), err)
	}
	return rowToPlan(&row, "GetPlan")
}

func (s *SQLiteStore) LatestPlan(ctx context.Context, project string) (*domain.DeploymentPlanSummary, error) {
	var row planRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM plans WHERE project = ? ORDER BY created_at DESC, id DESC LIMIT 1`, project)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestPlan", "plan", "", "no plan for project "+project, ErrNotFound)
		}
		return nil, NewStoreError("LatestPlan", "plan", "", err.Error(), err)
	}
	return rowToPlan(&row, "LatestPlan")
}

func (s *SQLiteStore) ListPlans(ctx context.Context, project string, opts ListOptions) ([]PlanRecord, error) {
	opts = opts.Normalize()

	query := `SELECT ` + headerColumns + ` FROM plans`
	args := []any{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []planRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("ListPlans", "plan", "", err.Error(), err)
	}

	records := make([]PlanRecord, 0, len(rows))
	for _, r := range rows {
		createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return nil, NewStoreError("ListPlans", "plan", r.ID, "invalid created_at", ErrInvalidData)
		}
		records = append(records, PlanRecord{
			ID:         r.ID,
			Project:    r.Project,
			CreatedAt:  createdAt,
			CanProceed: r.CanProceed,
			Reuse:      r.ReuseCount,
			Create:     r.CreateCount,
			Alongside:  r.AlongsideCount,
			Skip:       r.SkipCount,
			Blockers:   r.BlockerCount,
		})
	}
	return records, nil
}

func rowToPlan(row *planRow, op string) (*domain.DeploymentPlanSummary, error) {
	var plan domain.DeploymentPlanSummary
	if err := json.Unmarshal([]byte(row.PlanJSON), &plan); err != nil {
		return nil, NewStoreError(op, "plan", row.ID, "failed to deserialize plan", ErrInvalidData)
	}
	return &plan, nil
}
