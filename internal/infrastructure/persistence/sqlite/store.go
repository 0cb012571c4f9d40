// Package sqlite provides a SQLite-backed thesis store for single-node
// deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// Store implements thesis.Repository on SQLite.
type Store struct {
	db *sql.DB
}

var _ thesis.Repository = (*Store)(nil)

// Open opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection serialises writers inside the process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectThesis = `
SELECT lineage_id, student_id, supervisor_id, department, status,
       current_version, resubmission_reason, resubmission_requested_at,
       revision, created_at, updated_at
FROM theses
`

// Get returns a lineage with all versions and history.
func (s *Store) Get(ctx context.Context, id shared.LineageID) (*thesis.Thesis, error) {
	return s.getOne(ctx, selectThesis+"WHERE lineage_id = ?", id.String())
}

// GetByStudent returns the lineage owned by a student.
func (s *Store) GetByStudent(ctx context.Context, studentID shared.UserID) (*thesis.Thesis, error) {
	return s.getOne(ctx, selectThesis+"WHERE student_id = ?", studentID.String())
}

// ListByStatus returns lineages in status, most recently updated first.
func (s *Store) ListByStatus(ctx context.Context, status thesis.Status, page shared.Pagination) ([]*thesis.Thesis, error) {
	var result []*thesis.Thesis
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			selectThesis+"WHERE status = ? ORDER BY updated_at DESC, lineage_id LIMIT ? OFFSET ?",
			string(status), page.Limit(), page.Offset())
		if err != nil {
			return fmt.Errorf("list theses: %w", err)
		}
		var params []thesis.RestoreParams
		for rows.Next() {
			p, err := scanThesis(rows)
			if err != nil {
				_ = rows.Close()
				return err
			}
			params = append(params, p)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("iterate theses: %w", err)
		}
		_ = rows.Close()

		result = make([]*thesis.Thesis, 0, len(params))
		for _, p := range params {
			t, err := loadChildren(ctx, tx, p)
			if err != nil {
				return err
			}
			result = append(result, t)
		}
		return nil
	})
	return result, err
}

func (s *Store) getOne(ctx context.Context, query string, arg any) (*thesis.Thesis, error) {
	var result *thesis.Thesis
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := scanThesis(tx.QueryRowContext(ctx, query, arg))
		if errors.Is(err, sql.ErrNoRows) {
			return shared.ErrThesisNotFound
		}
		if err != nil {
			return err
		}
		result, err = loadChildren(ctx, tx, p)
		return err
	})
	return result, err
}

// Save persists a transition atomically with an optimistic revision check.
func (s *Store) Save(ctx context.Context, tr *thesis.Transition) error {
	if tr == nil || tr.Thesis == nil {
		return shared.NewDomainError("thesis", "Save", shared.ErrInvalidInput, "transition is required")
	}
	t := tr.Thesis

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if tr.ExpectedRevision == 0 {
			_, err := tx.ExecContext(ctx, `
INSERT INTO theses (
	lineage_id, student_id, supervisor_id, department, status, current_version,
	resubmission_reason, resubmission_requested_at, revision, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.Lineage.ID.String(),
				t.Lineage.StudentID.String(),
				t.Lineage.SupervisorID.String(),
				t.Lineage.Department,
				string(t.State.Status),
				t.State.CurrentVersion,
				t.State.ResubmissionReason,
				nullMillis(t.State.ResubmissionRequestedAt),
				t.Revision,
				t.Lineage.CreatedAt.UTC().UnixMilli(),
				t.State.UpdatedAt.UTC().UnixMilli(),
			)
			if isUniqueViolation(err) {
				return shared.ErrStaleRevision
			}
			if err != nil {
				return fmt.Errorf("insert thesis: %w", err)
			}
		} else {
			res, err := tx.ExecContext(ctx, `
UPDATE theses SET
	supervisor_id = ?,
	status = ?,
	current_version = ?,
	resubmission_reason = ?,
	resubmission_requested_at = ?,
	revision = ?,
	updated_at = ?
WHERE lineage_id = ? AND revision = ?`,
				t.Lineage.SupervisorID.String(),
				string(t.State.Status),
				t.State.CurrentVersion,
				t.State.ResubmissionReason,
				nullMillis(t.State.ResubmissionRequestedAt),
				t.Revision,
				t.State.UpdatedAt.UTC().UnixMilli(),
				t.Lineage.ID.String(),
				tr.ExpectedRevision,
			)
			if err != nil {
				return fmt.Errorf("update thesis: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("update thesis: %w", err)
			}
			if n == 0 {
				return shared.ErrStaleRevision
			}
		}

		if v := tr.Version; v != nil {
			_, err := tx.ExecContext(ctx, `
INSERT INTO thesis_versions (
	lineage_id, version_number, file_ref, created_at, is_resubmission, status_at_creation
) VALUES (?, ?, ?, ?, ?, ?)`,
				v.LineageID.String(), v.Number, v.FileRef, v.CreatedAt.UTC().UnixMilli(),
				v.IsResubmission, string(v.StatusAtCreation),
			)
			if isUniqueViolation(err) {
				return shared.WrapError("thesis", "Save", shared.ErrInvariantViolation,
					fmt.Sprintf("version %d already recorded", v.Number), shared.ErrInvalidVersionSequence)
			}
			if err != nil {
				return fmt.Errorf("insert version: %w", err)
			}
		}

		e := tr.Entry
		if _, err := tx.ExecContext(ctx, `
INSERT INTO thesis_history (lineage_id, status, occurred_at, comments, actor_id, version_number)
VALUES (?, ?, ?, ?, ?, ?)`,
			e.LineageID.String(), string(e.Status), e.Timestamp.UTC().UnixMilli(),
			e.Comments, e.ActorID.String(), e.VersionNumber,
		); err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThesis(row scanner) (thesis.RestoreParams, error) {
	var (
		p                                   thesis.RestoreParams
		id, studentID, supervisorID, status string
		requestedAt                         sql.NullInt64
		createdAt, updatedAt                int64
	)
	err := row.Scan(
		&id, &studentID, &supervisorID, &p.Lineage.Department, &status,
		&p.State.CurrentVersion, &p.State.ResubmissionReason, &requestedAt,
		&p.Revision, &createdAt, &updatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Lineage.ID = shared.LineageID(id)
	p.Lineage.StudentID = shared.UserID(studentID)
	p.Lineage.SupervisorID = shared.UserID(supervisorID)
	p.Lineage.CreatedAt = fromMillis(createdAt)
	p.State.Status = thesis.Status(status)
	p.State.UpdatedAt = fromMillis(updatedAt)
	if requestedAt.Valid {
		at := fromMillis(requestedAt.Int64)
		p.State.ResubmissionRequestedAt = &at
	}
	return p, nil
}

func loadChildren(ctx context.Context, tx *sql.Tx, p thesis.RestoreParams) (*thesis.Thesis, error) {
	id := p.Lineage.ID

	rows, err := tx.QueryContext(ctx, `
SELECT version_number, file_ref, created_at, is_resubmission, status_at_creation
FROM thesis_versions WHERE lineage_id = ? ORDER BY version_number`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	for rows.Next() {
		v := thesis.Version{LineageID: id}
		var createdAt int64
		var status string
		if err := rows.Scan(&v.Number, &v.FileRef, &createdAt, &v.IsResubmission, &status); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.CreatedAt = fromMillis(createdAt)
		v.StatusAtCreation = thesis.Status(status)
		p.Versions = append(p.Versions, v)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `
SELECT status, occurred_at, comments, actor_id, version_number
FROM thesis_history WHERE lineage_id = ? ORDER BY id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	for rows.Next() {
		e := thesis.HistoryEntry{LineageID: id}
		var at int64
		var status, actor string
		if err := rows.Scan(&status, &at, &e.Comments, &actor, &e.VersionNumber); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Status = thesis.Status(status)
		e.Timestamp = fromMillis(at)
		e.ActorID = shared.UserID(actor)
		p.History = append(p.History, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	return thesis.Restore(p)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
