package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// ══════════════════════════════════════════════════════════════════════════════
// THESIS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ThesisRepository implements thesis.Repository for PostgreSQL.
type ThesisRepository struct {
	conn *Connection
}

// NewThesisRepository creates a new ThesisRepository.
func NewThesisRepository(conn *Connection) *ThesisRepository {
	return &ThesisRepository{conn: conn}
}

var _ thesis.Repository = (*ThesisRepository)(nil)

const selectThesisColumns = `
	SELECT lineage_id::text, student_id, supervisor_id, department, status,
	       current_version, resubmission_reason, resubmission_requested_at,
	       revision, created_at, updated_at
	FROM theses
`

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get returns a lineage with all versions and history.
func (r *ThesisRepository) Get(ctx context.Context, id shared.LineageID) (*thesis.Thesis, error) {
	return r.getOne(ctx, selectThesisColumns+" WHERE lineage_id = $1", id.String())
}

// GetByStudent returns the lineage owned by a student.
func (r *ThesisRepository) GetByStudent(ctx context.Context, studentID shared.UserID) (*thesis.Thesis, error) {
	return r.getOne(ctx, selectThesisColumns+" WHERE student_id = $1", studentID.String())
}

// ListByStatus returns lineages in the given status, most recently updated first.
func (r *ThesisRepository) ListByStatus(ctx context.Context, status thesis.Status, page shared.Pagination) ([]*thesis.Thesis, error) {
	query := selectThesisColumns + " WHERE status = $1 ORDER BY updated_at DESC, lineage_id LIMIT $2 OFFSET $3"

	var result []*thesis.Thesis
	err := r.conn.WithTx(ctx, snapshotTx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, string(status), page.Limit(), page.Offset())
		if err != nil {
			return fmt.Errorf("failed to list theses: %w", err)
		}
		params, err := scanThesisRows(rows)
		if err != nil {
			return err
		}

		result = make([]*thesis.Thesis, 0, len(params))
		for _, p := range params {
			t, err := r.loadChildren(ctx, tx, p)
			if err != nil {
				return err
			}
			result = append(result, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ThesisRepository) getOne(ctx context.Context, query string, arg any) (*thesis.Thesis, error) {
	var result *thesis.Thesis
	err := r.conn.WithTx(ctx, snapshotTx, func(tx pgx.Tx) error {
		p, err := scanThesisRow(tx.QueryRow(ctx, query, arg))
		if err != nil {
			return err
		}
		result, err = r.loadChildren(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadChildren reads versions and history and restores the aggregate.
func (r *ThesisRepository) loadChildren(ctx context.Context, q Querier, p thesis.RestoreParams) (*thesis.Thesis, error) {
	versions, err := r.loadVersions(ctx, q, p.Lineage.ID)
	if err != nil {
		return nil, err
	}
	history, err := r.loadHistory(ctx, q, p.Lineage.ID)
	if err != nil {
		return nil, err
	}
	p.Versions = versions
	p.History = history
	return thesis.Restore(p)
}

func (r *ThesisRepository) loadVersions(ctx context.Context, q Querier, id shared.LineageID) ([]thesis.Version, error) {
	rows, err := q.Query(ctx, `
		SELECT version_number, file_ref, created_at, is_resubmission, status_at_creation
		FROM thesis_versions
		WHERE lineage_id = $1
		ORDER BY version_number
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []thesis.Version
	for rows.Next() {
		v := thesis.Version{LineageID: id}
		var status string
		if err := rows.Scan(&v.Number, &v.FileRef, &v.CreatedAt, &v.IsResubmission, &status); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.StatusAtCreation = thesis.Status(status)
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return versions, nil
}

func (r *ThesisRepository) loadHistory(ctx context.Context, q Querier, id shared.LineageID) ([]thesis.HistoryEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT status, occurred_at, comments, actor_id, version_number
		FROM thesis_history
		WHERE lineage_id = $1
		ORDER BY id
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []thesis.HistoryEntry
	for rows.Next() {
		e := thesis.HistoryEntry{LineageID: id}
		var status, actor string
		if err := rows.Scan(&status, &e.Timestamp, &e.Comments, &actor, &e.VersionNumber); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Status = thesis.Status(status)
		e.ActorID = shared.UserID(actor)
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return history, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Save persists a transition atomically. The state row is inserted for the
// first transition of a lineage and otherwise updated only if the stored
// revision still equals tr.ExpectedRevision.
func (r *ThesisRepository) Save(ctx context.Context, tr *thesis.Transition) error {
	if tr == nil || tr.Thesis == nil {
		return shared.NewDomainError("thesis", "Save", shared.ErrInvalidInput, "transition is required")
	}
	t := tr.Thesis

	err := r.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		if tr.ExpectedRevision == 0 {
			if err := insertThesis(ctx, tx, t); err != nil {
				return err
			}
		} else if err := updateThesis(ctx, tx, t, tr.ExpectedRevision); err != nil {
			return err
		}

		if tr.Version != nil {
			v := tr.Version
			_, err := tx.Exec(ctx, `
				INSERT INTO thesis_versions (
					lineage_id, version_number, file_ref, created_at, is_resubmission, status_at_creation
				) VALUES ($1, $2, $3, $4, $5, $6)
			`, v.LineageID.String(), v.Number, v.FileRef, v.CreatedAt, v.IsResubmission, string(v.StatusAtCreation))
			if err != nil {
				if IsUniqueViolation(err) || IsCheckViolation(err) {
					return shared.WrapError("thesis", "Save", shared.ErrInvariantViolation,
						fmt.Sprintf("version %d rejected by ledger", v.Number), shared.ErrInvalidVersionSequence)
				}
				return fmt.Errorf("failed to insert version: %w", err)
			}
		}

		e := tr.Entry
		_, err := tx.Exec(ctx, `
			INSERT INTO thesis_history (lineage_id, status, occurred_at, comments, actor_id, version_number)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.LineageID.String(), string(e.Status), e.Timestamp, e.Comments, e.ActorID.String(), e.VersionNumber)
		if err != nil {
			return fmt.Errorf("failed to insert history entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func insertThesis(ctx context.Context, tx pgx.Tx, t *thesis.Thesis) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO theses (
			lineage_id, student_id, supervisor_id, department, status, current_version,
			resubmission_reason, resubmission_requested_at, revision, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		t.Lineage.ID.String(),
		t.Lineage.StudentID.String(),
		t.Lineage.SupervisorID.String(),
		t.Lineage.Department,
		string(t.State.Status),
		t.State.CurrentVersion,
		t.State.ResubmissionReason,
		t.State.ResubmissionRequestedAt,
		t.Revision,
		t.Lineage.CreatedAt,
		t.State.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			// Another writer created the lineage first.
			return shared.ErrStaleRevision
		}
		return fmt.Errorf("failed to insert thesis: %w", err)
	}
	return nil
}

func updateThesis(ctx context.Context, tx pgx.Tx, t *thesis.Thesis, expected int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE theses SET
			supervisor_id = $1,
			status = $2,
			current_version = $3,
			resubmission_reason = $4,
			resubmission_requested_at = $5,
			revision = $6,
			updated_at = $7
		WHERE lineage_id = $8 AND revision = $9
	`,
		t.Lineage.SupervisorID.String(),
		string(t.State.Status),
		t.State.CurrentVersion,
		t.State.ResubmissionReason,
		t.State.ResubmissionRequestedAt,
		t.Revision,
		t.State.UpdatedAt,
		t.Lineage.ID.String(),
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update thesis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleRevision
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// scanThesisRow scans a state row into restore parameters.
func scanThesisRow(row pgx.Row) (thesis.RestoreParams, error) {
	p, err := scanThesis(row)
	if IsNoRows(err) {
		return p, shared.ErrThesisNotFound
	}
	if err != nil {
		return p, fmt.Errorf("failed to scan thesis: %w", err)
	}
	return p, nil
}

// scanThesisRows scans all state rows and closes rows.
func scanThesisRows(rows pgx.Rows) ([]thesis.RestoreParams, error) {
	defer rows.Close()

	var result []thesis.RestoreParams
	for rows.Next() {
		p, err := scanThesis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thesis: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return result, nil
}

func scanThesis(row pgx.Row) (thesis.RestoreParams, error) {
	var (
		p                           thesis.RestoreParams
		id, studentID, supervisorID string
		status                      string
		requestedAt                 *time.Time
	)
	err := row.Scan(
		&id,
		&studentID,
		&supervisorID,
		&p.Lineage.Department,
		&status,
		&p.State.CurrentVersion,
		&p.State.ResubmissionReason,
		&requestedAt,
		&p.Revision,
		&p.Lineage.CreatedAt,
		&p.State.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Lineage.ID = shared.LineageID(id)
	p.Lineage.StudentID = shared.UserID(studentID)
	p.Lineage.SupervisorID = shared.UserID(supervisorID)
	p.State.Status = thesis.Status(status)
	p.State.ResubmissionRequestedAt = requestedAt
	return p, nil
}
