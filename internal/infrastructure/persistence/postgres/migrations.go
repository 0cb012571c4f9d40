package postgres

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_theses",
			UpSQL:   migration001Up,
		},
		{
			Version: 2,
			Name:    "create_thesis_versions",
			UpSQL:   migration002Up,
		},
		{
			Version: 3,
			Name:    "create_thesis_history",
			UpSQL:   migration003Up,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE THESES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per lineage: the current lifecycle state.
CREATE TABLE IF NOT EXISTS theses (
    lineage_id UUID PRIMARY KEY,
    student_id VARCHAR(128) NOT NULL UNIQUE,
    supervisor_id VARCHAR(128) NOT NULL DEFAULT '',
    department VARCHAR(100) NOT NULL DEFAULT '',
    status VARCHAR(32) NOT NULL,
    current_version INTEGER NOT NULL DEFAULT 0,
    resubmission_reason TEXT NOT NULL DEFAULT '',
    resubmission_requested_at TIMESTAMP WITH TIME ZONE,
    revision BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT theses_status_check CHECK (status IN (
        'not_submitted', 'under_review', 'approved', 'rejected', 'resubmission_requested'
    )),
    CONSTRAINT theses_current_version_check CHECK (current_version >= 0),
    CONSTRAINT theses_reason_check CHECK (
        (status = 'resubmission_requested') = (resubmission_reason <> '')
    )
);

CREATE INDEX IF NOT EXISTS idx_theses_status ON theses(status, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_theses_supervisor ON theses(supervisor_id) WHERE supervisor_id <> '';
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE THESIS VERSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Append-only ledger. The composite key rejects duplicate version numbers.
CREATE TABLE IF NOT EXISTS thesis_versions (
    lineage_id UUID NOT NULL REFERENCES theses(lineage_id) ON DELETE RESTRICT,
    version_number INTEGER NOT NULL,
    file_ref TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    is_resubmission BOOLEAN NOT NULL,
    status_at_creation VARCHAR(32) NOT NULL,

    PRIMARY KEY (lineage_id, version_number),
    CONSTRAINT thesis_versions_number_check CHECK (version_number >= 1),
    CONSTRAINT thesis_versions_flag_check CHECK (is_resubmission = (version_number > 1)),
    CONSTRAINT thesis_versions_file_ref_check CHECK (file_ref <> '')
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE THESIS HISTORY
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS thesis_history (
    id BIGSERIAL PRIMARY KEY,
    lineage_id UUID NOT NULL REFERENCES theses(lineage_id) ON DELETE RESTRICT,
    status VARCHAR(32) NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    comments TEXT NOT NULL DEFAULT '',
    actor_id VARCHAR(128) NOT NULL DEFAULT '',
    version_number INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_thesis_history_lineage ON thesis_history(lineage_id, id);
`
