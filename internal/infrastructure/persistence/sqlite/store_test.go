package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/repotest"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thesis.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_RunsMigrationsOnce(t *testing.T) {
	store, path := openTemp(t)
	require.NoError(t, store.Close())

	// reopening must not re-apply migrations
	again, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.Close() })

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"theses", "thesis_versions", "thesis_history"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	var applied int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 3, applied)
}

func TestStore_Conformance(t *testing.T) {
	repotest.RunRepositoryConformance(t, func(t *testing.T) thesis.Repository {
		store, _ := openTemp(t)
		return store
	})
}

func TestStore_LedgerRejectsDuplicateVersion(t *testing.T) {
	store, _ := openTemp(t)
	ctx := context.Background()

	tr := repotest.SubmitTransition(t, repotest.Draft(t, repotest.LineageID, "student-42"))
	require.NoError(t, store.Save(ctx, tr))

	_, err := store.db.ExecContext(ctx,
		"INSERT INTO thesis_versions (lineage_id, version_number, file_ref, created_at, is_resubmission, status_at_creation) VALUES (?, 1, 'x', 0, 0, 'submitted')",
		repotest.LineageID)
	assert.True(t, isUniqueViolation(err))
}

func TestExtractUp(t *testing.T) {
	got := extractUp("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;")
	assert.Equal(t, "\nCREATE TABLE a (id INTEGER);\n", got)
	assert.Equal(t, "SELECT 1;", extractUp("SELECT 1;"))
}
