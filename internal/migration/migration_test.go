package migration

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestRunCreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	runner := NewRunner()
	require.NoError(t, runner.Run(ctx, db))
	// applying twice is a no-op
	require.NoError(t, runner.Run(ctx, db))
	assert.Equal(t, "1.0.0", runner.Version())

	var tables []string
	require.NoError(t, db.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`))
	assert.Equal(t, []string{"bootstrap_runs", "ensemble_rows"}, tables)

	var indexes int
	require.NoError(t, db.GetContext(ctx, &indexes,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`))
	assert.Equal(t, 2, indexes)
}
