package db

import (
	"strings"
	"testing"
	"time"

	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	assert.Equal(t, "001_workflow.sql", names[0])
	assert.IsNonDecreasing(t, names)
	for _, name := range names {
		data, err := migrationsFS.ReadFile("migrations/" + name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS", name)
	}
}

func TestMigrations_CoverEveryTable(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)

	var all strings.Builder
	for _, name := range names {
		data, err := migrationsFS.ReadFile("migrations/" + name)
		require.NoError(t, err)
		all.Write(data)
	}
	for _, table := range []string{
		"workflow_runs", "run_steps", "run_checkpoints", "progress_records",
		"job_listings", "search_summaries", "job_results",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"golang", "golang"},
		{"100%", `100\%`},
		{"snake_case", `snake\_case`},
		{`C:\path`, `C:\\path`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeLike(tt.in))
	}
}

func TestLimitArg(t *testing.T) {
	assert.Nil(t, limitArg(0))
	assert.Nil(t, limitArg(-1))
	assert.Equal(t, 10, limitArg(10))
}

func TestTSVColumn(t *testing.T) {
	col, err := tsvColumn(listings.FieldTitle)
	require.NoError(t, err)
	assert.Equal(t, "title_tsv", col)

	col, err = tsvColumn(listings.FieldDescription)
	require.NoError(t, err)
	assert.Equal(t, "description_tsv", col)

	_, err = tsvColumn("company")
	assert.Error(t, err)
}

func TestNullTime(t *testing.T) {
	assert.Nil(t, nullTime(time.Time{}))
	now := time.Now()
	got := nullTime(now)
	require.NotNil(t, got)
	assert.True(t, now.Equal(*got))
}
