package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaConstants(t *testing.T) {
	if SchemaVersion != "1" {
		t.Errorf("SchemaVersion = %s, want 1", SchemaVersion)
	}
	if MetaFileType != "homefs-meta" {
		t.Errorf("MetaFileType = %s, want homefs-meta", MetaFileType)
	}
}

func TestGetBusyTimeout(t *testing.T) {
	orig := configBusyTimeout
	defer func() { configBusyTimeout = orig }()

	t.Setenv(EnvBusyTimeout, "")
	configBusyTimeout = 0
	assert.Equal(t, DefaultBusyTimeout, GetBusyTimeout(), "default when nothing is set")

	SetConfigBusyTimeout(5000)
	assert.Equal(t, 5000, GetBusyTimeout(), "settings value beats default")

	t.Setenv(EnvBusyTimeout, "1234")
	assert.Equal(t, 1234, GetBusyTimeout(), "env beats settings")

	t.Setenv(EnvBusyTimeout, "garbage")
	assert.Equal(t, 5000, GetBusyTimeout(), "invalid env is ignored")

	t.Setenv(EnvBusyTimeout, "-1")
	assert.Equal(t, 5000, GetBusyTimeout(), "non-positive env is ignored")
}

func TestBuildDSN(t *testing.T) {
	orig := configBusyTimeout
	defer func() { configBusyTimeout = orig }()
	t.Setenv(EnvBusyTimeout, "")
	configBusyTimeout = 0

	assert.Equal(t,
		"file:/tmp/meta.db?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000",
		BuildDSN("/tmp/meta.db"))
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"empty", "", nil},
		{"single", "SELECT 1;", []string{"SELECT 1;"}},
		{
			"comments and blank lines skipped",
			"-- header\n\nSELECT 1;\n-- between\nSELECT 2;\n",
			[]string{"SELECT 1;", "SELECT 2;"},
		},
		{
			"multi-line statement",
			"CREATE TABLE t (\n    a INTEGER\n);",
			[]string{"CREATE TABLE t (\n    a INTEGER\n);"},
		},
		{"trailing statement without semicolon", "SELECT 1;\nSELECT 2", []string{"SELECT 1;", "SELECT 2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, splitStatements(tt.script))
		})
	}
}

func TestMetaFileSchemaSplitsIntoTables(t *testing.T) {
	t.Parallel()

	stmts := splitStatements(metaFileSchema)
	var creates int
	for _, s := range stmts {
		if len(s) >= 12 && s[:12] == "CREATE TABLE" {
			creates++
		}
	}
	assert.Equal(t, 5, creates, "schema_info, config, favorites, shares, trash_records")
}
