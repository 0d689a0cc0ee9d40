// Copyright 2024 homefs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const SchemaVersion = "1"

// MetaFileType is stored under schema_info.type to recognize meta files.
const MetaFileType = "homefs-meta"

// Default busy_timeout in milliseconds (30 seconds)
const DefaultBusyTimeout = 30000

// EnvBusyTimeout overrides the busy_timeout for every connection.
const EnvBusyTimeout = "HOMEFS_BUSY_TIMEOUT"

// configBusyTimeout is set from settings.yaml via SetConfigBusyTimeout.
var configBusyTimeout int

// SetConfigBusyTimeout sets the settings-based busy_timeout value.
// This should be called by the CLI or daemon after loading settings.
// A value of 0 is ignored (use env var or default).
func SetConfigBusyTimeout(timeout int) {
	configBusyTimeout = timeout
}

// GetBusyTimeout returns the busy_timeout value.
// Priority: env > settings file > default
func GetBusyTimeout() int {
	if val := os.Getenv(EnvBusyTimeout); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			return timeout
		}
	}
	if configBusyTimeout > 0 {
		return configBusyTimeout
	}
	return DefaultBusyTimeout
}

// BuildDSN builds the SQLite DSN with the configured busy_timeout
func BuildDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", path, GetBusyTimeout())
}

// Schema SQL for the meta file.
// Favorites keep insertion order through position; shares and favorites
// are unique by path so a repoint can never create a duplicate silently.
const metaFileSchema = `
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS favorites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    position INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_favorites_position ON favorites(position);

CREATE TABLE IF NOT EXISTS shares (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    path TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

-- One row per top-level entry in the trash, keyed by its name there
CREATE TABLE IF NOT EXISTS trash_records (
    id TEXT PRIMARY KEY,
    trash_name TEXT NOT NULL UNIQUE,
    original_path TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`

const initMetaFile = `
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('version', ?);
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('type', ?);
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('created_at', datetime('now'));
`

// execPragma runs a PRAGMA statement using Query (not Exec) because libsql
// returns rows for PRAGMA statements. The result rows are drained and closed.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	rows.Close()
	return nil
}

// applyPragmas sets essential PRAGMAs after opening a libsql connection.
// libsql ignores DSN-based _pragma=value parameters, so all PRAGMAs must be
// set explicitly via SQL statements after the connection is opened.
func applyPragmas(db *sql.DB) error {
	// Busy timeout first: journal_mode=WAL needs exclusive access and
	// must wait on transient locks instead of failing.
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", GetBusyTimeout())); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous=NORMAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return nil
}

// execStatements executes multiple SQL statements separated by semicolons.
// libsql driver doesn't support multi-statement Exec, so we split and execute individually.
func execStatements(db *sql.DB, sqlScript string, args ...interface{}) error {
	statements := splitStatements(sqlScript)
	argIdx := 0
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		placeholders := strings.Count(stmt, "?")
		if argIdx+placeholders > len(args) {
			return fmt.Errorf("not enough arguments for statement: %s", stmt)
		}
		stmtArgs := args[argIdx : argIdx+placeholders]
		argIdx += placeholders
		if _, err := db.Exec(stmt, stmtArgs...); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a SQL script into individual statements
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
