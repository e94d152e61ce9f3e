// Package migrations embeds the ledger schema for each backend.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// FS holds the SQL files, one directory per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Dialects with an embedded schema.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Scripts returns the migration scripts for dialect in lexical file order.
func Scripts(dialect string) ([]string, error) {
	entries, err := fs.ReadDir(FS, dialect)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dialect, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	scripts := make([]string, 0, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(FS, dialect+"/"+file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		scripts = append(scripts, string(data))
	}
	return scripts, nil
}
