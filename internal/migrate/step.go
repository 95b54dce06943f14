package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/crm/internal/database"
)

// Step is one additive schema change. Every step checks the live schema
// first and does nothing when its target already exists, so a step can run
// any number of times. The set of variants is closed.
type Step interface {
	// Name identifies the step in logs and errors.
	Name() string

	present(ctx context.Context, s database.Store) (bool, error)
	ddl() string
}

// AddColumn adds Column to Table. Default, when set, is a SQL literal.
type AddColumn struct {
	Table   string
	Column  string
	Type    string
	Default string
}

func (c AddColumn) Name() string {
	return fmt.Sprintf("add column %s.%s", c.Table, c.Column)
}

func (c AddColumn) present(ctx context.Context, s database.Store) (bool, error) {
	return columnExists(ctx, s, c.Table, c.Column)
}

func (c AddColumn) ddl() string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Column, c.Type)
	if c.Default != "" {
		stmt += " DEFAULT " + c.Default
	}
	return stmt
}

// AddTable creates Table from its column definitions.
type AddTable struct {
	Table   string
	Columns []string
}

func (t AddTable) Name() string {
	return "add table " + t.Table
}

func (t AddTable) present(ctx context.Context, s database.Store) (bool, error) {
	return objectExists(ctx, s, "table", t.Table)
}

func (t AddTable) ddl() string {
	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", t.Table, strings.Join(t.Columns, ",\n    "))
}

// AddIndex creates a secondary index.
type AddIndex struct {
	Index   string
	Table   string
	Columns []string
	Unique  bool
}

func (i AddIndex) Name() string {
	return "add index " + i.Index
}

func (i AddIndex) present(ctx context.Context, s database.Store) (bool, error) {
	return objectExists(ctx, s, "index", i.Index)
}

func (i AddIndex) ddl() string {
	kind := "INDEX"
	if i.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, i.Index, i.Table, strings.Join(i.Columns, ", "))
}

func columnExists(ctx context.Context, s database.Store, table, column string) (bool, error) {
	rows, err := s.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func objectExists(ctx context.Context, s database.Store, kind, name string) (bool, error) {
	var n int
	err := s.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sqlite_master WHERE type = ? AND name = ?`, kind, name,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
