// Package sqlite registers the SQLite source dialect. ConnInfo.Database is
// interpreted as the database file path; host and credentials are ignored.
// Mostly useful for local development and tests.
package sqlite

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"reconcile/internal/source"
)

func init() { source.Register(dialect{}) }

type dialect struct{}

func (dialect) ID() string         { return "sqlite" }
func (dialect) DriverName() string { return "sqlite" }

func (dialect) DSN(ci source.ConnInfo) (string, error) {
	if strings.TrimSpace(ci.Database) == "" {
		return "", fmt.Errorf("sqlite: database path is required")
	}
	return ci.Database, nil
}

func (dialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d dialect) SelectAll(schema, table string, limit int) string {
	q := "SELECT * FROM " + source.QualifiedTable(d, schema, table)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q
}
