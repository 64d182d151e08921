// Package postgres registers the PostgreSQL source dialect. It connects
// through the pgx stdlib adapter so extraction shares driver behavior with
// the landing store.
package postgres

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"reconcile/internal/source"
)

func init() { source.Register(dialect{}) }

type dialect struct{}

func (dialect) ID() string         { return "postgresql" }
func (dialect) DriverName() string { return "pgx" }

func (dialect) DSN(ci source.ConnInfo) (string, error) {
	if ci.Host == "" || ci.Database == "" {
		return "", fmt.Errorf("postgresql: host and database are required")
	}
	port := ci.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(ci.Username, ci.Password),
		Host:   fmt.Sprintf("%s:%d", ci.Host, port),
		Path:   "/" + ci.Database,
	}
	return u.String(), nil
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
