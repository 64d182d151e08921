// Package mssql registers the Microsoft SQL Server source dialect.
package mssql

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver

	"reconcile/internal/source"
)

func init() { source.Register(dialect{}) }

type dialect struct{}

func (dialect) ID() string         { return "mssql" }
func (dialect) DriverName() string { return "sqlserver" }

func (dialect) DSN(ci source.ConnInfo) (string, error) {
	if ci.Host == "" || ci.Database == "" {
		return "", fmt.Errorf("mssql: host and database are required")
	}
	port := ci.Port
	if port == 0 {
		port = 1433
	}
	q := url.Values{}
	q.Set("database", ci.Database)
	if ci.ServiceName != "" {
		// Named instance discriminator, e.g. "SQLEXPRESS".
		q.Set("instance", ci.ServiceName)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(ci.Username, ci.Password),
		Host:     fmt.Sprintf("%s:%d", ci.Host, port),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (dialect) QuoteIdent(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (d dialect) SelectAll(schema, table string, limit int) string {
	top := ""
	if limit > 0 {
		top = fmt.Sprintf("TOP %d ", limit)
	}
	return fmt.Sprintf("SELECT %s* FROM %s", top, source.QualifiedTable(d, schema, table))
}
