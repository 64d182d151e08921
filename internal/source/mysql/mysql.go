// Package mysql registers the MySQL source dialect.
package mysql

import (
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"reconcile/internal/source"
)

func init() { source.Register(dialect{}) }

type dialect struct{}

func (dialect) ID() string         { return "mysql" }
func (dialect) DriverName() string { return "mysql" }

func (dialect) DSN(ci source.ConnInfo) (string, error) {
	if ci.Host == "" || ci.Database == "" {
		return "", fmt.Errorf("mysql: host and database are required")
	}
	port := ci.Port
	if port == 0 {
		port = 3306
	}
	cfg := gomysql.NewConfig()
	cfg.User = ci.Username
	cfg.Passwd = ci.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", ci.Host, port)
	cfg.DBName = ci.Database
	// Driver-side time.Time decoding keeps datetime values typed through
	// the portable schema mapping.
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (dialect) QuoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d dialect) SelectAll(schema, table string, limit int) string {
	q := "SELECT * FROM " + source.QualifiedTable(d, schema, table)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q
}
