// Package oracle registers the Oracle source dialect via the pure-Go go-ora
// driver. Identifiers are uppercased before quoting to match Oracle's
// default catalog folding.
package oracle

import (
	"fmt"
	"strings"

	goora "github.com/sijms/go-ora/v2"

	"reconcile/internal/source"
)

func init() { source.Register(dialect{}) }

type dialect struct{}

func (dialect) ID() string         { return "oracle" }
func (dialect) DriverName() string { return "oracle" }

func (dialect) DSN(ci source.ConnInfo) (string, error) {
	if ci.Host == "" {
		return "", fmt.Errorf("oracle: host is required")
	}
	service := ci.ServiceName
	if service == "" {
		service = ci.Database
	}
	if service == "" {
		return "", fmt.Errorf("oracle: service_name or database is required")
	}
	port := ci.Port
	if port == 0 {
		port = 1521
	}
	return goora.BuildUrl(ci.Host, port, service, ci.Username, ci.Password, nil), nil
}

func (dialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(strings.ToUpper(ident), `"`, `""`) + `"`
}

func (d dialect) SelectAll(schema, table string, limit int) string {
	q := "SELECT * FROM " + source.QualifiedTable(d, schema, table)
	if limit > 0 {
		q += fmt.Sprintf(" FETCH FIRST %d ROWS ONLY", limit)
	}
	return q
}
