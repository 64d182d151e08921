// Package ddl renders the landing-store DDL for staging tables.
//
// The model is deliberately small: extracted source schemas are folded into
// a six-kind portable type vocabulary, and every rendered table carries the
// same two engineered columns, a surrogate auto-increment id and a load
// timestamp. All data columns are nullable unless the caller says otherwise,
// since snapshots from foreign systems routinely carry NULLs the source
// catalog did not predict.
package ddl

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// Engineered column names. Prefixed to stay clear of extracted data columns.
const (
	SurrogateIDColumn = "recon_row_id"
	LoadedAtColumn    = "recon_loaded_at"
)

// QuoteIdent quotes a single identifier segment for the landing store.
func QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Qualify renders schema.table with quoting, omitting schema when empty.
func Qualify(schema, table string) string {
	if schema == "" {
		return QuoteIdent(table)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}

// BuildCreateStagingSQL renders the CREATE TABLE statement for a staging
// table: surrogate id, load timestamp, then the extracted columns in order.
func BuildCreateStagingSQL(t TableDef) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+2)
	cols = append(cols,
		QuoteIdent(SurrogateIDColumn)+" BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY",
		QuoteIdent(LoadedAtColumn)+" TIMESTAMPTZ NOT NULL DEFAULT now()",
	)
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", t.Name)
		}
		var sb strings.Builder
		sb.WriteString(QuoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(c.Kind.PostgresType())
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
	}

	return fmt.Sprintf(
		"CREATE TABLE %s (\n  %s\n)",
		Qualify(t.Schema, t.Name),
		strings.Join(cols, ",\n  "),
	), nil
}

// BuildIndexSQL renders an idempotent index statement for one join column.
// IF NOT EXISTS makes re-indexing the same table a no-op rather than an
// error.
func BuildIndexSQL(schema, table, column string) string {
	idx := indexName(table, column)
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		QuoteIdent(idx), Qualify(schema, table), QuoteIdent(column))
}

// indexName keeps index identifiers under the landing store's 63-byte limit.
// Overlong names are truncated with a hash suffix so two long columns sharing
// a prefix cannot collapse to the same identifier.
func indexName(table, column string) string {
	name := fmt.Sprintf("idx_%s_%s", table, column)
	if len(name) > 63 {
		suffix := fmt.Sprintf("_%08x", uint32(xxh3.HashString(name)))
		name = name[:63-len(suffix)] + suffix
	}
	return name
}
