package ddl

// Kind is the portable type vocabulary staging columns are expressed in.
// Driver-reported types from any source vendor are folded into these six
// kinds before DDL is rendered; unknown types default to KindText.
type Kind string

const (
	KindText     Kind = "text"
	KindInteger  Kind = "integer"
	KindDecimal  Kind = "decimal"
	KindFloat    Kind = "float"
	KindDatetime Kind = "datetime"
	KindBoolean  Kind = "boolean"
)

// PostgresType maps a portable kind onto the landing store's SQL type.
func (k Kind) PostgresType() string {
	switch k {
	case KindInteger:
		return "BIGINT"
	case KindDecimal:
		return "NUMERIC"
	case KindFloat:
		return "DOUBLE PRECISION"
	case KindDatetime:
		return "TIMESTAMPTZ"
	case KindBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// ColumnDef describes a single staging column derived from an extracted
// source schema. Name is unquoted; quoting happens at render time.
type ColumnDef struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// TableDef holds a staging table name and its ordered data columns. The
// engineered surrogate-id and load-timestamp columns are not listed here;
// the renderer adds them.
type TableDef struct {
	Schema  string
	Name    string
	Columns []ColumnDef
}
