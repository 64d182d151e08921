package extract

import (
	"strings"

	"reconcile/internal/ddl"
)

// mapDriverType folds a driver-reported column type name into the portable
// staging vocabulary. Names vary wildly across vendors, so matching is by
// normalized name with a text default for anything unrecognized.
func mapDriverType(driverType string) ddl.Kind {
	name := strings.ToUpper(strings.TrimSpace(driverType))
	// Strip precision suffixes like "NUMBER(10,2)" or "VARCHAR2(64)".
	if i := strings.IndexByte(name, '('); i > 0 {
		name = name[:i]
	}

	switch name {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT",
		"INT2", "INT4", "INT8", "SERIAL", "BIGSERIAL", "YEAR":
		return ddl.KindInteger
	case "NUMERIC", "DECIMAL", "NUMBER", "MONEY", "SMALLMONEY", "DEC":
		return ddl.KindDecimal
	case "FLOAT", "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION",
		"BINARY_FLOAT", "BINARY_DOUBLE":
		return ddl.KindFloat
	case "DATE", "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET",
		"TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMP WITHOUT TIME ZONE", "TIME", "TIMETZ":
		return ddl.KindDatetime
	case "BOOL", "BOOLEAN", "BIT":
		return ddl.KindBoolean
	default:
		return ddl.KindText
	}
}
