package all

import (
	"strings"
	"testing"

	"reconcile/internal/source"
)

func lookup(t *testing.T, vendor string) source.Dialect {
	t.Helper()
	d, err := source.Lookup(vendor)
	if err != nil {
		t.Fatalf("Lookup(%q) error: %v", vendor, err)
	}
	return d
}

func TestAllVendorsRegistered(t *testing.T) {
	t.Parallel()

	for _, vendor := range []string{"postgresql", "mysql", "mssql", "oracle", "sqlite"} {
		lookup(t, vendor)
	}
}

func TestDSN(t *testing.T) {
	t.Parallel()

	ci := source.ConnInfo{
		Host: "db1", Port: 0,
		Database: "shop", Username: "u", Password: "p",
	}

	tests := []struct {
		vendor string
		want   string
	}{
		{"postgresql", "postgres://u:p@db1:5432/shop"},
		{"mysql", "u:p@tcp(db1:3306)/shop?parseTime=true"},
		{"mssql", "sqlserver://u:p@db1:1433?database=shop"},
		{"sqlite", "shop"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.vendor, func(t *testing.T) {
			t.Parallel()
			got, err := lookup(t, tt.vendor).DSN(ci)
			if err != nil {
				t.Fatalf("DSN() error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOracleDSN(t *testing.T) {
	t.Parallel()

	d := lookup(t, "oracle")

	// service_name wins over database.
	got, err := d.DSN(source.ConnInfo{Host: "ora1", Username: "u", Password: "p", Database: "fallback", ServiceName: "ORCLPDB1"})
	if err != nil {
		t.Fatalf("DSN() error: %v", err)
	}
	if !strings.HasPrefix(got, "oracle://") || !strings.Contains(got, "ora1:1521") || !strings.Contains(got, "ORCLPDB1") {
		t.Fatalf("DSN() = %q, want oracle URL for ora1:1521/ORCLPDB1", got)
	}

	if _, err := d.DSN(source.ConnInfo{Host: "ora1"}); err == nil {
		t.Fatal("DSN() without service succeeded, want error")
	}
}

func TestDSNRequiredFields(t *testing.T) {
	t.Parallel()

	for _, vendor := range []string{"postgresql", "mysql", "mssql"} {
		if _, err := lookup(t, vendor).DSN(source.ConnInfo{Host: "h"}); err == nil {
			t.Errorf("%s: DSN() without database succeeded, want error", vendor)
		}
	}
	if _, err := lookup(t, "sqlite").DSN(source.ConnInfo{}); err == nil {
		t.Error("sqlite: DSN() without path succeeded, want error")
	}
}

func TestSelectAll(t *testing.T) {
	t.Parallel()

	tests := []struct {
		vendor string
		want   string
	}{
		{"postgresql", `SELECT * FROM "crm"."customers" LIMIT 100`},
		{"mysql", "SELECT * FROM `crm`.`customers` LIMIT 100"},
		{"mssql", "SELECT TOP 100 * FROM [crm].[customers]"},
		{"oracle", `SELECT * FROM "CRM"."CUSTOMERS" FETCH FIRST 100 ROWS ONLY`},
		{"sqlite", `SELECT * FROM "crm"."customers" LIMIT 100`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.vendor, func(t *testing.T) {
			t.Parallel()
			if got := lookup(t, tt.vendor).SelectAll("crm", "customers", 100); got != tt.want {
				t.Fatalf("SelectAll() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectAllUnlimited(t *testing.T) {
	t.Parallel()

	for _, vendor := range []string{"postgresql", "mysql", "mssql", "oracle", "sqlite"} {
		q := lookup(t, vendor).SelectAll("", "t", 0)
		for _, keyword := range []string{"LIMIT", "TOP", "FETCH FIRST"} {
			if strings.Contains(q, keyword) {
				t.Errorf("%s: unlimited query %q carries row cap %q", vendor, q, keyword)
			}
		}
	}
}
