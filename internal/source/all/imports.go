// Package all wires every built-in source dialect into the source registry.
//
// It exists purely for side effects: blank-importing it runs the init
// functions of each vendor package, which register their dialects (and link
// their database/sql drivers). Binaries that only need a subset can import
// the vendor packages individually instead.
package all

import (
	_ "reconcile/internal/source/mssql"
	_ "reconcile/internal/source/mysql"
	_ "reconcile/internal/source/oracle"
	_ "reconcile/internal/source/postgres"
	_ "reconcile/internal/source/sqlite"
)
