package migrations

import (
	_ "embed"

	"github.com/veltran/marketsync/internal/db"
)

//go:embed 001_scanner_checkpoints_1.sql
var mig001 string

//go:embed 002_records_collections_1.sql
var mig002 string

//go:embed 003_records_sales_1.sql
var mig003 string

// All returns every schema migration in apply order.
func All() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_scanner_checkpoints_1.sql",
			SQL: mig001,
		},
		{
			ID:  "002_records_collections_1.sql",
			SQL: mig002,
		},
		{
			ID:  "003_records_sales_1.sql",
			SQL: mig003,
		},
	}
}

func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, All())
}
