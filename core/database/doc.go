// Package database handles database connections and schema inspection.
//
// It wraps GORM to open either a MySQL-protocol connection (the Dolt SQL server
// holding the versioned knowledge base) or a sqlite file, based on the
// application's configuration.
//
// # Schema Inspection
//
// GetTableColumns, ListTables and HasColumns back the integrity checks that
// verify a versioned store carries the tables and columns the merge workflow
// reads.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	columns, err := database.GetTableColumns(db, "documents")
package database
