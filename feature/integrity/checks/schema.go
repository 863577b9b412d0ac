package checks

import (
	"fmt"

	"kb-bridge/core/conflict"
	"kb-bridge/core/database"
	"kb-bridge/core/wildcard"

	"gorm.io/gorm"
)

// SchemaReport describes the document tables of the versioned store.
type SchemaReport struct {
	Matched bool                   `json:"matched"`
	Tables  map[string]TableReport `json:"tables"`
	// Excluded lists internal tables skipped by analysis.
	Excluded []string `json:"excluded"`
	Errors   []string `json:"errors"`
}

// TableReport describes one document table.
type TableReport struct {
	KeyColumn     string `json:"key_column,omitempty"`
	ContentColumn string `json:"content_column,omitempty"`
	Status        string `json:"status"` // "ok", "fields_only", "error"
	Error         string `json:"error,omitempty"`
}

// CheckVersionedSchema verifies that every document table can be merged: it
// needs a primary key or id column. Tables without a content column are
// still merged, field by field.
func CheckVersionedSchema(db *gorm.DB, excluded, contentFields []string) (*SchemaReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	patterns, err := wildcard.CompileAll(excluded)
	if err != nil {
		return nil, err
	}
	if len(contentFields) == 0 {
		contentFields = conflict.DefaultContentFields
	}

	tables, err := database.ListTables(db)
	if err != nil {
		return nil, err
	}

	report := &SchemaReport{
		Matched:  true,
		Tables:   make(map[string]TableReport),
		Excluded: []string{},
		Errors:   []string{},
	}
	for _, table := range tables {
		if wildcard.MatchAny(patterns, table) {
			report.Excluded = append(report.Excluded, table)
			continue
		}

		cols, err := database.GetTableColumns(db, table)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to inspect table %s: %v", table, err))
			report.Matched = false
			continue
		}
		report.Tables[table] = inspectTable(cols, contentFields)
		if report.Tables[table].Status == "error" {
			report.Matched = false
		}
	}
	return report, nil
}

func inspectTable(cols []database.ColumnInfo, contentFields []string) TableReport {
	have := make(map[string]bool, len(cols))
	var tr TableReport
	for _, c := range cols {
		have[c.Field] = true
		if c.Key == "PRI" && tr.KeyColumn == "" {
			tr.KeyColumn = c.Field
		}
	}
	if tr.KeyColumn == "" {
		for _, name := range conflict.IDFields {
			if have[name] {
				tr.KeyColumn = name
				break
			}
		}
	}
	for _, name := range contentFields {
		if have[name] {
			tr.ContentColumn = name
			break
		}
	}

	switch {
	case tr.KeyColumn == "":
		tr.Status = "error"
		tr.Error = "no primary key or id column"
	case tr.ContentColumn == "":
		tr.Status = "fields_only"
	default:
		tr.Status = "ok"
	}
	return tr
}
