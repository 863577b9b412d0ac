package bookkeeping

import "time"

// Deletion marks a document deleted on purpose from a local collection.
type Deletion struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Collection string    `gorm:"size:255;not null;uniqueIndex:idx_kb_deletion" json:"collection"`
	DocumentID string    `gorm:"size:255;not null;uniqueIndex:idx_kb_deletion" json:"document_id"`
	Reason     string    `gorm:"size:512" json:"reason,omitempty"`
	DeletedAt  time.Time `gorm:"not null" json:"deleted_at"`
}

// TableName overrides the table name used by Deletion.
func (Deletion) TableName() string { return "kb_deletions" }

// Resolution is a resolution decision applied by an execution.
type Resolution struct {
	ConflictID  string    `gorm:"primaryKey;size:32" json:"conflict_id"`
	Scenario    string    `gorm:"size:16;not null" json:"scenario"`
	Type        string    `gorm:"size:32;not null" json:"type"`
	Collection  string    `gorm:"size:512" json:"collection"`
	DocumentID  string    `gorm:"size:255" json:"document_id"`
	Resolution  string    `gorm:"size:32;not null" json:"resolution"`
	SourceHash  string    `gorm:"size:64" json:"source_hash"`
	ExecutionID string    `gorm:"size:64;index" json:"execution_id"`
	ResolvedAt  time.Time `gorm:"not null" json:"resolved_at"`
}

// TableName overrides the table name used by Resolution.
func (Resolution) TableName() string { return "kb_resolutions" }
