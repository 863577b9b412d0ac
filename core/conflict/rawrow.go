package conflict

import (
	"fmt"
	"strings"

	"kb-bridge/core/utils"
)

// RawConflictRow is a native conflict row split into its three sides.
type RawConflictRow struct {
	Table      string
	DocumentID string
	Base       Snapshot
	Ours       Snapshot
	Theirs     Snapshot
}

// Candidate turns the row into a merge candidate.
func (r RawConflictRow) Candidate() Candidate {
	return Candidate{
		Table:      r.Table,
		DocumentID: r.DocumentID,
		Base:       r.Base,
		Ours:       r.Ours,
		Theirs:     r.Theirs,
	}
}

// Side prefixes, longest first so "ours_" wins over "our_".
var sidePrefixes = []struct {
	side   string
	prefix string
}{
	{"base", "base_"},
	{"ours", "ours_"},
	{"ours", "our_"},
	{"theirs", "theirs_"},
	{"theirs", "their_"},
}

// IDFields are the column names recognized as the document id, in priority order.
var IDFields = []string{"doc_id", "document_id", "id", "pk"}

const diffTypeField = "diff_type"

// ParseRawConflictRow normalizes a column-to-value row as produced by native
// conflict summaries. Columns are prefixed base_, our_ (or ours_) and their_
// (or theirs_). The content is taken from the first content field found and
// the document id from the first id field. Unprefixed columns are ignored.
// The row is rejected when no side carries a document id.
func ParseRawConflictRow(table string, row map[string]any, contentFields []string) (RawConflictRow, error) {
	sides := map[string]map[string]any{
		"base":   {},
		"ours":   {},
		"theirs": {},
	}
	for col, val := range row {
		lower := strings.ToLower(col)
		for _, sp := range sidePrefixes {
			if strings.HasPrefix(lower, sp.prefix) && len(lower) > len(sp.prefix) {
				sides[sp.side][lower[len(sp.prefix):]] = utils.NormalizeValue(val)
				break
			}
		}
	}

	docID := ""
	for _, side := range []string{"ours", "theirs", "base"} {
		if id := firstString(sides[side], IDFields); id != "" {
			docID = id
			break
		}
	}
	if docID == "" {
		return RawConflictRow{}, fmt.Errorf("conflict row in table %s has no document id (looked for %s)", table, strings.Join(IDFields, ", "))
	}

	return RawConflictRow{
		Table:      table,
		DocumentID: docID,
		Base:       rowSnapshot(sides["base"], contentFields),
		Ours:       rowSnapshot(sides["ours"], contentFields),
		Theirs:     rowSnapshot(sides["theirs"], contentFields),
	}, nil
}

func firstString(fields map[string]any, names []string) string {
	for _, n := range names {
		if v, ok := fields[n]; ok && v != nil {
			if s := utils.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// rowSnapshot builds the snapshot of one side. A side exists unless its diff
// type says removed or every value is null.
func rowSnapshot(fields map[string]any, contentFields []string) Snapshot {
	diffType, hasDiffType := fields[diffTypeField]
	delete(fields, diffTypeField)

	exists := false
	if hasDiffType && diffType != nil {
		exists = utils.ToString(diffType) != string(ChangeRemoved)
	} else {
		for _, v := range fields {
			if v != nil {
				exists = true
				break
			}
		}
	}
	if !exists {
		return Absent()
	}

	for _, n := range IDFields {
		delete(fields, n)
	}
	for _, n := range contentFields {
		if v, ok := fields[n]; ok {
			delete(fields, n)
			return Present(utils.ToString(v), fields)
		}
	}
	return FieldsOnly(fields)
}

// RowSnapshot builds a snapshot from one plain table row. Column names are
// lowercased, values normalized, and id columns dropped from the metadata. A
// nil row is an absent document.
func RowSnapshot(row map[string]any, contentFields []string) Snapshot {
	if row == nil {
		return Absent()
	}
	fields := make(map[string]any, len(row))
	for col, val := range row {
		fields[strings.ToLower(col)] = utils.NormalizeValue(val)
	}
	if len(fields) == 0 {
		return FieldsOnly(fields)
	}
	return rowSnapshot(fields, contentFields)
}
