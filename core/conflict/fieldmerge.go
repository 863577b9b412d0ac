package conflict

import (
	"fmt"
	"regexp"
	"sort"

	"kb-bridge/core/utils"
)

const (
	maxConfidence = 100

	// divergedConfidence caps the confidence of a merge in which a field was
	// changed differently on both sides.
	divergedConfidence = 50
)

var timestampFieldPattern = regexp.MustCompile(`(^|_)(updated|modified|created|changed|timestamp|ts|version|revision|rev|seq)(_(at|on|time|ts|date|number|no))?$|_at$`)

// IsTimestampField reports whether a field name denotes a timestamp or a
// monotonically increasing version.
func IsTimestampField(name string) bool {
	return timestampFieldPattern.MatchString(utils.SnakeCase(name))
}

// FieldDecision records which side supplied a merged field.
type FieldDecision struct {
	Field      string `json:"field"`
	Source     string `json:"source"`
	Removed    bool   `json:"removed,omitempty"`
	Confidence int    `json:"confidence"`
}

// FieldMergeResult is the outcome of a field-level merge.
type FieldMergeResult struct {
	Content    *string         `json:"content,omitempty"`
	Metadata   map[string]any  `json:"metadata"`
	Confidence int             `json:"confidence"`
	Warnings   []string        `json:"warnings,omitempty"`
	Decisions  []FieldDecision `json:"decisions"`
}

type fieldValue struct {
	set bool
	val any
}

func (f fieldValue) equal(o fieldValue) bool {
	if f.set != o.set {
		return false
	}
	return !f.set || utils.Equal(f.val, o.val)
}

func fieldsWithContent(v view) map[string]fieldValue {
	out := make(map[string]fieldValue, len(v.fields)+1)
	if !v.exists {
		return out
	}
	for k, val := range v.fields {
		out[k] = fieldValue{set: true, val: val}
	}
	if v.contentKnown && v.content != nil {
		out[ContentField] = fieldValue{set: true, val: v.content}
	}
	return out
}

// FieldMerge merges three snapshots field by field. A field changed on one
// side only takes that side's value. A field changed differently on both sides
// takes the greater value for timestamps and versions and the ours value
// otherwise, capping confidence at 50. The content field never merges: ours is
// kept with a data-loss warning. Overall confidence is the lowest of any field.
func FieldMerge(base, ours, theirs Snapshot, contentFields []string) FieldMergeResult {
	bf := fieldsWithContent(viewOf(base, contentFields))
	of := fieldsWithContent(viewOf(ours, contentFields))
	tf := fieldsWithContent(viewOf(theirs, contentFields))

	names := make(map[string]struct{})
	for _, m := range []map[string]fieldValue{bf, of, tf} {
		for k := range m {
			names[k] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	res := FieldMergeResult{
		Metadata:   make(map[string]any),
		Confidence: maxConfidence,
	}
	merged := make(map[string]fieldValue, len(sorted))
	for _, name := range sorted {
		b, o, t := bf[name], of[name], tf[name]
		d := FieldDecision{Field: name, Confidence: maxConfidence}
		var pick fieldValue
		switch {
		case o.equal(t):
			pick, d.Source = o, "both"
		case b.equal(o):
			pick, d.Source = t, "theirs"
		case b.equal(t):
			pick, d.Source = o, "ours"
		case name == ContentField:
			pick, d.Source = o, "ours"
			d.Confidence = divergedConfidence
			res.Warnings = append(res.Warnings, "content changed on both sides; kept the target version and the source changes would be lost")
		case IsTimestampField(name):
			if g, ok := greaterValue(o, t); ok {
				pick, d.Source = g, "ours"
				if g.equal(t) && !g.equal(o) {
					d.Source = "theirs"
				}
			} else {
				pick, d.Source = o, "ours"
				d.Confidence = divergedConfidence
				res.Warnings = append(res.Warnings, fmt.Sprintf("field %q changed on both sides with incomparable values; kept the target value", name))
			}
		default:
			pick, d.Source = o, "ours"
			d.Confidence = divergedConfidence
			res.Warnings = append(res.Warnings, fmt.Sprintf("field %q changed on both sides; kept the target value", name))
		}
		d.Removed = !pick.set
		merged[name] = pick
		if d.Confidence < res.Confidence {
			res.Confidence = d.Confidence
		}
		res.Decisions = append(res.Decisions, d)
	}

	for name, v := range merged {
		if !v.set {
			continue
		}
		if name == ContentField {
			c := utils.ToString(v.val)
			res.Content = &c
			continue
		}
		res.Metadata[name] = v.val
	}
	return res
}

// greaterValue returns the greater of two set values when both are numbers or
// both are timestamps. A value removed on one side loses to the other.
func greaterValue(a, b fieldValue) (fieldValue, bool) {
	switch {
	case !a.set && !b.set:
		return a, false
	case !a.set:
		return b, true
	case !b.set:
		return a, true
	}
	if fa, ok := utils.ToFloat(a.val); ok {
		if fb, ok := utils.ToFloat(b.val); ok {
			if fb > fa {
				return b, true
			}
			return a, true
		}
	}
	if ta, ok := utils.ToTime(a.val); ok {
		if tb, ok := utils.ToTime(b.val); ok {
			if tb.After(ta) {
				return b, true
			}
			return a, true
		}
	}
	return a, false
}

// DiffFields lists the fields that differ between any two of the snapshots.
func DiffFields(base, ours, theirs Snapshot, contentFields []string) []FieldDiff {
	bf := fieldsWithContent(viewOf(base, contentFields))
	of := fieldsWithContent(viewOf(ours, contentFields))
	tf := fieldsWithContent(viewOf(theirs, contentFields))

	names := make(map[string]struct{})
	for _, m := range []map[string]fieldValue{bf, of, tf} {
		for k := range m {
			names[k] = struct{}{}
		}
	}
	var diffs []FieldDiff
	for name := range names {
		b, o, t := bf[name], of[name], tf[name]
		if b.equal(o) && o.equal(t) {
			continue
		}
		diffs = append(diffs, FieldDiff{
			Field:         name,
			Base:          b.val,
			Ours:          o.val,
			Theirs:        t.val,
			OursChanged:   !b.equal(o),
			TheirsChanged: !b.equal(t),
		})
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })
	return diffs
}
