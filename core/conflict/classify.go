package conflict

import (
	"kb-bridge/core/utils"
)

// view is the field-level reading of a snapshot. The content is pulled out of
// the fields either from Snapshot.Content or from the first content field.
type view struct {
	exists       bool
	content      any
	contentKnown bool
	fields       map[string]any
}

func viewOf(s Snapshot, contentFields []string) view {
	v := view{exists: s.Exists}
	if !s.Exists {
		v.contentKnown = true
		return v
	}
	if s.Content != nil {
		v.content = *s.Content
		v.contentKnown = true
		v.fields = s.Metadata
		return v
	}
	for _, name := range contentFields {
		if val, ok := s.Metadata[name]; ok {
			v.content = val
			v.contentKnown = true
			v.fields = make(map[string]any, len(s.Metadata)-1)
			for k, item := range s.Metadata {
				if k != name {
					v.fields[k] = item
				}
			}
			return v
		}
	}
	v.fields = s.Metadata
	return v
}

func sameContent(a, b view) bool {
	if a.exists != b.exists {
		return false
	}
	if !a.exists {
		return true
	}
	return utils.Equal(a.content, b.content)
}

func sameFields(a, b view) bool {
	if a.exists != b.exists {
		return false
	}
	return metadataEqual(a.fields, b.fields)
}

func metadataEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return utils.Equal(a, b)
}

// Identical reports whether two snapshots are the same document state.
func Identical(a, b Snapshot, contentFields []string) bool {
	va, vb := viewOf(a, contentFields), viewOf(b, contentFields)
	if !va.exists || !vb.exists {
		return va.exists == vb.exists
	}
	if !va.contentKnown || !vb.contentKnown {
		return metadataEqual(a.Metadata, b.Metadata)
	}
	return sameContent(va, vb) && sameFields(va, vb)
}

// IsConvergent reports whether both sides reached the same state, which is
// never a conflict.
func IsConvergent(c Candidate, contentFields []string) bool {
	return Identical(c.Ours, c.Theirs, contentFields)
}

// Classify assigns the conflict type of a merge candidate.
func Classify(c Candidate, contentFields []string) ConflictType {
	ours, theirs := viewOf(c.Ours, contentFields), viewOf(c.Theirs, contentFields)
	switch {
	case !c.Base.Exists && ours.exists && theirs.exists:
		return TypeAddAdd
	case ours.exists != theirs.exists:
		return TypeDeleteModify
	case ours.contentKnown && theirs.contentKnown && sameContent(ours, theirs) && !sameFields(ours, theirs):
		return TypeMetadataConflict
	default:
		return TypeContentModification
	}
}

// classifyImport assigns the conflict type of a foreign document against the
// local copy. There is no ancestor on this path.
func classifyImport(local, foreign Snapshot, locallyDeleted bool, contentFields []string) (ConflictType, bool) {
	if !local.Exists {
		if locallyDeleted {
			return TypeDeleteModify, true
		}
		return "", false
	}
	if Identical(local, foreign, contentFields) {
		return "", false
	}
	lv, fv := viewOf(local, contentFields), viewOf(foreign, contentFields)
	if lv.contentKnown && fv.contentKnown && sameContent(lv, fv) {
		return TypeMetadataConflict, true
	}
	return TypeContentModification, true
}

// contentComputable reports whether every existing snapshot carries raw content.
func contentComputable(snaps ...Snapshot) bool {
	for _, s := range snaps {
		if s.Exists && s.Content == nil {
			return false
		}
	}
	return true
}

// IsAutoResolvable decides whether a conflict can be resolved without a human.
// It compares raw content when every snapshot has it and falls back to the
// content field of the field data otherwise. Both paths agree whenever both
// can be computed.
func IsAutoResolvable(t ConflictType, base, ours, theirs Snapshot, contentFields []string) bool {
	if contentComputable(base, ours, theirs) {
		return autoResolvableByContent(t, base, ours, theirs)
	}
	return autoResolvableByFields(t, viewOf(base, contentFields), viewOf(ours, contentFields), viewOf(theirs, contentFields))
}

func autoResolvableByContent(t ConflictType, base, ours, theirs Snapshot) bool {
	switch t {
	case TypeMetadataConflict:
		return true
	case TypeAddAdd:
		return ours.Exists && theirs.Exists && ours.ContentString() == theirs.ContentString()
	case TypeContentModification:
		if ours.ContentString() == theirs.ContentString() && ours.Exists == theirs.Exists {
			return true
		}
		oursChanged := contentDiffers(base, ours)
		theirsChanged := contentDiffers(base, theirs)
		return !(oursChanged && theirsChanged)
	default:
		return false
	}
}

func contentDiffers(a, b Snapshot) bool {
	if a.Exists != b.Exists {
		return true
	}
	return a.ContentString() != b.ContentString()
}

func autoResolvableByFields(t ConflictType, base, ours, theirs view) bool {
	switch t {
	case TypeMetadataConflict:
		return true
	case TypeAddAdd:
		return ours.exists && theirs.exists && ours.contentKnown && theirs.contentKnown && sameContent(ours, theirs)
	case TypeContentModification:
		if !base.contentKnown || !ours.contentKnown || !theirs.contentKnown {
			return false
		}
		if sameContent(ours, theirs) {
			return true
		}
		return !(!sameContent(base, ours) && !sameContent(base, theirs))
	default:
		return false
	}
}

// suggestMerge picks the suggested resolution of a merge conflict.
func suggestMerge(t ConflictType, auto bool, base, ours, theirs view) ResolutionType {
	switch t {
	case TypeDeleteModify:
		if ours.exists {
			return ResolutionKeepOurs
		}
		return ResolutionKeepTheirs
	case TypeMetadataConflict:
		return ResolutionFieldMerge
	case TypeAddAdd:
		if auto && !sameFields(ours, theirs) {
			return ResolutionFieldMerge
		}
		return ResolutionKeepOurs
	case TypeContentModification:
		if !auto {
			return ResolutionKeepOurs
		}
		switch {
		case sameContent(ours, theirs):
			return ResolutionFieldMerge
		case sameContent(base, ours):
			if sameFields(base, ours) {
				return ResolutionKeepTheirs
			}
			return ResolutionFieldMerge
		default:
			if sameFields(base, theirs) {
				return ResolutionKeepOurs
			}
			return ResolutionFieldMerge
		}
	default:
		return ResolutionSkip
	}
}

var (
	fullOptions    = []ResolutionType{ResolutionKeepOurs, ResolutionKeepTheirs, ResolutionFieldMerge, ResolutionCustom, ResolutionSkip}
	noMergeOptions = []ResolutionType{ResolutionKeepOurs, ResolutionKeepTheirs, ResolutionCustom, ResolutionSkip}
	mismatchOpts   = []ResolutionType{ResolutionKeepOurs, ResolutionSkip}
)

// OptionsFor lists the valid resolutions of a conflict type, named in the
// vocabulary of the scenario.
func OptionsFor(s Scenario, t ConflictType) []ResolutionType {
	var opts []ResolutionType
	switch t {
	case TypeDeleteModify, TypeIDCollision:
		opts = noMergeOptions
	case TypeCollectionMismatch:
		opts = mismatchOpts
	default:
		opts = fullOptions
	}
	out := make([]ResolutionType, len(opts))
	for i, o := range opts {
		out[i] = localize(s, o)
	}
	return out
}
