package conflict

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// MergeIDPrefix prefixes conflict ids produced by merge analysis.
	MergeIDPrefix = "conf_"
	// ImportIDPrefix prefixes conflict ids produced by import analysis.
	ImportIDPrefix = "imp_"

	idHexLength = 12
)

var conflictIDPattern = regexp.MustCompile(`^(conf|imp)_[0-9a-f]{12}$`)

// ConflictID derives the deterministic id of a conflict from its defining
// attributes. Equal inputs always give equal ids, in any process.
func ConflictID(prefix, sourceKey, targetKey, documentID string, t ConflictType) string {
	sum := sha256.Sum256([]byte(sourceKey + "_" + targetKey + "_" + documentID + "_" + string(t)))
	return prefix + hex.EncodeToString(sum[:])[:idHexLength]
}

// MergeConflictID is the id of a merge conflict. Both keys are the table name.
func MergeConflictID(table, documentID string, t ConflictType) string {
	return ConflictID(MergeIDPrefix, table, table, documentID, t)
}

// ImportConflictID is the id of an import conflict.
func ImportConflictID(sourceCollection, targetCollection, documentID string, t ConflictType) string {
	return ConflictID(ImportIDPrefix, sourceCollection, targetCollection, documentID, t)
}

// CollisionSourceKey is the source key of an id collision: the sorted, unique
// source collections joined by commas.
func CollisionSourceKey(sources []string) string {
	uniq := make(map[string]struct{}, len(sources))
	keys := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := uniq[s]; ok {
			continue
		}
		uniq[s] = struct{}{}
		keys = append(keys, s)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// ValidConflictID reports whether id has the shape of a generated conflict id.
func ValidConflictID(id string) bool {
	return conflictIDPattern.MatchString(id)
}

// identityKeys returns the source and target keys of c. This is the only
// place that decides which attributes feed the id.
func (c Conflict) identityKeys() (string, string) {
	if c.Scenario == ScenarioMerge {
		return c.Table, c.Table
	}
	if c.Type == TypeIDCollision {
		names := make([]string, 0, len(c.Sources))
		for _, s := range c.Sources {
			names = append(names, s.Collection)
		}
		return CollisionSourceKey(names), c.TargetCollection
	}
	return c.SourceCollection, c.TargetCollection
}

func (c Conflict) computeID() string {
	src, tgt := c.identityKeys()
	prefix := ImportIDPrefix
	if c.Scenario == ScenarioMerge {
		prefix = MergeIDPrefix
	}
	return ConflictID(prefix, src, tgt, c.DocumentID, c.Type)
}

// VerifyIdentity checks that c's id matches its defining attributes.
func VerifyIdentity(c Conflict) error {
	want := c.computeID()
	if c.ConflictID != want {
		return &Error{
			Kind:       KindIdentityMismatch,
			Op:         "verify_identity",
			Collection: c.collectionLabel(),
			DocumentID: c.DocumentID,
			Err:        fmt.Errorf("conflict id %q, attributes give %q", c.ConflictID, want),
		}
	}
	return nil
}

func (c Conflict) collectionLabel() string {
	switch {
	case c.Table != "":
		return c.Table
	case c.SourceCollection != "" && c.TargetCollection != "":
		return c.SourceCollection + "->" + c.TargetCollection
	default:
		return c.TargetCollection
	}
}
