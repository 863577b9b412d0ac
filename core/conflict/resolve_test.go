package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolutionType(t *testing.T) {
	tests := []struct {
		in   string
		want ResolutionType
	}{
		{"keep_ours", ResolutionKeepOurs},
		{"KeepOurs", ResolutionKeepOurs},
		{"keep-theirs", ResolutionKeepTheirs},
		{" KEEP_SOURCE ", ResolutionKeepSource},
		{"FieldMerge", ResolutionFieldMerge},
		{"merge", ResolutionMerge},
		{"auto", ResolutionAuto},
		{"AutoResolve", ResolutionAuto},
		{"skip", ResolutionSkip},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResolutionType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseResolutionType("overwrite")
	assert.Error(t, err)
}

func mergeConflict(id string, typ ConflictType, auto bool, base, ours, theirs Snapshot) Conflict {
	c := Conflict{
		Scenario:          ScenarioMerge,
		Type:              typ,
		Table:             "documents",
		DocumentID:        id,
		AutoResolvable:    auto,
		ResolutionOptions: OptionsFor(ScenarioMerge, typ),
		Base:              base,
		Ours:              ours,
		Theirs:            theirs,
	}
	c.SuggestedResolution = ResolutionKeepTheirs
	c.ConflictID = c.computeID()
	return c
}

func TestResolve_Strategies(t *testing.T) {
	c := mergeConflict("doc1", TypeContentModification, false,
		Present("v1", nil), Present("ours", meta("k", 1)), Present("theirs", meta("k", 2)))

	out := Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionKeepOurs}, DefaultContentFields)
	require.True(t, out.Success)
	assert.Equal(t, ActionWrite, out.Action)
	assert.Equal(t, "ours", *out.Content)

	out = Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: "keep-theirs"}, DefaultContentFields)
	require.True(t, out.Success)
	assert.Equal(t, "theirs", *out.Content)
	assert.Equal(t, ResolutionKeepTheirs, out.Resolution)

	out = Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionSkip}, DefaultContentFields)
	require.True(t, out.Success)
	assert.Equal(t, ActionSkip, out.Action)

	custom := "hand written"
	out = Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionCustom, CustomContent: &custom}, DefaultContentFields)
	require.True(t, out.Success)
	assert.Equal(t, "hand written", *out.Content)
	assert.Equal(t, meta("k", 1), out.Metadata)

	out = Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionCustom}, DefaultContentFields)
	assert.False(t, out.Success)
	assert.Equal(t, KindInvalidResolution, out.ErrorKind)

	out = Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionAuto}, DefaultContentFields)
	assert.False(t, out.Success)
}

func TestResolve_ImportVocabulary(t *testing.T) {
	c := Conflict{
		Scenario:          ScenarioImport,
		Type:              TypeContentModification,
		SourceCollection:  "foreign",
		TargetCollection:  "local",
		DocumentID:        "doc1",
		ResolutionOptions: OptionsFor(ScenarioImport, TypeContentModification),
		Base:              Absent(),
		Ours:              Present("local", nil),
		Theirs:            Present("foreign", nil),
	}
	c.ConflictID = c.computeID()

	// Merge vocabulary is accepted and reported in import terms.
	out := Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionKeepTheirs}, DefaultContentFields)
	require.True(t, out.Success)
	assert.Equal(t, ResolutionKeepSource, out.Resolution)
	assert.Equal(t, "foreign", *out.Content)
	assert.Equal(t, "foreign", out.SourceCollection)
}

func TestResolve_IDCollisionKeepsFirstSource(t *testing.T) {
	c := Conflict{
		Scenario:          ScenarioImport,
		Type:              TypeIDCollision,
		TargetCollection:  "docs",
		DocumentID:        "doc1",
		ResolutionOptions: OptionsFor(ScenarioImport, TypeIDCollision),
		Ours:              Absent(),
		Sources: []SourceVersion{
			{Collection: "a", Snapshot: Present("from a", nil)},
			{Collection: "b", Snapshot: Present("from b", nil)},
		},
	}
	c.ConflictID = c.computeID()

	out := Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionKeepSource}, DefaultContentFields)
	require.True(t, out.Success)
	assert.Equal(t, "from a", *out.Content)
	assert.Equal(t, "a", out.SourceCollection)

	out = Resolve(c, ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionMerge}, DefaultContentFields)
	assert.False(t, out.Success)
}

func TestApplyResolutions_Batch(t *testing.T) {
	auto := mergeConflict("a", TypeMetadataConflict, true,
		Present("v", meta("k", 1)), Present("v", meta("k", 2)), Present("v", meta("k", 1)))
	auto.SuggestedResolution = ResolutionFieldMerge
	manual := mergeConflict("b", TypeContentModification, false,
		Present("v1", nil), Present("v2", nil), Present("v3", nil))
	explicit := mergeConflict("c", TypeContentModification, false,
		Present("v1", nil), Present("x", nil), Present("y", nil))
	conflicts := []Conflict{explicit, manual, auto}

	t.Run("explicit, auto and missing default", func(t *testing.T) {
		res := ApplyResolutions(conflicts, []ResolutionRequest{
			{ConflictID: explicit.ConflictID, ResolutionType: ResolutionKeepTheirs},
			{ConflictID: "conf_000000000000", ResolutionType: ResolutionSkip},
		}, BatchOptions{AutoResolveRemaining: true}, DefaultContentFields)

		require.Len(t, res.Outcomes, 4)
		assert.Equal(t, 2, res.Succeeded)
		assert.Equal(t, 2, res.Failed)
		for i := 1; i < len(res.Outcomes); i++ {
			assert.Less(t, res.Outcomes[i-1].ConflictID, res.Outcomes[i].ConflictID)
		}

		byID := make(map[string]ResolutionOutcome)
		for _, o := range res.Outcomes {
			byID[o.ConflictID] = o
		}
		assert.True(t, byID[explicit.ConflictID].Success)
		assert.True(t, byID[auto.ConflictID].Success)
		assert.Equal(t, ResolutionFieldMerge, byID[auto.ConflictID].Resolution)
		assert.False(t, byID[manual.ConflictID].Success)
		assert.Equal(t, KindConflictNotFound, byID["conf_000000000000"].ErrorKind)
	})

	t.Run("default strategy covers the rest", func(t *testing.T) {
		res := ApplyResolutions(conflicts, nil, BatchOptions{AutoResolveRemaining: true, DefaultStrategy: ResolutionSkip}, DefaultContentFields)
		assert.Equal(t, 3, res.Succeeded)
		assert.Equal(t, 0, res.Failed)
	})

	t.Run("default strategy invalid for a type fails that conflict only", func(t *testing.T) {
		del := mergeConflict("d", TypeDeleteModify, false, Present("v1", nil), Absent(), Present("v2", nil))
		res := ApplyResolutions([]Conflict{del, manual}, nil, BatchOptions{DefaultStrategy: ResolutionFieldMerge}, DefaultContentFields)
		assert.Equal(t, 1, res.Succeeded)
		assert.Equal(t, 1, res.Failed)
	})
}
