package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawConflictRow(t *testing.T) {
	row := map[string]any{
		"base_doc_id":      []byte("doc1"),
		"base_content":     []byte("v1"),
		"base_title":       "old",
		"our_doc_id":       "doc1",
		"our_content":      "v2",
		"our_title":        "ours",
		"our_diff_type":    "modified",
		"their_doc_id":     "doc1",
		"their_content":    "v3",
		"their_title":      "old",
		"their_diff_type":  "modified",
		"dolt_conflict_id": "abc",
		"from_root_ish":    "xyz",
	}

	parsed, err := ParseRawConflictRow("documents", row, DefaultContentFields)
	require.NoError(t, err)

	assert.Equal(t, "documents", parsed.Table)
	assert.Equal(t, "doc1", parsed.DocumentID)
	assert.Equal(t, "v1", parsed.Base.ContentString())
	assert.Equal(t, "v2", parsed.Ours.ContentString())
	assert.Equal(t, "v3", parsed.Theirs.ContentString())
	assert.Equal(t, map[string]any{"title": "ours"}, parsed.Ours.Metadata)
	assert.Equal(t, ContentHash("v2"), parsed.Ours.Hash)
}

func TestParseRawConflictRow_Variants(t *testing.T) {
	t.Run("ours and theirs prefixes with document_text", func(t *testing.T) {
		row := map[string]any{
			"ours_id":              "d",
			"ours_document_text":   "a",
			"theirs_id":            "d",
			"theirs_document_text": "b",
		}
		parsed, err := ParseRawConflictRow("t", row, DefaultContentFields)
		require.NoError(t, err)
		assert.False(t, parsed.Base.Exists)
		assert.Equal(t, "a", parsed.Ours.ContentString())
		assert.Equal(t, "b", parsed.Theirs.ContentString())
	})

	t.Run("removed side", func(t *testing.T) {
		row := map[string]any{
			"base_id":         "d",
			"base_content":    "a",
			"our_id":          nil,
			"our_content":     nil,
			"our_diff_type":   "removed",
			"their_id":        "d",
			"their_content":   "b",
			"their_diff_type": "modified",
		}
		parsed, err := ParseRawConflictRow("t", row, DefaultContentFields)
		require.NoError(t, err)
		assert.False(t, parsed.Ours.Exists)
		assert.True(t, parsed.Theirs.Exists)
		assert.Equal(t, TypeDeleteModify, Classify(parsed.Candidate(), DefaultContentFields))
	})

	t.Run("no content column", func(t *testing.T) {
		row := map[string]any{"base_pk": 7, "base_score": 1, "our_pk": 7, "our_score": 2, "their_pk": 7, "their_score": 3}
		parsed, err := ParseRawConflictRow("t", row, DefaultContentFields)
		require.NoError(t, err)
		assert.Equal(t, "7", parsed.DocumentID)
		assert.True(t, parsed.Ours.Exists)
		assert.Nil(t, parsed.Ours.Content)
		assert.Equal(t, map[string]any{"score": 2}, parsed.Ours.Metadata)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := ParseRawConflictRow("t", map[string]any{"our_content": "x"}, DefaultContentFields)
		assert.Error(t, err)
	})
}

func TestRowSnapshot(t *testing.T) {
	s := RowSnapshot(map[string]any{"ID": "d1", "Content": []byte("hello"), "title": "T"}, DefaultContentFields)
	assert.True(t, s.Exists)
	require.NotNil(t, s.Content)
	assert.Equal(t, "hello", *s.Content)
	assert.Equal(t, map[string]any{"title": "T"}, s.Metadata)

	assert.False(t, RowSnapshot(nil, DefaultContentFields).Exists)

	fieldsOnly := RowSnapshot(map[string]any{"id": "d1", "score": 3}, DefaultContentFields)
	assert.True(t, fieldsOnly.Exists)
	assert.Nil(t, fieldsOnly.Content)
}
