package importer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qabase/qabase/backend/go-services/internal/content"
)

func qaEntry() map[string]interface{} {
	return map[string]interface{}{
		"Title":       "  A  ",
		"Category":    "X",
		"Question":    "q",
		"Answer":      "a",
		"messageType": "m",
	}
}

func TestNormalize_CompleteRecordIsNeverSkipped(t *testing.T) {
	rec, skip := NewNormalizer(QASchema).Normalize(qaEntry(), 0)
	require.Nil(t, skip)
	assert.Equal(t, "A", rec.Title)
	assert.Equal(t, "X", rec.Category)
	assert.Equal(t, "m", rec.MessageType)
	assert.Equal(t, content.NotAvailable, rec.OriginalPostTitle)
	assert.Equal(t, content.NotAvailable, rec.OriginalPostURL)
	assert.Equal(t, []string{}, rec.Tags)
	assert.Nil(t, rec.Index)
}

func TestNormalize_MissingFieldsListedExactly(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]interface{})
		missing []string
	}{
		{"absent title", func(m map[string]interface{}) { delete(m, "Title") }, []string{"Title"}},
		{"blank category", func(m map[string]interface{}) { m["Category"] = "   " }, []string{"Category"}},
		{"two missing", func(m map[string]interface{}) {
			delete(m, "Question")
			m["Answer"] = ""
		}, []string{"Question", "Answer"}},
		{"null title", func(m map[string]interface{}) { m["Title"] = nil }, []string{"Title"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := qaEntry()
			tt.mutate(raw)
			rec, skip := NewNormalizer(QASchema).Normalize(raw, 4)
			require.Nil(t, rec)
			require.NotNil(t, skip)
			assert.Equal(t, tt.missing, skip.Missing)
			assert.Equal(t, 4, skip.Ordinal)
			assert.True(t, errors.Is(skip, ErrValidationSkip))
		})
	}
}

func TestNormalize_MessageTypeDefaultsToGeneral(t *testing.T) {
	raw := qaEntry()
	delete(raw, "messageType")
	rec, skip := NewNormalizer(QASchema).Normalize(raw, 0)
	require.Nil(t, skip)
	assert.Equal(t, content.DefaultMessageType, rec.MessageType)
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want []string
	}{
		{"array with embedded commas", []interface{}{"x, y", "z"}, []string{"x", "y", "z"}},
		{"single string", "x, y, z", []string{"x", "y", "z"}},
		{"empty pieces dropped", " ,x,, y ,", []string{"x", "y"}},
		{"nil", nil, []string{}},
		{"string slice", []string{"a,b", " c "}, []string{"a", "b", "c"}},
		{"numbers stringified", []interface{}{json.Number("3"), "d"}, []string{"3", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTags(tt.in, ","))
		})
	}
}

func passageEntry() map[string]interface{} {
	return map[string]interface{}{
		"index":             json.Number("12"),
		"Title":             "P",
		"author":            "someone",
		"date":              "2023-04-01",
		"messageType":       "Story",
		"originalPostTitle": "Thread",
		"originalPostURL":   "https://forum/t/1",
		"Passage":           "text",
		"Tags":              "a, b",
	}
}

func TestNormalize_PassageSchema(t *testing.T) {
	rec, skip := NewNormalizer(PassageSchema).Normalize(passageEntry(), 0)
	require.Nil(t, skip)
	require.NotNil(t, rec.Index)
	assert.EqualValues(t, 12, *rec.Index)
	assert.Equal(t, "text", rec.Passage)
	assert.Equal(t, []string{"a", "b"}, rec.Tags)
	assert.Equal(t, "", rec.Category)
}

func TestNormalize_PassageOriginalPostHasNoDefault(t *testing.T) {
	raw := passageEntry()
	delete(raw, "originalPostTitle")
	delete(raw, "originalPostURL")
	_, skip := NewNormalizer(PassageSchema).Normalize(raw, 2)
	require.NotNil(t, skip)
	assert.Equal(t, []string{"originalPostTitle", "originalPostURL"}, skip.Missing)
}

func TestNormalize_PassageIndexForms(t *testing.T) {
	for _, v := range []interface{}{json.Number("5"), "5", float64(5), json.Number("5.0"), "5.0", " 5 "} {
		raw := passageEntry()
		raw["index"] = v
		rec, skip := NewNormalizer(PassageSchema).Normalize(raw, 0)
		require.Nil(t, skip, "index %v", v)
		assert.EqualValues(t, 5, *rec.Index)
	}

	raw := passageEntry()
	raw["index"] = "five"
	rec, skip := NewNormalizer(PassageSchema).Normalize(raw, 1)
	require.Nil(t, rec)
	require.NotNil(t, skip)
	assert.Empty(t, skip.Missing)
	assert.Contains(t, skip.Reason, "invalid index")

	for _, v := range []interface{}{"5.5", json.Number("5.5"), float64(5.5)} {
		raw := passageEntry()
		raw["index"] = v
		_, skip := NewNormalizer(PassageSchema).Normalize(raw, 2)
		require.NotNil(t, skip, "index %v", v)
		assert.Contains(t, skip.Reason, "not an integer")
	}
}
