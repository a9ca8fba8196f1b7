package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_FencedBlockWinsOverStrayBraces(t *testing.T) {
	reply := "I considered {this} first.\n" +
		"```json\n{\"summary\": {\"full\": \"from fence\"}}\n```\n" +
		"Alternative: {\"summary\": {\"full\": \"outside\"}}"

	doc, err := Extract(reply)
	require.NoError(t, err)
	assert.Equal(t, "from fence", doc.Summary.Full.String())
}

func TestExtract_TrailingCommasRepaired(t *testing.T) {
	doc, err := Extract(`{"summary": {"full": "x", "brief": "y",}, "highlights": [{"start_time": 1,},],}`)
	require.NoError(t, err)
	assert.Equal(t, "y", doc.Summary.Brief.String())
	require.Len(t, doc.Highlights, 1)
	assert.Equal(t, 1.0, doc.Highlights[0].StartTime.Value)
}

func TestExtract_ProseWrapped(t *testing.T) {
	doc, err := Extract(`Sure! Here it is: {"summary": "hello"} Hope that helps.`)
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Summary.Full.String())
}

func TestExtract_SkipsUndecodableSpans(t *testing.T) {
	doc, err := Extract(`see {this} and [that] then {"summary": "ok"}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", doc.Summary.Full.String())
}

func TestExtract_BracesInsideStrings(t *testing.T) {
	doc, err := Extract(`prefix {"summary": "a } tricky { value"} suffix`)
	require.NoError(t, err)
	assert.Equal(t, "a } tricky { value", doc.Summary.Full.String())
}

func TestExtract_ArrayUsesFirstObject(t *testing.T) {
	doc, err := Extract(`[1, {"summary": "first"}, {"summary": "second"}]`)
	require.NoError(t, err)
	assert.Equal(t, "first", doc.Summary.Full.String())
}

func TestExtract_NoCandidate(t *testing.T) {
	for _, reply := range []string{"", "nope", "[note] {broken", `"just a string"`, "42"} {
		_, err := Extract(reply)
		assert.ErrorIs(t, err, ErrNoCandidate, "reply %q", reply)
	}
}

func TestRawDocument_LenientFields(t *testing.T) {
	doc, err := Extract(`{
		"highlights": [
			{"start_time": "1:05", "end_time": "95.5", "category": 3},
			"not an object",
			{"start_time": null, "end_time": true}
		],
		"chapters": "none",
		"search_index": ["a", 7, {"x": 1}]
	}`)
	require.NoError(t, err)

	require.Len(t, doc.Highlights, 2)
	assert.Equal(t, 65.0, doc.Highlights[0].StartTime.Value)
	assert.Equal(t, 95.5, doc.Highlights[0].EndTime.Value)
	assert.Equal(t, "3", doc.Highlights[0].Category.String())
	assert.False(t, doc.Highlights[1].StartTime.Set)
	assert.False(t, doc.Highlights[1].EndTime.Set)

	assert.Empty(t, doc.Chapters)
	require.Len(t, doc.SearchIndex, 3)
	assert.Equal(t, "7", doc.SearchIndex[1].String())
	assert.False(t, doc.SearchIndex[2].Set)
}

func TestRawDocument_SingleValueLists(t *testing.T) {
	doc, err := Extract(`{
		"highlights": {"start_time": 10, "end_time": 40, "category": "quote"},
		"chapters": null,
		"keywords": "revenue"
	}`)
	require.NoError(t, err)

	require.Len(t, doc.Highlights, 1)
	assert.Equal(t, 10.0, doc.Highlights[0].StartTime.Value)
	assert.Equal(t, "quote", doc.Highlights[0].Category.String())
	assert.Empty(t, doc.Chapters)
	require.Len(t, doc.Keywords, 1)
	assert.Equal(t, "revenue", doc.Keywords[0].String())
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{" 30s ", 30, true},
		{"1:05", 65, true},
		{"01:01:05", 3665, true},
		{"1:-5", 0, false},
		{"NaN", 0, false},
		{"soon", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
