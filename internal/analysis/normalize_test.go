package analysis

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustExtract(t *testing.T, reply string) *RawDocument {
	t.Helper()
	raw, err := Extract(reply)
	require.NoError(t, err)
	return raw
}

func TestValidate_HighlightTiming(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		wantStart  float64
		wantEnd    float64
	}{
		{"inverted gets 30s", "10", "5", 10, 40},
		{"too short extended", "10", "12", 10, 25},
		{"too long cut", "10", "200", 10, 70},
		{"near end moves start back", "295", "298", 285, 300},
		{"clock strings", `"1:00"`, `"1:30"`, 60, 90},
		{"garbage start defaults to 0", `"abc"`, "20", 0, 20},
		{"out of bounds clamped", "-5", "400", 0, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := mustExtract(t, fmt.Sprintf(`{"highlights": [{"start_time": %s, "end_time": %s, "category": "quote"}]}`, tt.start, tt.end))
			doc := Validate(raw, 300, nil)
			require.Len(t, doc.Highlights, 1)
			assert.InDelta(t, tt.wantStart, doc.Highlights[0].StartTime, 1e-9)
			assert.InDelta(t, tt.wantEnd, doc.Highlights[0].EndTime, 1e-9)
		})
	}
}

func TestFitHighlight_LongRangesCutToMaximum(t *testing.T) {
	for i := 0; i < 5000; i++ {
		start := float64(i) * 0.1371
		gotStart, gotEnd := fitHighlight(start, start+90, 1000)
		if gotEnd-gotStart > MaxHighlightSeconds {
			t.Fatalf("fitHighlight(%v) span = %v", start, gotEnd-gotStart)
		}
		assert.InDelta(t, MaxHighlightSeconds, gotEnd-gotStart, 1e-9)
		assert.Equal(t, gotStart, float64(toMillis(gotStart))/1000, "start off the millisecond grid")
	}
}

func TestFitHighlight_RoundsToMilliseconds(t *testing.T) {
	start, end := fitHighlight(10.00049, 30.1236, 300)
	assert.Equal(t, 10.0, start)
	assert.Equal(t, 30.124, end)
}

func TestValidate_HighlightsKeepOrderAndCap(t *testing.T) {
	raw := mustExtract(t, `{"highlights": [
		{"start_time": 100, "end_time": 120},
		{"start_time": 10, "end_time": 30},
		{"start_time": 200, "end_time": 220},
		{"start_time": 50, "end_time": 70},
		{"start_time": 150, "end_time": 170}
	]}`)

	doc := Validate(raw, 300, nil)
	require.Len(t, doc.Highlights, 3)
	assert.Equal(t, 100.0, doc.Highlights[0].StartTime)
	assert.Equal(t, 10.0, doc.Highlights[1].StartTime)
	assert.Equal(t, 200.0, doc.Highlights[2].StartTime)
}

func TestValidate_Categories(t *testing.T) {
	raw := mustExtract(t, `{"highlights": [
		{"start_time": 0, "end_time": 20, "category": " Key Point "},
		{"start_time": 30, "end_time": 50, "category": "FUNNY"},
		{"start_time": 60, "end_time": 80, "category": "weird"},
		{"start_time": 90, "end_time": 110}
	]}`)

	doc := Validate(raw, 300, nil)
	require.Len(t, doc.Highlights, 3)
	assert.Equal(t, "key_point", doc.Highlights[0].Category)
	assert.Equal(t, "funny", doc.Highlights[1].Category)
	assert.Equal(t, CategoryOther, doc.Highlights[2].Category)
	assert.Equal(t, defaultReason, doc.Highlights[2].Reason)
}

func TestValidate_ExcerptBackfill(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 10, Text: "alpha"},
		{Start: 10, End: 20, Text: " beta "},
		{Start: 50, End: 60, Text: "gamma"},
	}
	raw := mustExtract(t, `{"highlights": [{"start_time": 5, "end_time": 25}]}`)

	doc := Validate(raw, 120, segs)
	require.Len(t, doc.Highlights, 1)
	assert.Equal(t, "alpha beta", doc.Highlights[0].TranscriptExcerpt)
}

func TestValidate_ExcerptTruncated(t *testing.T) {
	long := strings.Repeat("é", 500)
	raw := mustExtract(t, fmt.Sprintf(`{"highlights": [{"start_time": 0, "end_time": 20, "transcript_excerpt": %q}]}`, long))

	doc := Validate(raw, 120, nil)
	excerpt := doc.Highlights[0].TranscriptExcerpt
	assert.Equal(t, maxExcerptRunes, len([]rune(excerpt)))
	assert.True(t, strings.HasSuffix(excerpt, "…"))
}

func TestValidate_SynthesizesOneHighlight(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 5, Text: "short"},
		{Start: 40, End: 50, Text: "the longest segment text in here"},
		{Start: 60, End: 65, Text: "tail"},
	}

	doc := Validate(mustExtract(t, `{"highlights": []}`), 300, segs)
	require.Len(t, doc.Highlights, 1)
	h := doc.Highlights[0]
	assert.Equal(t, 38.0, h.StartTime)
	assert.Equal(t, 68.0, h.EndTime)
	assert.Equal(t, "key_point", h.Category)
	assert.Equal(t, "the longest segment text in here", h.TranscriptExcerpt)

	doc = Validate(mustExtract(t, `{"highlights": [{"start_time": 10, "end_time": 10.5}]}`), 300, segs)
	require.Len(t, doc.Highlights, 1)
	assert.Equal(t, 10.0, doc.Highlights[0].StartTime, "a fitted highlight is kept, not replaced")
}

func TestValidate_ShortVideoDropsThenSynthesizes(t *testing.T) {
	segs := []Segment{{Start: 0, End: 8, Text: "hi there"}}
	raw := mustExtract(t, `{"highlights": [{"start_time": 0, "end_time": 8}]}`)

	doc := Validate(raw, 8, segs)
	require.Len(t, doc.Highlights, 1)
	assert.Equal(t, 0.0, doc.Highlights[0].StartTime)
	assert.Equal(t, 8.0, doc.Highlights[0].EndTime)
}

func TestValidate_NoSegmentsNoHighlights(t *testing.T) {
	doc := Validate(mustExtract(t, `{}`), 300, nil)
	assert.Empty(t, doc.Highlights)
}

func TestValidate_ChaptersSortedAndForcedToCover(t *testing.T) {
	raw := mustExtract(t, `{"chapters": [
		{"title": "B", "start_time": 50, "end_time": 100},
		{"title": "A", "start_time": 5, "end_time": 50}
	]}`)

	doc := Validate(raw, 120, nil)
	require.Len(t, doc.Chapters, 2)
	assert.Equal(t, "A", doc.Chapters[0].Title)
	assert.Equal(t, 0.0, doc.Chapters[0].StartTime)
	assert.Equal(t, "B", doc.Chapters[1].Title)
	assert.Equal(t, 120.0, doc.Chapters[1].EndTime)
}

func TestValidate_ChapterMissingEnd(t *testing.T) {
	raw := mustExtract(t, `{"chapters": [{"title": "One", "start_time": 0}, {"start_time": 60}]}`)

	doc := Validate(raw, 120, nil)
	require.Len(t, doc.Chapters, 2)
	assert.Equal(t, 60.0, doc.Chapters[0].EndTime)
	assert.Equal(t, "Chapter 2", doc.Chapters[1].Title)
	assert.Equal(t, 120.0, doc.Chapters[1].EndTime)
}

func TestValidate_HeuristicChapters(t *testing.T) {
	segs := []Segment{{Start: 0, End: 20, Text: "intro words"}, {Start: 100, End: 120, Text: "closing words"}}

	doc := Validate(mustExtract(t, `{"chapters": []}`), 125, segs)
	require.Len(t, doc.Chapters, 4)
	assert.Equal(t, "Part 1", doc.Chapters[0].Title)
	assert.Equal(t, "intro words", doc.Chapters[0].Summary)
	assert.Equal(t, 31.25, doc.Chapters[0].EndTime)
	assert.Equal(t, 31.25, doc.Chapters[1].StartTime)
	assert.Equal(t, 125.0, doc.Chapters[3].EndTime)
	assert.Equal(t, "closing words", doc.Chapters[3].Summary)

	doc = Validate(mustExtract(t, `{}`), 45, segs)
	require.Len(t, doc.Chapters, 1)
	assert.Equal(t, "Full Video", doc.Chapters[0].Title)
	assert.Equal(t, 45.0, doc.Chapters[0].EndTime)
}

func TestValidate_SummaryPlaceholders(t *testing.T) {
	doc := Validate(mustExtract(t, `{"summary": null}`), 60, nil)
	assert.Equal(t, PlaceholderFull, doc.Summary.Full)
	assert.Equal(t, PlaceholderBrief, doc.Summary.Brief)

	doc = Validate(mustExtract(t, `{"summary": "  only full  "}`), 60, nil)
	assert.Equal(t, "only full", doc.Summary.Full)
	assert.Equal(t, PlaceholderBrief, doc.Summary.Brief)
}

func TestValidate_KeywordsDeduped(t *testing.T) {
	raw := mustExtract(t, `{"search_index": ["Go", "go", " rust ", ""], "keywords": ["Rust", "sqlite"]}`)
	doc := Validate(raw, 60, nil)
	assert.Equal(t, []string{"Go", "rust", "sqlite"}, doc.SearchIndex)
}

func TestValidate_Idempotent(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 30, Text: strings.Repeat("word ", 80)},
		{Start: 30, End: 90, Text: "middle"},
		{Start: 90, End: 200, Text: "end"},
	}
	raw := mustExtract(t, `{
		"summary": {"brief": "b"},
		"chapters": [{"title": "x", "start_time": 80, "end_time": 10}, {"start_time": 20, "end_time": 90}],
		"highlights": [{"start_time": 190, "end_time": 195, "category": "Quote"}, {"start_time": 5, "end_time": 500}],
		"keywords": ["a", "A", "b"]
	}`)

	first := Validate(raw, 200, segs)
	encoded, err := json.Marshal(first)
	require.NoError(t, err)

	second := Validate(mustExtract(t, string(encoded)), 200, segs)
	assert.Equal(t, first, second)

	synthesized := Validate(mustExtract(t, `{}`), 200, segs)
	encoded, err = json.Marshal(synthesized)
	require.NoError(t, err)
	assert.Equal(t, synthesized, Validate(mustExtract(t, string(encoded)), 200, segs))
}

func TestValidate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		duration := 15 + rng.Float64()*600

		var hs, chs []string
		for j := 0; j < rng.Intn(6); j++ {
			hs = append(hs, fmt.Sprintf(`{"start_time": %f, "end_time": %f}`,
				rng.Float64()*(duration+100)-50, rng.Float64()*(duration+100)-50))
		}
		for j := 0; j < rng.Intn(5); j++ {
			chs = append(chs, fmt.Sprintf(`{"title": "c", "start_time": %f, "end_time": %f}`,
				rng.Float64()*duration, rng.Float64()*duration))
		}
		segs := []Segment{{Start: rng.Float64() * duration, End: duration, Text: "something said"}}
		raw := mustExtract(t, fmt.Sprintf(`{"highlights": [%s], "chapters": [%s]}`,
			strings.Join(hs, ","), strings.Join(chs, ",")))

		doc := Validate(raw, duration, segs)

		require.NotEmpty(t, doc.Highlights)
		assert.LessOrEqual(t, len(doc.Highlights), MaxHighlights)
		for _, h := range doc.Highlights {
			assert.GreaterOrEqual(t, h.StartTime, 0.0)
			assert.LessOrEqual(t, h.EndTime, duration)
			assert.GreaterOrEqual(t, h.Duration(), MinHighlightSeconds-1e-9)
			assert.LessOrEqual(t, h.Duration(), MaxHighlightSeconds)
		}

		require.NotEmpty(t, doc.Chapters)
		assert.Equal(t, 0.0, doc.Chapters[0].StartTime)
		assert.Equal(t, duration, doc.Chapters[len(doc.Chapters)-1].EndTime)
	}
}

func TestNormalize_FallsBackWithoutCandidate(t *testing.T) {
	segs := []Segment{{Start: 0, End: 30, Text: "opening statement"}}

	doc, origin, err := Normalize("I cannot help with that.", 30, segs)
	assert.ErrorIs(t, err, ErrNoCandidate)
	assert.Equal(t, OriginFallback, origin)
	assert.Equal(t, "opening statement", doc.Summary.Full)

	_, origin, err = Normalize(`{"summary": "fine"}`, 30, segs)
	assert.NoError(t, err)
	assert.Equal(t, OriginModel, origin)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "ab…", truncateRunes("abcd", 3))
	assert.Equal(t, "ab…", truncateRunes(truncateRunes("abcd", 3), 3))
}
