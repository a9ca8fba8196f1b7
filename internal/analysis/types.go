// Package analysis turns a free-text model response into a validated analysis
// document of a video: summary, chapters, highlights and search keywords.
//
// Untrusted input is decoded into RawDocument, whose fields are all optional
// and tolerate wrong JSON types. Validate converts a RawDocument into a
// Document that satisfies every timing rule. When no JSON can be recovered at
// all, Fallback builds a Document from transcript statistics alone.
package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Origin records whether a document came from the model or from the fallback generator.
type Origin string

const (
	OriginModel    Origin = "model"
	OriginFallback Origin = "fallback"
)

const (
	MinHighlightSeconds  = 15.0
	MaxHighlightSeconds  = 60.0
	DropHighlightSeconds = 10.0
	ForcedSpanSeconds    = 30.0
	MaxHighlights        = 3

	// Synthesized highlights start slightly before the chosen segment.
	leadInSeconds  = 2.0
	leadOutSeconds = 28.0

	// Videos shorter than this get a single chapter.
	shortVideoSeconds = 60.0
	chapterParts      = 4

	maxExcerptRunes = 300
	maxFullRunes    = 1000
	maxBriefRunes   = 200
	maxChapterRunes = 200
	maxKeywords     = 20

	CategoryOther = "other"

	PlaceholderFull  = "No summary available."
	PlaceholderBrief = "No brief summary available."
	defaultReason    = "Notable moment"
)

// Categories is the closed set of highlight categories. Anything else becomes CategoryOther.
var Categories = []string{"key_point", "insight", "funny", "emotional", "action", "quote", "surprising", CategoryOther}

var categorySet = func() map[string]bool {
	m := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// Segment is the transcript view the normalizer works on.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Document is a validated analysis. Every highlight lies inside the video and
// lasts 15 to 60 seconds (when the video is long enough), chapters cover the
// whole duration, and no field is left empty where a placeholder exists.
type Document struct {
	Summary     Summary     `json:"summary"`
	Chapters    []Chapter   `json:"chapters"`
	Highlights  []Highlight `json:"highlights"`
	SearchIndex []string    `json:"search_index"`
}

type Summary struct {
	Full  string `json:"full"`
	Brief string `json:"brief"`
}

type Chapter struct {
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type Highlight struct {
	StartTime         float64 `json:"start_time"`
	EndTime           float64 `json:"end_time"`
	Category          string  `json:"category"`
	Reason            string  `json:"reason"`
	TranscriptExcerpt string  `json:"transcript_excerpt"`
}

func (h Highlight) Duration() float64 { return h.EndTime - h.StartTime }

// RawDocument is the boundary shape of a model response. Nothing in it is
// trusted; Validate is the only consumer.
type RawDocument struct {
	Summary     RawSummary         `json:"summary"`
	Chapters    List[RawChapter]   `json:"chapters"`
	Highlights  List[RawHighlight] `json:"highlights"`
	SearchIndex List[Text]         `json:"search_index"`
	Keywords    List[Text]         `json:"keywords"`
}

type RawSummary struct {
	Full  Text `json:"full"`
	Brief Text `json:"brief"`
}

// UnmarshalJSON accepts either an object or a bare string (taken as the full summary).
func (s *RawSummary) UnmarshalJSON(b []byte) error {
	*s = RawSummary{}
	if isNull(b) {
		return nil
	}
	var str string
	if json.Unmarshal(b, &str) == nil {
		*s = RawSummary{Full: Text{Value: str, Set: true}}
		return nil
	}
	type plain RawSummary
	var p plain
	if json.Unmarshal(b, &p) == nil {
		*s = RawSummary(p)
	}
	return nil
}

type RawChapter struct {
	Title     Text   `json:"title"`
	Summary   Text   `json:"summary"`
	StartTime Number `json:"start_time"`
	EndTime   Number `json:"end_time"`
}

type RawHighlight struct {
	StartTime         Number `json:"start_time"`
	EndTime           Number `json:"end_time"`
	Category          Text   `json:"category"`
	Reason            Text   `json:"reason"`
	TranscriptExcerpt Text   `json:"transcript_excerpt"`
}

// List decodes a JSON array element by element, skipping elements that do not
// decode. A lone value that decodes as T becomes a one-element list; anything
// else, null included, is an empty list.
type List[T any] []T

func (l *List[T]) UnmarshalJSON(b []byte) error {
	*l = nil
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || isNull(trimmed) {
		return nil
	}

	var items []json.RawMessage
	if trimmed[0] != '[' {
		items = []json.RawMessage{trimmed}
	} else if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil
	}

	out := make(List[T], 0, len(items))
	for _, item := range items {
		var v T
		if json.Unmarshal(item, &v) == nil {
			out = append(out, v)
		}
	}
	*l = out
	return nil
}

// Number is a leniently decoded number: JSON numbers, numeric strings and
// clock strings ("1:05", "00:01:05") are accepted, anything else is unset.
type Number struct {
	Value float64
	Set   bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	if isNull(b) {
		return nil
	}
	var f float64
	if json.Unmarshal(b, &f) == nil {
		*n = Number{Value: f, Set: true}
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		if v, ok := parseNumber(s); ok {
			*n = Number{Value: v, Set: true}
		}
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "s"))
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}

// Text is a leniently decoded string: numbers and booleans are stringified,
// null and structured values are unset.
type Text struct {
	Value string
	Set   bool
}

func (t *Text) UnmarshalJSON(b []byte) error {
	*t = Text{}
	if isNull(b) {
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		*t = Text{Value: s, Set: true}
		return nil
	}
	var f float64
	if json.Unmarshal(b, &f) == nil {
		*t = Text{Value: strconv.FormatFloat(f, 'f', -1, 64), Set: true}
		return nil
	}
	var v bool
	if json.Unmarshal(b, &v) == nil {
		*t = Text{Value: strconv.FormatBool(v), Set: true}
	}
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Set {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value)
}

func isNull(b []byte) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

// String returns the trimmed value, empty when unset.
func (t Text) String() string {
	return strings.TrimSpace(t.Value)
}
