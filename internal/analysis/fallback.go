package analysis

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	fallbackReason     = "Selected from transcript statistics"
	fallbackKeywords   = 10
	minKeywordLetters  = 5
	openingBonus       = 20
	closingBonus       = 10
	bonusSegmentWindow = 3
)

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "against": true, "because": true,
	"before": true, "being": true, "below": true, "between": true, "could": true,
	"doing": true, "during": true, "every": true, "going": true, "gonna": true,
	"other": true, "really": true, "should": true, "something": true, "their": true,
	"there": true, "these": true, "thing": true, "things": true, "think": true,
	"those": true, "through": true, "under": true, "until": true, "where": true,
	"which": true, "while": true, "would": true, "yeah": true, "actually": true,
	"basically": true, "right": true, "people": true, "little": true, "kind": true,
}

// Fallback builds a Document from the transcript alone. It is used whenever the
// model is unavailable or its response cannot be recovered, so it never fails.
func Fallback(duration float64, segments []Segment) Document {
	duration = math.Max(0, duration)

	text := joinText(segments)
	doc := Document{
		Summary: Summary{
			Full:  truncateRunes(text, maxFullRunes),
			Brief: truncateRunes(text, maxBriefRunes),
		},
		Chapters:    splitChapters(duration, segments),
		Highlights:  fallbackHighlights(duration, segments),
		SearchIndex: frequentWords(segments, fallbackKeywords),
	}
	if doc.Summary.Full == "" {
		doc.Summary.Full = PlaceholderFull
	}
	if doc.Summary.Brief == "" {
		doc.Summary.Brief = PlaceholderBrief
	}
	if doc.SearchIndex == nil {
		doc.SearchIndex = []string{}
	}
	return doc
}

func joinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// fallbackHighlights scores segments by text length, favouring the opening and
// closing of the video, and takes up to three non-overlapping windows.
func fallbackHighlights(duration float64, segments []Segment) []Highlight {
	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, 0, len(segments))
	for i, s := range segments {
		score := utf8.RuneCountInString(strings.TrimSpace(s.Text))
		if score == 0 {
			continue
		}
		if i < bonusSegmentWindow {
			score += openingBonus
		}
		if i >= len(segments)-bonusSegmentWindow {
			score += closingBonus
		}
		ranked = append(ranked, scored{idx: i, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]Highlight, 0, MaxHighlights)
	for _, r := range ranked {
		seg := segments[r.idx]
		start, end := windowAround(seg, duration)
		if end <= start || overlapsAny(out, start, end) {
			continue
		}
		out = append(out, Highlight{
			StartTime:         start,
			EndTime:           end,
			Category:          "key_point",
			Reason:            fallbackReason,
			TranscriptExcerpt: excerptFor(segments, start, end),
		})
		if len(out) == MaxHighlights {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func overlapsAny(hs []Highlight, start, end float64) bool {
	for _, h := range hs {
		if start < h.EndTime && h.StartTime < end {
			return true
		}
	}
	return false
}

// frequentWords returns the n most frequent words of at least five letters,
// ties broken by first appearance.
func frequentWords(segments []Segment, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, s := range segments {
		words := strings.FieldsFunc(strings.ToLower(s.Text), func(r rune) bool {
			return !unicode.IsLetter(r) && r != '\''
		})
		for _, w := range words {
			w = strings.Trim(w, "'")
			if utf8.RuneCountInString(w) < minKeywordLetters || stopwords[w] {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}
