package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// Normalize turns a model response into a validated Document. When nothing can
// be extracted it returns the fallback document instead; the error is then
// ErrNoCandidate and the document is still usable.
func Normalize(response string, duration float64, segments []Segment) (Document, Origin, error) {
	raw, err := Extract(response)
	if err != nil {
		return Fallback(duration, segments), OriginFallback, err
	}
	return Validate(raw, duration, segments), OriginModel, nil
}

// Validate applies every repair rule to a decoded response. It is idempotent:
// validating the RawDocument form of its own output yields the same Document.
func Validate(raw *RawDocument, duration float64, segments []Segment) Document {
	duration = math.Max(0, duration)

	doc := Document{
		Summary:     validateSummary(raw.Summary),
		Chapters:    validateChapters(raw.Chapters, duration, segments),
		Highlights:  validateHighlights(raw.Highlights, duration, segments),
		SearchIndex: validateKeywords(append(append(List[Text]{}, raw.SearchIndex...), raw.Keywords...)),
	}

	if len(doc.Highlights) == 0 && len(segments) > 0 {
		doc.Highlights = []Highlight{synthesizeHighlight(segments, duration)}
	}
	return doc
}

func validateSummary(s RawSummary) Summary {
	out := Summary{Full: s.Full.String(), Brief: s.Brief.String()}
	if out.Full == "" {
		out.Full = PlaceholderFull
	}
	if out.Brief == "" {
		out.Brief = PlaceholderBrief
	}
	return out
}

func validateHighlights(raw List[RawHighlight], duration float64, segments []Segment) []Highlight {
	out := make([]Highlight, 0, MaxHighlights)
	for _, r := range raw {
		start, end := fitHighlight(r.StartTime.Value, r.EndTime.Value, duration)
		if end-start < DropHighlightSeconds {
			continue
		}

		h := Highlight{
			StartTime:         start,
			EndTime:           end,
			Category:          normalizeCategory(r.Category.String()),
			Reason:            r.Reason.String(),
			TranscriptExcerpt: truncateRunes(r.TranscriptExcerpt.String(), maxExcerptRunes),
		}
		if h.Reason == "" {
			h.Reason = defaultReason
		}
		if h.TranscriptExcerpt == "" {
			h.TranscriptExcerpt = excerptFor(segments, start, end)
		}

		out = append(out, h)
		if len(out) == MaxHighlights {
			break
		}
	}
	return out
}

// fitHighlight clamps a requested range into the video and into the allowed
// highlight length. Near the end of the video the start moves back rather than
// letting the highlight shrink below the minimum. The arithmetic runs on whole
// milliseconds.
func fitHighlight(start, end, duration float64) (float64, float64) {
	durMs := toMillis(duration)
	s := toMillis(clamp(start, 0, duration))
	e := toMillis(clamp(end, 0, duration))
	if e <= s {
		e = s + toMillis(ForcedSpanSeconds)
	}

	minMs, maxMs := toMillis(MinHighlightSeconds), toMillis(MaxHighlightSeconds)
	switch d := e - s; {
	case d < minMs:
		e = s + minMs
	case d > maxMs:
		e = s + maxMs
	}

	if e > durMs {
		e = durMs
		if e-s < minMs {
			s = max(0, e-minMs)
		}
	}
	return fromMillis(s, e, duration)
}

func toMillis(v float64) int64 {
	return int64(math.Round(v * 1000))
}

// fromMillis converts back to seconds. Decimal milliseconds are not exact in
// binary, so end steps down by ulps until the span is within the maximum.
func fromMillis(s, e int64, duration float64) (float64, float64) {
	start := float64(s) / 1000
	end := math.Min(float64(e)/1000, duration)
	for end-start > MaxHighlightSeconds {
		end = math.Nextafter(end, start)
	}
	return start, end
}

// synthesizeHighlight builds one highlight around the segment with the most text.
func synthesizeHighlight(segments []Segment, duration float64) Highlight {
	best := 0
	for i, s := range segments {
		if utf8.RuneCountInString(s.Text) > utf8.RuneCountInString(segments[best].Text) {
			best = i
		}
	}
	seg := segments[best]
	start, end := windowAround(seg, duration)
	return Highlight{
		StartTime:         start,
		EndTime:           end,
		Category:          "key_point",
		Reason:            "Longest passage in the transcript",
		TranscriptExcerpt: truncateRunes(strings.TrimSpace(seg.Text), maxExcerptRunes),
	}
}

// windowAround returns the padded window used for synthesized highlights.
func windowAround(seg Segment, duration float64) (float64, float64) {
	start := clamp(seg.Start-leadInSeconds, 0, duration)
	end := clamp(seg.Start+leadOutSeconds, 0, duration)
	if end-start < MinHighlightSeconds {
		start = math.Max(0, end-MinHighlightSeconds)
	}
	return start, end
}

func validateChapters(raw List[RawChapter], duration float64, segments []Segment) []Chapter {
	chapters := make([]Chapter, 0, len(raw))
	for i, r := range raw {
		c := Chapter{
			Title:     r.Title.String(),
			Summary:   truncateRunes(r.Summary.String(), maxChapterRunes),
			StartTime: clamp(r.StartTime.Value, 0, duration),
			EndTime:   clamp(r.EndTime.Value, 0, duration),
		}
		if c.Title == "" {
			c.Title = fmt.Sprintf("Chapter %d", i+1)
		}
		chapters = append(chapters, c)
	}

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].StartTime < chapters[j].StartTime
	})

	// A chapter without a usable end runs until the next one starts.
	for i := range chapters {
		if chapters[i].EndTime > chapters[i].StartTime {
			continue
		}
		if i+1 < len(chapters) && chapters[i+1].StartTime > chapters[i].StartTime {
			chapters[i].EndTime = chapters[i+1].StartTime
		} else {
			chapters[i].EndTime = duration
		}
	}

	kept := chapters[:0]
	for _, c := range chapters {
		if c.EndTime > c.StartTime {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return splitChapters(duration, segments)
	}

	kept[0].StartTime = 0
	kept[len(kept)-1].EndTime = duration
	return kept
}

// splitChapters divides the video into equal parts, or one chapter for short videos.
func splitChapters(duration float64, segments []Segment) []Chapter {
	if duration < shortVideoSeconds {
		return []Chapter{{
			Title:     "Full Video",
			Summary:   textBetween(segments, 0, duration, maxChapterRunes),
			StartTime: 0,
			EndTime:   duration,
		}}
	}

	part := duration / chapterParts
	chapters := make([]Chapter, chapterParts)
	for i := range chapters {
		start := float64(i) * part
		end := float64(i+1) * part
		if i == chapterParts-1 {
			end = duration
		}
		chapters[i] = Chapter{
			Title:     fmt.Sprintf("Part %d", i+1),
			Summary:   textBetween(segments, start, end, maxChapterRunes),
			StartTime: start,
			EndTime:   end,
		}
	}
	return chapters
}

func validateKeywords(raw List[Text]) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		k := t.String()
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	c = strings.NewReplacer(" ", "_", "-", "_").Replace(c)
	if categorySet[c] {
		return c
	}
	return CategoryOther
}

// excerptFor joins the text of segments overlapping [start, end).
func excerptFor(segments []Segment, start, end float64) string {
	return textBetween(segments, start, end, maxExcerptRunes)
}

func textBetween(segments []Segment, start, end float64, limit int) string {
	var parts []string
	for _, s := range segments {
		if s.End <= start || s.Start >= end {
			continue
		}
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return truncateRunes(strings.Join(parts, " "), limit)
}

// truncateRunes cuts s to at most limit runes, ending in an ellipsis when cut.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
