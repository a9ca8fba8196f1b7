package pipeline

import (
	"sort"
	"strings"

	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/transcribe"
)

// SanitizeSegments turns a transcription result into segments the catalog
// accepts: ordered by start, non-empty, non-overlapping and indexed from 0.
// Overlaps are trimmed by moving the later start up to the previous end.
func SanitizeSegments(in []transcribe.Segment) []catalog.TranscriptSegment {
	sorted := make([]transcribe.Segment, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	out := make([]catalog.TranscriptSegment, 0, len(sorted))
	var prevEnd float64
	for _, s := range sorted {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		start := max(s.Start, prevEnd)
		if s.End <= start {
			continue
		}
		out = append(out, catalog.TranscriptSegment{
			Index:      len(out),
			StartTime:  start,
			EndTime:    s.End,
			Text:       text,
			Confidence: s.Confidence,
		})
		prevEnd = s.End
	}
	return out
}
