// Package export writes highlight sets as CMX3600 edit decision lists so a
// reel can be rebuilt in an editing tool from the original footage.
package export

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/heimdex/heimdex-insight/internal/catalog"
)

const DefaultFrameRate = 30.0

// HighlightEvents turns the clips of a highlight set into EDL events against
// the video's source file, in timeline order.
func HighlightEvents(video *catalog.Video, clips []catalog.HighlightClip) []Event {
	sorted := make([]catalog.HighlightClip, len(clips))
	copy(sorted, clips)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	events := make([]Event, 0, len(sorted))
	for i, c := range sorted {
		comment := c.Category
		if c.Reason != "" {
			comment += ": " + c.Reason
		}
		events = append(events, Event{
			Name:      SanitizeName(fmt.Sprintf("Highlight %d %s", i+1, c.Category), 160),
			MediaPath: video.Path,
			Start:     c.StartTime,
			End:       c.EndTime,
			Comment:   SanitizeComment(comment, 200),
		})
	}
	return events
}

// FileName is the EDL file name for a video, derived from its filename.
func FileName(video *catalog.Video) string {
	base := strings.TrimSuffix(video.Filename, filepath.Ext(video.Filename))
	name := SanitizeName(base, 120)
	if name == "" {
		name = video.ID
	}
	return name + "_highlights.edl"
}

// GenerateEDL renders events back to back on the record timeline. A frame
// rate of 0 falls back to 30fps.
func GenerateEDL(events []Event, title string, frameRate float64) string {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	fps := int(math.Round(frameRate))

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordFrames := 0
	for i, ev := range events {
		in := toFrames(ev.Start, fps)
		out := toFrames(ev.End, fps)
		length := out - in

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "B",
				timecode(in, fps), timecode(out, fps),
				timecode(recordFrames, fps), timecode(recordFrames+length, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.Name),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)
		if ev.Comment != "" {
			lines = append(lines, fmt.Sprintf("* COMMENT:  %s", ev.Comment))
		}

		recordFrames += length
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func toFrames(seconds float64, fps int) int {
	return int(math.Round(seconds * float64(fps)))
}

func timecode(totalFrames, fps int) string {
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
