package analysis

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultCharBudget caps the transcript text embedded in the user prompt.
const DefaultCharBudget = 12000

const truncationMarker = "[... transcript truncated ...]"

const systemPrompt = `You analyze video transcripts. Reply with a single JSON object and nothing else, using this schema:
{
  "summary": {"full": string, "brief": string},
  "chapters": [{"title": string, "summary": string, "start_time": number, "end_time": number}],
  "highlights": [{"start_time": number, "end_time": number, "category": string, "reason": string, "transcript_excerpt": string}],
  "search_index": [string]
}
All times are seconds from the start of the video.`

var userPrompt = template.Must(template.New("user").Parse(`Video duration: {{.Duration}} seconds.

Transcript:
{{.Transcript}}

Constraints:
- Chapters must cover the whole video: the first starts at 0 and the last ends at {{.Duration}}.
- Return exactly {{.Highlights}} highlights, each between {{.MinSeconds}} and {{.MaxSeconds}} seconds long.
- Highlight category must be one of: {{.Categories}}.
- search_index must contain {{.MinKeywords}} to {{.MaxKeywords}} keywords.
- brief is one sentence; full is one paragraph.
`))

type promptData struct {
	Duration    string
	Transcript  string
	Highlights  int
	MinSeconds  int
	MaxSeconds  int
	Categories  string
	MinKeywords int
	MaxKeywords int
}

// BuildPrompt renders the system and user messages for one transcript. The
// transcript is written as "[mm:ss - mm:ss] text" lines and cut at budget
// characters; a cut is marked so the model knows the text is incomplete.
func BuildPrompt(duration float64, segments []Segment, budget int) (system, user string, err error) {
	if budget <= 0 {
		budget = DefaultCharBudget
	}

	var b strings.Builder
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		line := fmt.Sprintf("[%s - %s] %s\n", clock(s.Start), clock(s.End), text)
		if b.Len()+len(line) > budget {
			b.WriteString(truncationMarker)
			b.WriteString("\n")
			break
		}
		b.WriteString(line)
	}

	var out strings.Builder
	err = userPrompt.Execute(&out, promptData{
		Duration:    fmt.Sprintf("%.1f", duration),
		Transcript:  strings.TrimRight(b.String(), "\n"),
		Highlights:  MaxHighlights,
		MinSeconds:  int(MinHighlightSeconds),
		MaxSeconds:  int(MaxHighlightSeconds),
		Categories:  strings.Join(Categories, ", "),
		MinKeywords: 5,
		MaxKeywords: 10,
	})
	if err != nil {
		return "", "", fmt.Errorf("render prompt: %w", err)
	}
	return systemPrompt, out.String(), nil
}

// clock formats seconds as mm:ss, with minutes allowed past 59.
func clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
