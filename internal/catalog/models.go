package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type Video struct {
	ID           string      `json:"id"`
	Filename     string      `json:"filename"`
	Path         string      `json:"path"`
	Duration     float64     `json:"duration"`
	FrameRate    float64     `json:"frame_rate,omitempty"`
	Language     string      `json:"language,omitempty"`
	Status       VideoStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TranscriptSegment is one timed unit of speech. Index is contiguous from 0
// within a video and ID is assigned by the store.
type TranscriptSegment struct {
	ID         int64    `json:"id"`
	VideoID    string   `json:"video_id"`
	Index      int      `json:"segment_index"`
	StartTime  float64  `json:"start_time"`
	EndTime    float64  `json:"end_time"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

const (
	AnalysisOriginModel    = "model"
	AnalysisOriginFallback = "fallback"
)

type Summary struct {
	VideoID   string    `json:"video_id"`
	Full      string    `json:"full"`
	Brief     string    `json:"brief"`
	Keywords  []string  `json:"keywords"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

type Chapter struct {
	ID        int64   `json:"id"`
	VideoID   string  `json:"video_id"`
	Index     int     `json:"chapter_index"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

const (
	HighlightStatusPending    = "pending"
	HighlightStatusGenerating = "generating"
	HighlightStatusCompleted  = "completed"
	HighlightStatusFailed     = "failed"
)

type HighlightSet struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	Status    string    `json:"status"`
	FilePath  string    `json:"file_path,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type HighlightClip struct {
	ID             int64   `json:"id"`
	HighlightSetID string  `json:"highlight_set_id"`
	Index          int     `json:"clip_index"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	Category       string  `json:"category"`
	Reason         string  `json:"reason"`
	Excerpt        string  `json:"excerpt"`
}

// Embedding ties one vector to one transcript segment.
type Embedding struct {
	SegmentID    int64           `json:"segment_id"`
	VideoID      string          `json:"video_id"`
	SegmentIndex int             `json:"segment_index"`
	Vector       pgvector.Vector `json:"-"`
}

// Analysis is the persisted fan-out of one analysis document.
type Analysis struct {
	Summary  Summary
	Chapters []Chapter
	Clips    []HighlightClip
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
}

func NewID() string {
	return uuid.NewString()
}
