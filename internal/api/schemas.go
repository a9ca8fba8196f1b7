package api

import (
	"time"

	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/doctor"
	"github.com/heimdex/heimdex-insight/internal/queue"
	"github.com/heimdex/heimdex-insight/internal/search"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State string         `json:"state"`
	Queue queue.Snapshot `json:"queue"`
	// Dependencies is omitted until the doctor has probed at least once.
	Dependencies *DependenciesResponse `json:"dependencies,omitempty"`
}

type DependenciesResponse struct {
	AllOK       bool                     `json:"all_ok"`
	Checks      map[string]doctor.Status `json:"checks"`
	LastProbeAt string                   `json:"last_probe_at,omitempty"`
}

type RegisterVideoRequest struct {
	Path    string `json:"path"`
	Process bool   `json:"process,omitempty"`
}

type VideoResponse struct {
	ID           string  `json:"id"`
	Filename     string  `json:"filename"`
	Path         string  `json:"path"`
	Duration     float64 `json:"duration"`
	FrameRate    float64 `json:"frame_rate,omitempty"`
	Language     string  `json:"language,omitempty"`
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
	// QueuePosition is 0 while processing, n while n-th in line.
	QueuePosition *int   `json:"queue_position,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

type EnqueueResponse struct {
	VideoID  string `json:"video_id"`
	Position int    `json:"position"`
}

type TranscriptResponse struct {
	VideoID  string                      `json:"video_id"`
	Language string                      `json:"language,omitempty"`
	Segments []catalog.TranscriptSegment `json:"segments"`
}

type HighlightSetResponse struct {
	ID        string                  `json:"id"`
	Status    string                  `json:"status"`
	FilePath  string                  `json:"file_path,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Rendering bool                    `json:"rendering"`
	Clips     []catalog.HighlightClip `json:"clips"`
	UpdatedAt string                  `json:"updated_at"`
}

type AnalysisResponse struct {
	VideoID    string                `json:"video_id"`
	Origin     string                `json:"origin"`
	Summary    SummaryResponse       `json:"summary"`
	Keywords   []string              `json:"keywords"`
	Chapters   []catalog.Chapter     `json:"chapters"`
	Highlights *HighlightSetResponse `json:"highlights,omitempty"`
}

type SummaryResponse struct {
	Full  string `json:"full"`
	Brief string `json:"brief"`
}

type RegenerateResponse struct {
	HighlightSetID string `json:"highlight_set_id"`
	Status         string `json:"status"`
}

type SearchResponse struct {
	Query   string       `json:"query"`
	Results []search.Hit `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func VideoToResponse(v *catalog.Video) VideoResponse {
	return VideoResponse{
		ID:           v.ID,
		Filename:     v.Filename,
		Path:         v.Path,
		Duration:     v.Duration,
		FrameRate:    v.FrameRate,
		Language:     v.Language,
		Status:       string(v.Status),
		ErrorMessage: v.ErrorMessage,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    v.UpdatedAt.Format(time.RFC3339),
	}
}

func HighlightSetToResponse(s *catalog.HighlightSet, clips []catalog.HighlightClip, rendering bool) *HighlightSetResponse {
	if clips == nil {
		clips = []catalog.HighlightClip{}
	}
	return &HighlightSetResponse{
		ID:        s.ID,
		Status:    s.Status,
		FilePath:  s.FilePath,
		Error:     s.Error,
		Rendering: rendering,
		Clips:     clips,
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}
