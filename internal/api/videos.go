package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/highlight"
	"github.com/heimdex/heimdex-insight/internal/queue"
)

// loadVideo resolves the {id} route parameter, writing the error response
// itself when the video cannot be returned.
func loadVideo(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *catalog.Video {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "video id required", "BAD_REQUEST")
		return nil
	}

	video, err := cfg.CatalogService.GetVideo(r.Context(), id)
	if err != nil {
		cfg.Logger.Error("failed to load video", "video_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "failed to load video", "INTERNAL_ERROR")
		return nil
	}
	if video == nil {
		WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
		return nil
	}
	return video
}

func withPosition(v *catalog.Video, snap queue.Snapshot) VideoResponse {
	resp := VideoToResponse(v)
	if pos := snap.Position(v.ID); pos >= 0 {
		resp.QueuePosition = &pos
	}
	return resp
}

func enqueue(cfg ServerConfig, w http.ResponseWriter, videoID string) (int, bool) {
	pos, err := cfg.Queue.Enqueue(videoID)
	if err != nil {
		if errors.Is(err, queue.ErrStopped) {
			WriteError(w, http.StatusServiceUnavailable, "processing queue is stopped", "UNAVAILABLE")
			return 0, false
		}
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return 0, false
	}
	return pos, true
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := cfg.CatalogService.ListVideos(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		snap := cfg.Queue.Status()
		resp := VideosResponse{Videos: make([]VideoResponse, len(videos))}
		for i, v := range videos {
			resp.Videos[i] = withPosition(v, snap)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func registerVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		video, err := cfg.CatalogService.RegisterVideo(r.Context(), req.Path)
		if err != nil {
			if errors.Is(err, catalog.ErrUnsupportedMedia) {
				WriteError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_MEDIA")
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		resp := VideoToResponse(video)
		if req.Process {
			pos, ok := enqueue(cfg, w, video.ID)
			if !ok {
				return
			}
			resp.QueuePosition = &pos
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}

func getVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video := loadVideo(cfg, w, r)
		if video == nil {
			return
		}
		WriteJSON(w, http.StatusOK, withPosition(video, cfg.Queue.Status()))
	}
}

func deleteVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video := loadVideo(cfg, w, r)
		if video == nil {
			return
		}

		if video.Status.InFlight() || cfg.Queue.Status().Position(video.ID) >= 0 {
			WriteError(w, http.StatusConflict, "video is queued or being processed", "CONFLICT")
			return
		}
		if set, _ := cfg.Repository.GetHighlightSetByVideo(r.Context(), video.ID); set != nil && cfg.Renderer.InProgress(set.ID) {
			WriteError(w, http.StatusConflict, "highlight reel is being rendered", "CONFLICT")
			return
		}

		if err := cfg.CatalogService.RemoveVideo(r.Context(), video.ID); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func processVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video := loadVideo(cfg, w, r)
		if video == nil {
			return
		}
		if video.Status.InFlight() {
			WriteError(w, http.StatusConflict, "video is already being processed", "CONFLICT")
			return
		}
		// Reprocessing drops the highlight set a running render writes to.
		if set, _ := cfg.Repository.GetHighlightSetByVideo(r.Context(), video.ID); set != nil && cfg.Renderer.InProgress(set.ID) {
			WriteError(w, http.StatusConflict, "highlight reel is being rendered", "RENDER_IN_PROGRESS")
			return
		}

		pos, ok := enqueue(cfg, w, video.ID)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusAccepted, EnqueueResponse{VideoID: video.ID, Position: pos})
	}
}

func transcriptHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video := loadVideo(cfg, w, r)
		if video == nil {
			return
		}

		segments, err := cfg.Repository.ListSegments(r.Context(), video.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load transcript", "INTERNAL_ERROR")
			return
		}
		if segments == nil {
			segments = []catalog.TranscriptSegment{}
		}
		WriteJSON(w, http.StatusOK, TranscriptResponse{
			VideoID:  video.ID,
			Language: video.Language,
			Segments: segments,
		})
	}
}

func analysisHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video := loadVideo(cfg, w, r)
		if video == nil {
			return
		}
		ctx := r.Context()

		summary, err := cfg.Repository.GetSummary(ctx, video.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load analysis", "INTERNAL_ERROR")
			return
		}
		if summary == nil {
			WriteError(w, http.StatusNotFound, "analysis not available for video in status "+string(video.Status), "NOT_FOUND")
			return
		}

		chapters, err := cfg.Repository.ListChapters(ctx, video.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load chapters", "INTERNAL_ERROR")
			return
		}
		if chapters == nil {
			chapters = []catalog.Chapter{}
		}
		keywords := summary.Keywords
		if keywords == nil {
			keywords = []string{}
		}

		resp := AnalysisResponse{
			VideoID:  video.ID,
			Origin:   summary.Origin,
			Summary:  SummaryResponse{Full: summary.Full, Brief: summary.Brief},
			Keywords: keywords,
			Chapters: chapters,
		}

		set, clips, err := loadHighlights(ctx, cfg, video.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load highlights", "INTERNAL_ERROR")
			return
		}
		if set != nil {
			resp.Highlights = HighlightSetToResponse(set, clips, cfg.Renderer.InProgress(set.ID))
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func loadHighlights(ctx context.Context, cfg ServerConfig, videoID string) (*catalog.HighlightSet, []catalog.HighlightClip, error) {
	set, err := cfg.Repository.GetHighlightSetByVideo(ctx, videoID)
	if err != nil || set == nil {
		return nil, nil, err
	}
	clips, err := cfg.Repository.ListHighlightClips(ctx, set.ID)
	if err != nil {
		return nil, nil, err
	}
	return set, clips, nil
}

func regenerateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video := loadVideo(cfg, w, r)
		if video == nil {
			return
		}
		if video.Status != catalog.StatusCompleted {
			WriteError(w, http.StatusConflict, "video is not completed", "CONFLICT")
			return
		}

		set, clips, err := loadHighlights(r.Context(), cfg, video.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load highlights", "INTERNAL_ERROR")
			return
		}
		if set == nil {
			WriteError(w, http.StatusNotFound, "video has no highlight set", "NOT_FOUND")
			return
		}
		if len(clips) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "highlight set has no clips", "NO_CLIPS")
			return
		}

		// The render outlives this request.
		err = cfg.Renderer.RenderAsync(context.WithoutCancel(r.Context()), set.ID)
		if errors.Is(err, highlight.ErrRenderInProgress) {
			WriteError(w, http.StatusConflict, "highlight reel is already being rendered", "RENDER_IN_PROGRESS")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, RegenerateResponse{
			HighlightSetID: set.ID,
			Status:         catalog.HighlightStatusGenerating,
		})
	}
}

func reelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video := loadVideo(cfg, w, r)
		if video == nil {
			return
		}

		set, err := cfg.Repository.GetHighlightSetByVideo(r.Context(), video.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load highlights", "INTERNAL_ERROR")
			return
		}
		if set == nil || set.FilePath == "" {
			WriteError(w, http.StatusNotFound, "highlight reel has not been rendered", "NOT_FOUND")
			return
		}

		if err := cfg.Playback.Serve(w, r, set.FilePath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				WriteError(w, http.StatusNotFound, "highlight reel file is missing", "NOT_FOUND")
				return
			}
			cfg.Logger.Error("failed to serve reel", "video_id", video.ID, "error", err, "request_id", requestID(r))
			WriteError(w, http.StatusInternalServerError, "failed to serve reel", "INTERNAL_ERROR")
		}
	}
}
