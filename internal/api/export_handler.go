package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/export"
)

// buildEDL renders the highlight EDL for the {id} video, writing the error
// response itself on failure.
func buildEDL(cfg ServerConfig, w http.ResponseWriter, r *http.Request, title string) (*catalog.Video, string, int, bool) {
	video := loadVideo(cfg, w, r)
	if video == nil {
		return nil, "", 0, false
	}

	set, clips, err := loadHighlights(r.Context(), cfg, video.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load highlights", "INTERNAL_ERROR")
		return nil, "", 0, false
	}
	if set == nil {
		WriteError(w, http.StatusNotFound, "video has no highlight set", "NOT_FOUND")
		return nil, "", 0, false
	}
	if len(clips) == 0 {
		WriteError(w, http.StatusUnprocessableEntity, "highlight set has no clips", "NO_CLIPS")
		return nil, "", 0, false
	}

	title = export.SanitizeName(title, 120)
	if title == "" {
		title = export.SanitizeName(video.Filename+" highlights", 120)
	}
	edl := export.GenerateEDL(export.HighlightEvents(video, clips), title, video.FrameRate)
	return video, edl, len(clips), true
}

func edlDownloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, edl, _, ok := buildEDL(cfg, w, r, r.URL.Query().Get("title"))
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(video)))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

func edlExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		video, edl, count, ok := buildEDL(cfg, w, r, req.Title)
		if !ok {
			return
		}

		outputPath := filepath.Join(req.OutputDir, export.FileName(video))
		if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
			cfg.Logger.Error("failed to write EDL", "path", outputPath, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		frameRate := video.FrameRate
		if frameRate <= 0 {
			frameRate = export.DefaultFrameRate
		}
		WriteJSON(w, http.StatusOK, export.Response{
			Status:     "ok",
			Format:     "edl",
			OutputPath: outputPath,
			ClipCount:  count,
			FrameRate:  frameRate,
		})
	}
}
