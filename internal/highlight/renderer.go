package highlight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/logging"
	"github.com/heimdex/heimdex-insight/internal/metrics"
)

var (
	ErrRenderInProgress = errors.New("highlight render already in progress")
	ErrSetNotFound      = errors.New("highlight set not found")
)

// Store is the part of the catalog the renderer reads and writes.
type Store interface {
	GetVideo(ctx context.Context, id string) (*catalog.Video, error)
	GetHighlightSet(ctx context.Context, id string) (*catalog.HighlightSet, error)
	ListHighlightClips(ctx context.Context, setID string) ([]catalog.HighlightClip, error)
	UpdateHighlightSet(ctx context.Context, id, status, filePath, errorMsg string) error
}

// Renderer drives a HighlightSet through generating to completed or failed.
// At most one render per set runs at a time.
type Renderer struct {
	store     Store
	assembler *Assembler
	metrics   *metrics.Metrics
	logger    *slog.Logger

	inflight sync.Map
	wg       sync.WaitGroup
}

func NewRenderer(store Store, assembler *Assembler, m *metrics.Metrics, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		store:     store,
		assembler: assembler,
		metrics:   m,
		logger:    logging.WithComponent(logger, "highlight"),
	}
}

// Render renders the set and waits for the result.
func (r *Renderer) Render(ctx context.Context, setID string) error {
	if !r.acquire(setID) {
		return ErrRenderInProgress
	}
	defer r.release(setID)
	return r.render(ctx, setID)
}

// RenderAsync claims the set and renders it in the background. It returns
// ErrRenderInProgress without starting anything when the set is busy.
func (r *Renderer) RenderAsync(ctx context.Context, setID string) error {
	if !r.acquire(setID) {
		return ErrRenderInProgress
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(setID)
		if err := r.render(ctx, setID); err != nil {
			r.logger.Error("highlight render failed", "highlight_set_id", setID, "error", err)
		}
	}()
	return nil
}

// InProgress reports whether a render of the set is running.
func (r *Renderer) InProgress(setID string) bool {
	_, ok := r.inflight.Load(setID)
	return ok
}

// Wait blocks until background renders have finished.
func (r *Renderer) Wait() {
	r.wg.Wait()
}

func (r *Renderer) acquire(setID string) bool {
	_, loaded := r.inflight.LoadOrStore(setID, struct{}{})
	return !loaded
}

func (r *Renderer) release(setID string) {
	r.inflight.Delete(setID)
}

func (r *Renderer) render(ctx context.Context, setID string) error {
	logger := logging.WithHighlightSetID(r.logger, setID)

	set, err := r.store.GetHighlightSet(ctx, setID)
	if err != nil {
		return fmt.Errorf("load highlight set: %w", err)
	}
	if set == nil {
		return ErrSetNotFound
	}

	video, err := r.store.GetVideo(ctx, set.VideoID)
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}
	if video == nil {
		return r.fail(ctx, set, fmt.Errorf("video %s not found", set.VideoID))
	}

	rows, err := r.store.ListHighlightClips(ctx, setID)
	if err != nil {
		return fmt.Errorf("load highlight clips: %w", err)
	}

	// The previous reel stays on record until a new one replaces it.
	if err := r.store.UpdateHighlightSet(ctx, setID, catalog.HighlightStatusGenerating, set.FilePath, ""); err != nil {
		return fmt.Errorf("mark generating: %w", err)
	}
	logger.Info("rendering highlight reel", "clips", len(rows))

	clips := make([]Clip, len(rows))
	for i, c := range rows {
		clips[i] = Clip{Start: c.StartTime, End: c.EndTime}
	}

	path, err := r.assembler.Assemble(ctx, video.Path, clips, setID)
	if err != nil {
		return r.fail(ctx, set, err)
	}

	if err := r.store.UpdateHighlightSet(ctx, setID, catalog.HighlightStatusCompleted, path, ""); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	r.metrics.HighlightRender(catalog.HighlightStatusCompleted)
	logger.Info("highlight reel ready", "path", logging.SanitizePath(path))
	return nil
}

func (r *Renderer) fail(ctx context.Context, set *catalog.HighlightSet, cause error) error {
	r.metrics.HighlightRender(catalog.HighlightStatusFailed)
	if err := r.store.UpdateHighlightSet(ctx, set.ID, catalog.HighlightStatusFailed, set.FilePath, cause.Error()); err != nil {
		r.logger.Error("failed to mark highlight set failed", "highlight_set_id", set.ID, "error", err)
	}
	return cause
}
