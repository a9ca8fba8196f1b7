// Package pipeline drives one video from uploaded to completed: audio
// extraction, transcription, analysis and embeddings, then the highlight reel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-insight/internal/analysis"
	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/embedding"
	"github.com/heimdex/heimdex-insight/internal/logging"
	"github.com/heimdex/heimdex-insight/internal/media"
	"github.com/heimdex/heimdex-insight/internal/metrics"
	"github.com/heimdex/heimdex-insight/internal/transcribe"
)

var (
	ErrVideoNotFound = errors.New("video not found")
	ErrInFlight      = errors.New("video is already being processed")
)

// Store is the part of the catalog the orchestrator writes.
type Store interface {
	GetVideo(ctx context.Context, id string) (*catalog.Video, error)
	TransitionVideo(ctx context.Context, id string, from, to catalog.VideoStatus, errorMsg string) error
	ResetVideo(ctx context.Context, id string) error
	GetHighlightSetByVideo(ctx context.Context, videoID string) (*catalog.HighlightSet, error)
	UpdateVideoMedia(ctx context.Context, id string, duration, frameRate float64) error
	UpdateVideoLanguage(ctx context.Context, id, language string) error
	SaveTranscript(ctx context.Context, videoID string, segments []catalog.TranscriptSegment) ([]catalog.TranscriptSegment, error)
	SaveAnalysis(ctx context.Context, videoID string, a *catalog.Analysis) (*catalog.HighlightSet, error)
	SaveEmbeddings(ctx context.Context, videoID string, embeddings []catalog.Embedding) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcribe.Result, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, duration float64, segments []analysis.Segment) analysis.Result
}

type Embedder interface {
	Embed(ctx context.Context, items []embedding.Item) (*embedding.Result, error)
}

type Renderer interface {
	Render(ctx context.Context, setID string) error
}

type Deps struct {
	Store       Store
	Media       media.Toolchain
	Transcriber Transcriber
	Analyzer    Analyzer
	Embedder    Embedder
	// Renderer is optional; without it highlight sets stay pending.
	Renderer    Renderer
	ScratchRoot string
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type Orchestrator struct {
	store       Store
	media       media.Toolchain
	transcriber Transcriber
	analyzer    Analyzer
	embedder    Embedder
	renderer    Renderer
	scratchRoot string
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scratch := d.ScratchRoot
	if scratch == "" {
		scratch = os.TempDir()
	}
	return &Orchestrator{
		store:       d.Store,
		media:       d.Media,
		transcriber: d.Transcriber,
		analyzer:    d.Analyzer,
		embedder:    d.Embedder,
		renderer:    d.Renderer,
		scratchRoot: scratch,
		metrics:     d.Metrics,
		logger:      logging.WithComponent(logger, "pipeline"),
	}
}

// Process runs the whole pipeline for one video. A fatal error is written to
// the video as failed and also returned. Rendering the highlight reel happens
// after the video is completed and its failure never fails the video.
func (o *Orchestrator) Process(ctx context.Context, videoID string) error {
	logger := logging.WithVideoID(o.logger, videoID)
	start := time.Now()

	video, err := o.store.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}
	if video == nil {
		return fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	set, err := o.run(ctx, video, logger)
	if err != nil {
		if !errors.Is(err, ErrInFlight) {
			// Record the failure even when ctx was cancelled by shutdown.
			o.MarkFailed(context.WithoutCancel(ctx), videoID, err)
		}
		return err
	}

	o.metrics.VideoProcessed(string(catalog.StatusCompleted))
	logger.Info("video processed", "elapsed", time.Since(start).Round(time.Millisecond))

	if o.renderer != nil && set != nil {
		if err := o.renderer.Render(ctx, set.ID); err != nil {
			logger.Warn("highlight render failed", "highlight_set_id", set.ID, "error", err)
		}
	}
	return nil
}

// MarkFailed moves the video from whatever non-terminal status it is in to
// failed with the error text. Terminal videos are left alone.
func (o *Orchestrator) MarkFailed(ctx context.Context, videoID string, cause error) {
	logger := logging.WithVideoID(o.logger, videoID)

	video, err := o.store.GetVideo(ctx, videoID)
	if err != nil || video == nil {
		logger.Error("cannot mark video failed", "cause", cause, "error", err)
		return
	}
	if video.Status.IsTerminal() {
		logger.Warn("video already terminal, failure not recorded", "status", video.Status, "cause", cause)
		return
	}

	if err := o.store.TransitionVideo(ctx, videoID, video.Status, catalog.StatusFailed, cause.Error()); err != nil {
		logger.Error("failed to mark video failed", "cause", cause, "error", err)
		return
	}
	o.metrics.VideoProcessed(string(catalog.StatusFailed))
	logger.Error("video processing failed", "stage", video.Status, "error", cause)
}

// tracker advances the status of one video and times each stage.
type tracker struct {
	o       *Orchestrator
	videoID string
	status  catalog.VideoStatus
	since   time.Time
}

func (t *tracker) advance(ctx context.Context, to catalog.VideoStatus) error {
	if err := t.o.store.TransitionVideo(ctx, t.videoID, t.status, to, ""); err != nil {
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	now := time.Now()
	if t.status != catalog.StatusUploaded {
		t.o.metrics.ObserveStage(string(t.status), now.Sub(t.since))
	}
	t.status, t.since = to, now
	return nil
}

func (o *Orchestrator) run(ctx context.Context, video *catalog.Video, logger *slog.Logger) (*catalog.HighlightSet, error) {
	switch {
	case video.Status.InFlight():
		return nil, fmt.Errorf("%w: %s is %s", ErrInFlight, video.ID, video.Status)
	case video.Status.IsTerminal():
		logger.Info("re-processing video", "previous_status", video.Status)
		o.removeReel(ctx, video.ID, logger)
		if err := o.store.ResetVideo(ctx, video.ID); err != nil {
			return nil, fmt.Errorf("reset video: %w", err)
		}
	}

	t := &tracker{o: o, videoID: video.ID, status: catalog.StatusUploaded, since: time.Now()}
	if err := t.advance(ctx, catalog.StatusProcessing); err != nil {
		return nil, err
	}

	if _, err := os.Stat(video.Path); err != nil {
		return nil, fmt.Errorf("source video not found: %w", err)
	}

	if err := os.MkdirAll(o.scratchRoot, 0755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	scratch, err := os.MkdirTemp(o.scratchRoot, "video-"+video.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	var duration, frameRate float64
	if probe, err := o.media.Probe(ctx, video.Path); err != nil {
		logger.Warn("probe failed, duration will come from the transcript", "error", err)
	} else {
		duration, frameRate = probe.Duration, probe.FrameRate
	}

	audioPath := filepath.Join(scratch, "audio.wav")
	if err := o.media.ExtractAudio(ctx, video.Path, audioPath); err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}

	if err := t.advance(ctx, catalog.StatusTranscribing); err != nil {
		return nil, err
	}
	transcript, err := o.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	segments := SanitizeSegments(transcript.Segments)
	if duration <= 0 {
		duration = transcriptDuration(transcript, segments)
	}
	if err := o.store.UpdateVideoMedia(ctx, video.ID, duration, frameRate); err != nil {
		return nil, fmt.Errorf("save media info: %w", err)
	}
	saved, err := o.store.SaveTranscript(ctx, video.ID, segments)
	if err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}
	if transcript.Language != "" {
		if err := o.store.UpdateVideoLanguage(ctx, video.ID, transcript.Language); err != nil {
			return nil, fmt.Errorf("save language: %w", err)
		}
	}
	logger.Info("transcript saved", "segments", len(saved), "duration", duration, "language", transcript.Language)

	if err := t.advance(ctx, catalog.StatusAnalyzing); err != nil {
		return nil, err
	}

	var (
		result  analysis.Result
		vectors *embedding.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result = o.analyzer.Analyze(gctx, duration, toAnalysisSegments(saved))
		return nil
	})
	g.Go(func() error {
		var err error
		vectors, err = o.embedder.Embed(gctx, toEmbeddingItems(saved))
		if err != nil {
			return fmt.Errorf("embed segments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if result.Degraded() {
		logger.Warn("analysis used fallback", "reason", result.Err)
	}
	o.metrics.AnalysisOrigin(string(result.Origin))

	set, err := o.store.SaveAnalysis(ctx, video.ID, toCatalogAnalysis(result))
	if err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}

	if err := t.advance(ctx, catalog.StatusEmbedding); err != nil {
		return nil, err
	}
	o.metrics.EmbeddingsDropped(vectors.Dropped)
	if err := o.store.SaveEmbeddings(ctx, video.ID, toCatalogEmbeddings(video.ID, saved, vectors)); err != nil {
		return nil, fmt.Errorf("save embeddings: %w", err)
	}

	if err := t.advance(ctx, catalog.StatusCompleted); err != nil {
		return nil, err
	}
	return set, nil
}

// removeReel deletes the rendered reel of a previous run. Its database rows
// go with the reset.
func (o *Orchestrator) removeReel(ctx context.Context, videoID string, logger *slog.Logger) {
	set, err := o.store.GetHighlightSetByVideo(ctx, videoID)
	if err != nil || set == nil || set.FilePath == "" {
		return
	}
	if err := os.Remove(set.FilePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove previous highlight reel", "path", set.FilePath, "error", err)
	}
}

func transcriptDuration(res *transcribe.Result, segments []catalog.TranscriptSegment) float64 {
	if n := len(segments); n > 0 {
		return segments[n-1].EndTime
	}
	return res.Duration
}

func toAnalysisSegments(segments []catalog.TranscriptSegment) []analysis.Segment {
	out := make([]analysis.Segment, len(segments))
	for i, s := range segments {
		out[i] = analysis.Segment{Start: s.StartTime, End: s.EndTime, Text: s.Text}
	}
	return out
}

func toEmbeddingItems(segments []catalog.TranscriptSegment) []embedding.Item {
	out := make([]embedding.Item, len(segments))
	for i, s := range segments {
		out[i] = embedding.Item{ID: s.ID, Text: s.Text}
	}
	return out
}

func toCatalogAnalysis(res analysis.Result) *catalog.Analysis {
	doc := res.Document
	a := &catalog.Analysis{
		Summary: catalog.Summary{
			Full:     doc.Summary.Full,
			Brief:    doc.Summary.Brief,
			Keywords: doc.SearchIndex,
			Origin:   string(res.Origin),
		},
	}
	for i, c := range doc.Chapters {
		a.Chapters = append(a.Chapters, catalog.Chapter{
			Index:     i,
			Title:     c.Title,
			Summary:   c.Summary,
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
		})
	}
	for i, h := range doc.Highlights {
		a.Clips = append(a.Clips, catalog.HighlightClip{
			Index:     i,
			StartTime: h.StartTime,
			EndTime:   h.EndTime,
			Category:  h.Category,
			Reason:    h.Reason,
			Excerpt:   h.TranscriptExcerpt,
		})
	}
	return a
}

func toCatalogEmbeddings(videoID string, segments []catalog.TranscriptSegment, res *embedding.Result) []catalog.Embedding {
	out := make([]catalog.Embedding, 0, len(res.Vectors))
	for _, s := range segments {
		vec, ok := res.Vectors[s.ID]
		if !ok {
			continue
		}
		out = append(out, catalog.Embedding{
			SegmentID:    s.ID,
			VideoID:      videoID,
			SegmentIndex: s.Index,
			Vector:       pgvector.NewVector(vec),
		})
	}
	return out
}
