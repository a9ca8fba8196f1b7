// Package highlight renders highlight reels: each clip is cut from the source
// video with a short fade, and the clips are concatenated into one file.
package highlight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/heimdex/heimdex-insight/internal/media"
)

const DefaultFade = 300 * time.Millisecond

var ErrNoClips = errors.New("highlight set has no clips")

// Clip is one time range of the source, in seconds.
type Clip struct {
	Start float64
	End   float64
}

type Assembler struct {
	media       media.Toolchain
	scratchRoot string
	outputDir   string
	fade        time.Duration
	logger      *slog.Logger
}

func NewAssembler(tc media.Toolchain, scratchRoot, outputDir string, fade time.Duration, logger *slog.Logger) *Assembler {
	if fade <= 0 {
		fade = DefaultFade
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		media:       tc,
		scratchRoot: scratchRoot,
		outputDir:   outputDir,
		fade:        fade,
		logger:      logger,
	}
}

// OutputPath is where the reel keyed by outputID is written.
func (a *Assembler) OutputPath(outputID string) string {
	return filepath.Join(a.outputDir, outputID+".mp4")
}

// Assemble renders clips of source into one file named after outputID and
// returns its path. Clips are rendered in start order, one at a time. Every
// call works in its own scratch directory, which is removed on all paths; the
// final file only appears once concatenation has succeeded.
func (a *Assembler) Assemble(ctx context.Context, source string, clips []Clip, outputID string) (string, error) {
	if len(clips) == 0 {
		return "", ErrNoClips
	}

	ordered := append([]Clip(nil), clips...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	for _, dir := range []string{a.scratchRoot, a.outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
	}

	scratch, err := os.MkdirTemp(a.scratchRoot, "highlight-"+outputID+"-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			a.logger.Warn("failed to remove scratch dir", "path", scratch, "error", err)
		}
	}()

	paths := make([]string, 0, len(ordered))
	for i, c := range ordered {
		out := filepath.Join(scratch, fmt.Sprintf("clip_%03d.mp4", i))
		err := a.media.ExtractClip(ctx, media.ClipRequest{
			Source: source,
			Output: out,
			Start:  c.Start,
			End:    c.End,
			Fade:   a.fade,
		})
		if err != nil {
			return "", fmt.Errorf("extract clip %d [%.2f, %.2f]: %w", i, c.Start, c.End, err)
		}
		paths = append(paths, out)
	}

	manifest := filepath.Join(scratch, "concat.txt")
	if err := media.WriteConcatManifest(manifest, paths); err != nil {
		return "", fmt.Errorf("write concat manifest: %w", err)
	}

	partial, err := os.CreateTemp(a.outputDir, "."+outputID+"-*.mp4")
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	partialPath := partial.Name()
	partial.Close()

	if err := a.media.Concat(ctx, manifest, partialPath); err != nil {
		os.Remove(partialPath)
		return "", fmt.Errorf("concat clips: %w", err)
	}

	final := a.OutputPath(outputID)
	if err := os.Rename(partialPath, final); err != nil {
		os.Remove(partialPath)
		return "", fmt.Errorf("publish reel: %w", err)
	}

	a.logger.Info("highlight reel assembled", "output", final, "clips", len(ordered))
	return final, nil
}
