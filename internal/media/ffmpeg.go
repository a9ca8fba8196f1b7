// Package media wraps the ffmpeg and ffprobe binaries behind a small Toolchain
// interface: audio extraction for transcription, probing, sub-clip extraction
// with fades and concatenation of extracted clips.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Toolchain is the set of media operations the pipeline and the highlight
// assembler depend on.
type Toolchain interface {
	// Probe reads container and stream metadata.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// ExtractAudio writes mono 16kHz 16-bit PCM WAV audio for transcription.
	ExtractAudio(ctx context.Context, videoPath, outPath string) error

	// ExtractClip re-encodes [Start, End) of the source with a fade in and out
	// on both video and audio.
	ExtractClip(ctx context.Context, req ClipRequest) error

	// Concat merges the clips listed in a concat manifest into one re-encoded file.
	Concat(ctx context.Context, manifestPath, outPath string) error
}

type ProbeResult struct {
	Duration    float64
	Width       int
	Height      int
	Codec       string
	Bitrate     int64
	FrameRate   float64
	AudioCodec  string
	AudioSample int
}

type ClipRequest struct {
	Source string
	Output string
	Start  float64
	End    float64
	Fade   time.Duration
}

type Config struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
	Logger      *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Timeout:     time.Hour,
	}
}

type FFmpeg struct {
	cfg    Config
	logger *slog.Logger
}

func NewFFmpeg(cfg Config) *FFmpeg {
	def := DefaultConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return &FFmpeg{cfg: cfg, logger: logger.With("component", "media")}
}

// Check verifies both binaries resolve on PATH (or as given).
func (f *FFmpeg) Check() error {
	for _, bin := range []string{f.cfg.FFmpegPath, f.cfg.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not available: %w", bin, err)
		}
	}
	return nil
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	var out bytes.Buffer
	if _, err := f.run(ctx, "probe", f.cfg.FFprobePath, &out, probeArgs(path)...); err != nil {
		return nil, err
	}
	return parseProbe(out.Bytes())
}

func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	_, err := f.run(ctx, "extract_audio", f.cfg.FFmpegPath, nil, audioArgs(videoPath, outPath)...)
	return err
}

func (f *FFmpeg) ExtractClip(ctx context.Context, req ClipRequest) error {
	if req.End <= req.Start {
		return fmt.Errorf("invalid clip range [%.3f, %.3f]", req.Start, req.End)
	}
	_, err := f.run(ctx, "extract_clip", f.cfg.FFmpegPath, nil, clipArgs(req)...)
	return err
}

func (f *FFmpeg) Concat(ctx context.Context, manifestPath, outPath string) error {
	_, err := f.run(ctx, "concat", f.cfg.FFmpegPath, nil, concatArgs(manifestPath, outPath)...)
	return err
}

func probeArgs(path string) []string {
	return []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path}
}

func audioArgs(videoPath, outPath string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le",
		outPath,
	}
}

func clipArgs(req ClipRequest) []string {
	dur := req.End - req.Start
	fade := req.Fade.Seconds()
	if fade*2 > dur {
		fade = dur / 2
	}
	outStart := dur - fade

	vf := fmt.Sprintf("fade=t=in:st=0:d=%s,fade=t=out:st=%s:d=%s", secs(fade), secs(outStart), secs(fade))
	af := fmt.Sprintf("afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s", secs(fade), secs(outStart), secs(fade))

	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", secs(req.Start),
		"-i", req.Source,
		"-t", secs(dur),
		"-vf", vf,
		"-af", af,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-avoid_negative_ts", "make_zero",
		req.Output,
	}
}

func concatArgs(manifestPath, outPath string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", manifestPath,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		outPath,
	}
}

func secs(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// WriteConcatManifest writes a concat demuxer list naming each clip in order.
func WriteConcatManifest(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			return err
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	res := &ProbeResult{}
	res.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	res.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if res.Codec != "" {
				continue
			}
			res.Codec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseRate(s.AvgFrameRate)
			if res.FrameRate == 0 {
				res.FrameRate = parseRate(s.RFrameRate)
			}
			if res.Duration == 0 {
				res.Duration, _ = strconv.ParseFloat(s.Duration, 64)
			}
		case "audio":
			if res.AudioCodec != "" {
				continue
			}
			res.AudioCodec = s.CodecName
			res.AudioSample, _ = strconv.Atoi(s.SampleRate)
		}
	}

	if res.Duration <= 0 {
		return res, fmt.Errorf("ffprobe reported no duration")
	}
	return res, nil
}

// parseRate turns "30000/1001" or "25" into frames per second.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
