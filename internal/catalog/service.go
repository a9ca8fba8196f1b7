package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
)

// sniffSize is enough header bytes for every container filetype knows about.
const sniffSize = 261

var ErrUnsupportedMedia = errors.New("unsupported media file")

type CatalogService interface {
	RegisterVideo(ctx context.Context, path string) (*Video, error)
	RemoveVideo(ctx context.Context, id string) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	ListVideos(ctx context.Context) ([]*Video, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RegisterVideo records an existing file as a new uploaded video. The file must
// carry a video extension and a video container signature.
func (s *Service) RegisterVideo(ctx context.Context, path string) (*Video, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory")
	}

	if !IsVideoFile(absPath) {
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedMedia, filepath.Ext(absPath))
	}
	ok, err := sniffVideo(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file header: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no video container signature", ErrUnsupportedMedia)
	}

	now := time.Now().UTC()
	video := &Video{
		ID:        NewID(),
		Filename:  filepath.Base(absPath),
		Path:      absPath,
		Status:    StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateVideo(ctx, video); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("video registered", "video_id", video.ID, "path", absPath)
	}
	return video, nil
}

// RemoveVideo deletes a video with all derived records and its rendered reel.
func (s *Service) RemoveVideo(ctx context.Context, id string) error {
	set, err := s.repo.GetHighlightSetByVideo(ctx, id)
	if err != nil {
		return err
	}
	if set != nil && set.FilePath != "" {
		if err := os.Remove(set.FilePath); err != nil && !os.IsNotExist(err) && s.logger != nil {
			s.logger.Warn("failed to remove highlight reel", "path", set.FilePath, "error", err)
		}
	}
	return s.repo.DeleteVideo(ctx, id)
}

func (s *Service) GetVideo(ctx context.Context, id string) (*Video, error) {
	return s.repo.GetVideo(ctx, id)
}

func (s *Service) ListVideos(ctx context.Context) ([]*Video, error) {
	return s.repo.ListVideos(ctx)
}

func sniffVideo(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return filetype.IsVideo(head[:n]), nil
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}
