package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// mp4Header is the start of an ISO base media file: a ftyp box with brand isom.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '1',
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestService_RegisterVideo(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, nil)

	path := writeFile(t, "clip.mp4", mp4Header)

	video, err := svc.RegisterVideo(context.Background(), path)
	if err != nil {
		t.Fatalf("RegisterVideo() error = %v", err)
	}
	if video.ID == "" {
		t.Error("video.ID is empty")
	}
	if video.Filename != "clip.mp4" {
		t.Errorf("video.Filename = %s, want clip.mp4", video.Filename)
	}
	if video.Status != StatusUploaded {
		t.Errorf("video.Status = %s, want uploaded", video.Status)
	}

	stored, _ := repo.GetVideo(context.Background(), video.ID)
	if stored == nil || stored.Path != path {
		t.Errorf("stored video = %+v", stored)
	}
}

func TestService_RegisterVideo_Rejects(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, nil)

	tests := []struct {
		name      string
		path      string
		wantMedia bool
	}{
		{name: "missing", path: "/nonexistent/clip.mp4"},
		{name: "directory", path: t.TempDir()},
		{name: "wrong extension", path: writeFile(t, "notes.txt", mp4Header), wantMedia: true},
		{name: "text disguised as mp4", path: writeFile(t, "fake.mp4", []byte("definitely not a video")), wantMedia: true},
		{name: "empty file", path: writeFile(t, "empty.mp4", nil), wantMedia: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RegisterVideo(context.Background(), tc.path)
			if err == nil {
				t.Fatal("RegisterVideo() should fail")
			}
			if tc.wantMedia && !errors.Is(err, ErrUnsupportedMedia) {
				t.Errorf("error = %v, want ErrUnsupportedMedia", err)
			}
		})
	}
}

func TestService_RemoveVideoDeletesReel(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, nil)
	ctx := context.Background()

	v := createTestVideo(t, repo)
	set, err := repo.SaveAnalysis(ctx, v.ID, &Analysis{Summary: Summary{Full: "f", Brief: "b"}})
	if err != nil {
		t.Fatalf("SaveAnalysis() error = %v", err)
	}
	reel := writeFile(t, "reel.mp4", []byte("reel"))
	repo.UpdateHighlightSet(ctx, set.ID, HighlightStatusCompleted, reel, "")

	if err := svc.RemoveVideo(ctx, v.ID); err != nil {
		t.Fatalf("RemoveVideo() error = %v", err)
	}
	if _, err := os.Stat(reel); !os.IsNotExist(err) {
		t.Errorf("reel still exists after RemoveVideo: %v", err)
	}
	if got, _ := repo.GetVideo(ctx, v.ID); got != nil {
		t.Errorf("video still exists after RemoveVideo")
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"video.mp4", true},
		{"VIDEO.MP4", true},
		{"clip.mov", true},
		{"movie.mkv", true},
		{"talk.webm", true},
		{"doc.pdf", false},
		{"noext", false},
		{".mp4", true},
	}

	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			if got := IsVideoFile(tc.filename); got != tc.want {
				t.Errorf("IsVideoFile(%q) = %v, want %v", tc.filename, got, tc.want)
			}
		})
	}
}
