package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/heimdex/heimdex-insight/internal/db"
	"github.com/pgvector/pgvector-go"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database, NewRepository(database.Conn())
}

func createTestVideo(t *testing.T, repo Repository) *Video {
	t.Helper()

	v := &Video{ID: NewID(), Filename: "talk.mp4", Path: "/videos/talk.mp4"}
	if err := repo.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	return v
}

func TestRepository_CreateAndGetVideo(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	v := createTestVideo(t, repo)

	got, err := repo.GetVideo(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVideo() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetVideo() returned nil")
	}
	if got.Status != StatusUploaded {
		t.Errorf("status = %s, want %s", got.Status, StatusUploaded)
	}
	if got.Path != "/videos/talk.mp4" {
		t.Errorf("path = %s, want /videos/talk.mp4", got.Path)
	}

	missing, err := repo.GetVideo(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetVideo(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetVideo(missing) = %+v, want nil", missing)
	}
}

func TestRepository_TransitionVideo(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	v := createTestVideo(t, repo)

	if err := repo.TransitionVideo(ctx, v.ID, StatusUploaded, StatusProcessing, ""); err != nil {
		t.Fatalf("uploaded -> processing error = %v", err)
	}

	err := repo.TransitionVideo(ctx, v.ID, StatusProcessing, StatusCompleted, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("processing -> completed error = %v, want ErrInvalidTransition", err)
	}

	err = repo.TransitionVideo(ctx, v.ID, StatusUploaded, StatusProcessing, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("stale from-status error = %v, want ErrInvalidTransition", err)
	}

	if err := repo.TransitionVideo(ctx, v.ID, StatusProcessing, StatusFailed, "audio extraction failed"); err != nil {
		t.Fatalf("processing -> failed error = %v", err)
	}

	got, _ := repo.GetVideo(ctx, v.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "audio extraction failed" {
		t.Errorf("error_message = %q, want %q", got.ErrorMessage, "audio extraction failed")
	}

	err = repo.TransitionVideo(ctx, v.ID, StatusFailed, StatusFailed, "again")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("failed -> failed error = %v, want ErrInvalidTransition", err)
	}
}

func TestRepository_ResetVideoClearsDerivedRecords(t *testing.T) {
	database, repo := setupTestDB(t)
	ctx := context.Background()
	v := createTestVideo(t, repo)

	segs, err := repo.SaveTranscript(ctx, v.ID, []TranscriptSegment{
		{Index: 0, StartTime: 0, EndTime: 4, Text: "hello"},
	})
	if err != nil {
		t.Fatalf("SaveTranscript() error = %v", err)
	}
	if err := repo.SaveEmbeddings(ctx, v.ID, []Embedding{
		{SegmentID: segs[0].ID, Vector: pgvector.NewVector([]float32{1, 0})},
	}); err != nil {
		t.Fatalf("SaveEmbeddings() error = %v", err)
	}
	if _, err := repo.SaveAnalysis(ctx, v.ID, &Analysis{Summary: Summary{Full: "f", Brief: "b"}}); err != nil {
		t.Fatalf("SaveAnalysis() error = %v", err)
	}
	if err := repo.TransitionVideo(ctx, v.ID, StatusUploaded, StatusFailed, "boom"); err != nil {
		t.Fatalf("TransitionVideo() error = %v", err)
	}

	if err := repo.ResetVideo(ctx, v.ID); err != nil {
		t.Fatalf("ResetVideo() error = %v", err)
	}

	got, _ := repo.GetVideo(ctx, v.ID)
	if got.Status != StatusUploaded || got.ErrorMessage != "" {
		t.Errorf("after reset status = %s error = %q, want uploaded and empty", got.Status, got.ErrorMessage)
	}

	for _, table := range []string{"transcript_segments", "embeddings", "summaries", "highlight_sets"} {
		var count int
		if err := database.Conn().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s rows = %d after reset, want 0", table, count)
		}
	}
}

func TestRepository_ResetVideoRejectsInFlight(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	v := createTestVideo(t, repo)

	if err := repo.TransitionVideo(ctx, v.ID, StatusUploaded, StatusProcessing, ""); err != nil {
		t.Fatalf("TransitionVideo() error = %v", err)
	}
	if err := repo.ResetVideo(ctx, v.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ResetVideo(processing) error = %v, want ErrInvalidTransition", err)
	}
}

func TestRepository_SaveTranscriptAssignsIDs(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	v := createTestVideo(t, repo)

	conf := 0.9
	saved, err := repo.SaveTranscript(ctx, v.ID, []TranscriptSegment{
		{Index: 0, StartTime: 0, EndTime: 2.5, Text: "first", Confidence: &conf},
		{Index: 1, StartTime: 2.5, EndTime: 6, Text: "second"},
	})
	if err != nil {
		t.Fatalf("SaveTranscript() error = %v", err)
	}
	if saved[0].ID == 0 || saved[1].ID == 0 || saved[0].ID == saved[1].ID {
		t.Fatalf("segment ids not assigned: %d, %d", saved[0].ID, saved[1].ID)
	}

	segs, err := repo.ListSegments(ctx, v.ID)
	if err != nil {
		t.Fatalf("ListSegments() error = %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2", len(segs))
	}
	if segs[0].Confidence == nil || *segs[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", segs[0].Confidence)
	}
	if segs[1].Confidence != nil {
		t.Errorf("confidence = %v, want nil", *segs[1].Confidence)
	}

	byID, err := repo.GetSegmentsByID(ctx, []int64{saved[1].ID})
	if err != nil {
		t.Fatalf("GetSegmentsByID() error = %v", err)
	}
	if byID[saved[1].ID].Text != "second" {
		t.Errorf("GetSegmentsByID text = %q, want second", byID[saved[1].ID].Text)
	}
}

func TestRepository_SaveAnalysis(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	v := createTestVideo(t, repo)

	set, err := repo.SaveAnalysis(ctx, v.ID, &Analysis{
		Summary: Summary{Full: "full text", Brief: "brief", Keywords: []string{"go", "video"}, Origin: AnalysisOriginFallback},
		Chapters: []Chapter{
			{Title: "Intro", StartTime: 0, EndTime: 30},
			{Title: "Body", StartTime: 30, EndTime: 90},
		},
		Clips: []HighlightClip{
			{StartTime: 5, EndTime: 25, Category: "insight", Reason: "r", Excerpt: "e"},
		},
	})
	if err != nil {
		t.Fatalf("SaveAnalysis() error = %v", err)
	}
	if set.Status != HighlightStatusPending {
		t.Errorf("highlight set status = %s, want pending", set.Status)
	}

	summary, err := repo.GetSummary(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Origin != AnalysisOriginFallback || len(summary.Keywords) != 2 {
		t.Errorf("summary = %+v", summary)
	}

	chapters, _ := repo.ListChapters(ctx, v.ID)
	if len(chapters) != 2 || chapters[1].Title != "Body" || chapters[1].Index != 1 {
		t.Errorf("chapters = %+v", chapters)
	}

	clips, _ := repo.ListHighlightClips(ctx, set.ID)
	if len(clips) != 1 || clips[0].EndTime != 25 {
		t.Errorf("clips = %+v", clips)
	}

	if err := repo.UpdateHighlightSet(ctx, set.ID, HighlightStatusCompleted, "/out/reel.mp4", ""); err != nil {
		t.Fatalf("UpdateHighlightSet() error = %v", err)
	}
	got, _ := repo.GetHighlightSetByVideo(ctx, v.ID)
	if got.Status != HighlightStatusCompleted || got.FilePath != "/out/reel.mp4" {
		t.Errorf("highlight set = %+v", got)
	}
}

func TestRepository_EmbeddingsRoundTripInSegmentOrder(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	a := createTestVideo(t, repo)
	b := createTestVideo(t, repo)

	segsA, _ := repo.SaveTranscript(ctx, a.ID, []TranscriptSegment{
		{Index: 0, StartTime: 0, EndTime: 1, Text: "a0"},
		{Index: 1, StartTime: 1, EndTime: 2, Text: "a1"},
	})
	segsB, _ := repo.SaveTranscript(ctx, b.ID, []TranscriptSegment{
		{Index: 0, StartTime: 0, EndTime: 1, Text: "b0"},
	})

	repo.SaveEmbeddings(ctx, a.ID, []Embedding{
		{SegmentID: segsA[1].ID, Vector: pgvector.NewVector([]float32{0, 1, 0.5})},
		{SegmentID: segsA[0].ID, Vector: pgvector.NewVector([]float32{1, 0, 0.25})},
	})
	repo.SaveEmbeddings(ctx, b.ID, []Embedding{
		{SegmentID: segsB[0].ID, Vector: pgvector.NewVector([]float32{1, 1, 1})},
	})

	all, err := repo.ListEmbeddings(ctx, "")
	if err != nil {
		t.Fatalf("ListEmbeddings() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("embeddings = %d, want 3", len(all))
	}

	onlyA, _ := repo.ListEmbeddings(ctx, a.ID)
	if len(onlyA) != 2 {
		t.Fatalf("embeddings for a = %d, want 2", len(onlyA))
	}
	if onlyA[0].SegmentIndex != 0 || onlyA[1].SegmentIndex != 1 {
		t.Errorf("embedding order = %d,%d, want 0,1", onlyA[0].SegmentIndex, onlyA[1].SegmentIndex)
	}
	vec := onlyA[0].Vector.Slice()
	if len(vec) != 3 || vec[0] != 1 || vec[2] != 0.25 {
		t.Errorf("vector = %v, want [1 0 0.25]", vec)
	}
}

func TestRepository_DeleteVideoCascades(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	v := createTestVideo(t, repo)

	repo.SaveTranscript(ctx, v.ID, []TranscriptSegment{{Index: 0, StartTime: 0, EndTime: 1, Text: "x"}})
	set, _ := repo.SaveAnalysis(ctx, v.ID, &Analysis{
		Summary: Summary{Full: "f", Brief: "b"},
		Clips:   []HighlightClip{{StartTime: 0, EndTime: 20, Category: "other"}},
	})

	if err := repo.DeleteVideo(ctx, v.ID); err != nil {
		t.Fatalf("DeleteVideo() error = %v", err)
	}

	segs, _ := repo.ListSegments(ctx, v.ID)
	if len(segs) != 0 {
		t.Errorf("segments after delete = %d, want 0", len(segs))
	}
	clips, _ := repo.ListHighlightClips(ctx, set.ID)
	if len(clips) != 0 {
		t.Errorf("clips after delete = %d, want 0", len(clips))
	}
	got, _ := repo.GetHighlightSet(ctx, set.ID)
	if got != nil {
		t.Errorf("highlight set after delete = %+v, want nil", got)
	}
}

func TestRepository_Config(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	v, err := repo.GetConfig(ctx, "auth_token")
	if err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}
	repo.SetConfig(ctx, "auth_token", "one")
	repo.SetConfig(ctx, "auth_token", "two")
	v, _ = repo.GetConfig(ctx, "auth_token")
	if v != "two" {
		t.Errorf("GetConfig() = %q, want two", v)
	}
}
