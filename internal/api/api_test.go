package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/db"
	"github.com/heimdex/heimdex-insight/internal/highlight"
	"github.com/heimdex/heimdex-insight/internal/logging"
	"github.com/heimdex/heimdex-insight/internal/metrics"
	"github.com/heimdex/heimdex-insight/internal/playback"
	"github.com/heimdex/heimdex-insight/internal/queue"
	"github.com/heimdex/heimdex-insight/internal/search"
)

const testToken = "test-token"

// mp4Header is a ftyp box with brand isom, enough for the container sniffer.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '1',
}

type fakeQueue struct {
	mu      sync.Mutex
	pending []string
	current string
	stopped bool
}

func (q *fakeQueue) Enqueue(id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return -1, queue.ErrStopped
	}
	if !slices.Contains(q.pending, id) && id != q.current {
		q.pending = append(q.pending, id)
	}
	return q.snapshot().Position(id), nil
}

func (q *fakeQueue) Status() queue.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot()
}

func (q *fakeQueue) snapshot() queue.Snapshot {
	return queue.Snapshot{Pending: slices.Clone(q.pending), Busy: q.current != "", Current: q.current}
}

type fakeRenderer struct {
	calls      atomic.Int32
	inProgress map[string]bool
}

func (r *fakeRenderer) RenderAsync(_ context.Context, setID string) error {
	r.calls.Add(1)
	if r.inProgress[setID] {
		return highlight.ErrRenderInProgress
	}
	return nil
}

func (r *fakeRenderer) InProgress(setID string) bool {
	return r.inProgress[setID]
}

type fakeSearcher struct {
	hits []search.Hit
	err  error
	last search.Request
}

func (s *fakeSearcher) Search(_ context.Context, req search.Request) ([]search.Hit, error) {
	s.last = req
	if strings.TrimSpace(req.Query) == "" {
		return nil, search.ErrEmptyQuery
	}
	return s.hits, s.err
}

type testEnv struct {
	repo     *catalog.SQLiteRepository
	queue    *fakeQueue
	renderer *fakeRenderer
	searcher *fakeSearcher
	cfg      ServerConfig
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := catalog.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), AuthTokenKey, testToken); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}

	reg := prometheus.NewRegistry()
	env := &testEnv{
		repo:     repo,
		queue:    &fakeQueue{},
		renderer: &fakeRenderer{inProgress: map[string]bool{}},
		searcher: &fakeSearcher{},
	}
	env.cfg = ServerConfig{
		CatalogService: catalog.NewService(repo, logging.Discard()),
		Repository:     repo,
		Queue:          env.queue,
		Renderer:       env.renderer,
		Search:         env.searcher,
		Playback:       playback.NewServer(logging.Discard()),
		Metrics:        metrics.NewWith(reg, reg),
		Logger:         logging.Discard(),
		StartTime:      time.Now(),
		Version:        "test",
	}
	env.router = NewRouter(env.cfg)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createVideo(t *testing.T, status catalog.VideoStatus) *catalog.Video {
	t.Helper()
	v := &catalog.Video{ID: catalog.NewID(), Filename: "talk.mp4", Path: "/videos/talk.mp4", Status: status, FrameRate: 25, Duration: 120}
	if err := e.repo.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	return v
}

// seedCompleted stores a completed video with transcript and analysis.
func (e *testEnv) seedCompleted(t *testing.T) (*catalog.Video, *catalog.HighlightSet) {
	t.Helper()
	ctx := context.Background()
	v := e.createVideo(t, catalog.StatusCompleted)

	_, err := e.repo.SaveTranscript(ctx, v.ID, []catalog.TranscriptSegment{
		{Index: 0, StartTime: 0, EndTime: 30, Text: "Welcome to the review"},
		{Index: 1, StartTime: 30, EndTime: 60, Text: "Revenue grew this quarter"},
	})
	if err != nil {
		t.Fatalf("SaveTranscript() error = %v", err)
	}

	set, err := e.repo.SaveAnalysis(ctx, v.ID, &catalog.Analysis{
		Summary: catalog.Summary{Full: "A quarterly review.", Brief: "Review", Keywords: []string{"revenue"}, Origin: catalog.AnalysisOriginModel},
		Chapters: []catalog.Chapter{
			{Index: 0, Title: "Intro", StartTime: 0, EndTime: 60},
			{Index: 1, Title: "Numbers", StartTime: 60, EndTime: 120},
		},
		Clips: []catalog.HighlightClip{
			{Index: 0, StartTime: 30, EndTime: 50, Category: "key_point", Reason: "Revenue"},
			{Index: 1, StartTime: 5, EndTime: 25, Category: "quote"},
		},
	})
	if err != nil {
		t.Fatalf("SaveAnalysis() error = %v", err)
	}
	return v, set
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status code = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}
