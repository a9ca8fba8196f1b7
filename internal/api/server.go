package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/doctor"
	"github.com/heimdex/heimdex-insight/internal/metrics"
	"github.com/heimdex/heimdex-insight/internal/queue"
	"github.com/heimdex/heimdex-insight/internal/search"
)

// JobQueue is the processing queue as seen by the API.
type JobQueue interface {
	Enqueue(videoID string) (int, error)
	Status() queue.Snapshot
}

// HighlightRenderer regenerates highlight reels in the background.
type HighlightRenderer interface {
	RenderAsync(ctx context.Context, setID string) error
	InProgress(setID string) bool
}

// ReelServer streams a rendered reel from disk.
type ReelServer interface {
	Serve(w http.ResponseWriter, r *http.Request, path string) error
}

type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.Hit, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	CatalogService catalog.CatalogService
	Repository     catalog.Repository
	Queue          JobQueue
	Renderer       HighlightRenderer
	Search         Searcher
	Playback       ReelServer
	Doctor         *doctor.CachedDoctor
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			// Loopback only.
			Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      10 * time.Minute, // reel downloads
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
