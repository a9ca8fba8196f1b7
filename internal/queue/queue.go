// Package queue feeds videos to the pipeline one at a time in arrival order.
// All queue state is owned by a single loop goroutine; callers talk to it
// over channels and only ever see copies.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"

	"github.com/heimdex/heimdex-insight/internal/logging"
	"github.com/heimdex/heimdex-insight/internal/metrics"
)

var ErrStopped = errors.New("queue is stopped")

// Processor runs one video. Process is expected to record its own failures;
// MarkFailed is only used when Process panics.
type Processor interface {
	Process(ctx context.Context, videoID string) error
	MarkFailed(ctx context.Context, videoID string, err error)
}

// Snapshot is a point-in-time copy of the queue.
type Snapshot struct {
	Pending []string `json:"pending"`
	Busy    bool     `json:"busy"`
	Current string   `json:"current,omitempty"`
}

// Position returns 0 for the video being processed, n for the n-th pending
// video and -1 when the video is not queued.
func (s Snapshot) Position(videoID string) int {
	if s.Busy && s.Current == videoID {
		return 0
	}
	if i := slices.Index(s.Pending, videoID); i >= 0 {
		return i + 1
	}
	return -1
}

type enqueueReq struct {
	videoID string
	reply   chan int
}

type Queue struct {
	proc    Processor
	metrics *metrics.Metrics
	logger  *slog.Logger

	enqueueCh  chan enqueueReq
	snapshotCh chan chan Snapshot
	doneCh     chan struct{}
	stopped    chan struct{}
}

func New(proc Processor, m *metrics.Metrics, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		proc:       proc,
		metrics:    m,
		logger:     logging.WithComponent(logger, "queue"),
		enqueueCh:  make(chan enqueueReq),
		snapshotCh: make(chan chan Snapshot),
		doneCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start runs the worker loop until ctx is cancelled. A job in progress at
// that point receives the cancelled context and the loop waits for it.
func (q *Queue) Start(ctx context.Context) {
	go q.loop(ctx)
}

// Wait blocks until the loop has exited.
func (q *Queue) Wait() {
	<-q.stopped
}

// Enqueue appends a video and returns its position (see Snapshot.Position).
// A video that is already pending or running is not added twice.
func (q *Queue) Enqueue(videoID string) (int, error) {
	req := enqueueReq{videoID: videoID, reply: make(chan int, 1)}
	select {
	case q.enqueueCh <- req:
		return <-req.reply, nil
	case <-q.stopped:
		return -1, ErrStopped
	}
}

// Status returns a copy of the queue state. A stopped queue reports empty.
func (q *Queue) Status() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case q.snapshotCh <- reply:
		return <-reply
	case <-q.stopped:
		return Snapshot{Pending: []string{}}
	}
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.stopped)

	pending := []string{}
	current := ""
	for {
		if current == "" && len(pending) > 0 {
			current, pending = pending[0], pending[1:]
			go q.work(ctx, current)
		}
		q.metrics.SetQueueDepth(len(pending))

		select {
		case <-ctx.Done():
			if current != "" {
				q.logger.Info("waiting for running job before stopping", "video_id", current)
				<-q.doneCh
			}
			if len(pending) > 0 {
				q.logger.Warn("queue stopped with pending videos", "count", len(pending))
			}
			return

		case req := <-q.enqueueCh:
			pos := Snapshot{Pending: pending, Busy: current != "", Current: current}.Position(req.videoID)
			if pos < 0 {
				pending = append(pending, req.videoID)
				pos = len(pending)
				if current == "" {
					pos = 0
				}
				q.logger.Info("video enqueued", "video_id", req.videoID, "position", pos)
			}
			req.reply <- pos

		case reply := <-q.snapshotCh:
			reply <- Snapshot{
				Pending: slices.Clone(pending),
				Busy:    current != "",
				Current: current,
			}

		case <-q.doneCh:
			current = ""
		}
	}
}

func (q *Queue) work(ctx context.Context, videoID string) {
	logger := logging.WithVideoID(q.logger, videoID)
	defer func() { q.doneCh <- struct{}{} }()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while processing: %v", r)
			logger.Error("job panicked", "error", err, "stack", string(debug.Stack()))
			q.proc.MarkFailed(context.WithoutCancel(ctx), videoID, err)
		}
	}()

	if err := q.proc.Process(ctx, videoID); err != nil {
		logger.Warn("job failed", "error", err)
		return
	}
	logger.Debug("job finished")
}
