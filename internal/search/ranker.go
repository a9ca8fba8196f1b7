// Package search ranks stored transcript segment vectors against a query.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/heimdex/heimdex-insight/internal/catalog"
)

const (
	DefaultTopK = 10
	MaxTopK     = 100
)

var ErrEmptyQuery = errors.New("query is empty")

// QueryEmbedder embeds a search query with the same model used for segments.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store lists the vectors to rank and the segments behind them.
type Store interface {
	ListEmbeddings(ctx context.Context, videoID string) ([]catalog.Embedding, error)
	GetSegmentsByID(ctx context.Context, ids []int64) (map[int64]catalog.TranscriptSegment, error)
}

// Candidate is one stored vector in ranking order.
type Candidate struct {
	SegmentID int64
	Vector    []float32
}

type Match struct {
	SegmentID  int64   `json:"segment_id"`
	Similarity float64 `json:"similarity"`
}

// Hit is a match with the segment it refers to.
type Hit struct {
	Match
	VideoID   string  `json:"video_id"`
	Index     int     `json:"segment_index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
}

type Request struct {
	Query   string `json:"query"`
	VideoID string `json:"video_id,omitempty"`
	TopK    int    `json:"top_k,omitempty"`
}

type Ranker struct {
	embedder QueryEmbedder
	store    Store
}

func NewRanker(embedder QueryEmbedder, store Store) *Ranker {
	return &Ranker{embedder: embedder, store: store}
}

// Search embeds the query and returns the closest segments, most similar
// first. Segments without a stored vector never appear.
func (r *Ranker) Search(ctx context.Context, req Request) ([]Hit, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	qvec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	stored, err := r.store.ListEmbeddings(ctx, req.VideoID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	candidates := make([]Candidate, len(stored))
	for i, e := range stored {
		candidates[i] = Candidate{SegmentID: e.SegmentID, Vector: e.Vector.Slice()}
	}

	matches := Rank(qvec, candidates, ClampTopK(req.TopK))
	if len(matches) == 0 {
		return []Hit{}, nil
	}

	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.SegmentID
	}
	segments, err := r.store.GetSegmentsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		seg, ok := segments[m.SegmentID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			Match:     m,
			VideoID:   seg.VideoID,
			Index:     seg.Index,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Text:      seg.Text,
		})
	}
	return hits, nil
}

// ClampTopK applies the default and the upper bound to a requested result count.
func ClampTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return min(k, MaxTopK)
}

// Rank scores candidates by cosine similarity to query and returns the best
// k. Candidates are expected in segment order; equal scores keep that order.
// Vectors that are zero or of a different dimension are skipped.
func Rank(query []float32, candidates []Candidate, k int) []Match {
	qnorm := norm(query)
	if qnorm == 0 || k <= 0 {
		return []Match{}
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			continue
		}
		cnorm := norm(c.Vector)
		if cnorm == 0 {
			continue
		}
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(c.Vector[i])
		}
		matches = append(matches, Match{SegmentID: c.SegmentID, Similarity: dot / (qnorm * cnorm)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
