package catalog

import (
	"errors"
	"fmt"
)

// VideoStatus is the pipeline state of a video.
type VideoStatus string

const (
	StatusUploaded     VideoStatus = "uploaded"
	StatusProcessing   VideoStatus = "processing"
	StatusTranscribing VideoStatus = "transcribing"
	StatusAnalyzing    VideoStatus = "analyzing"
	StatusEmbedding    VideoStatus = "embedding"
	StatusCompleted    VideoStatus = "completed"
	StatusFailed       VideoStatus = "failed"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// forward lists the single successor of each pipeline stage.
var forward = map[VideoStatus]VideoStatus{
	StatusUploaded:     StatusProcessing,
	StatusProcessing:   StatusTranscribing,
	StatusTranscribing: StatusAnalyzing,
	StatusAnalyzing:    StatusEmbedding,
	StatusEmbedding:    StatusCompleted,
}

func (s VideoStatus) Valid() bool {
	if s == StatusCompleted || s == StatusFailed {
		return true
	}
	_, ok := forward[s]
	return ok
}

func (s VideoStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InFlight reports whether the video is somewhere between uploaded and a terminal state.
func (s VideoStatus) InFlight() bool {
	return s.Valid() && !s.IsTerminal() && s != StatusUploaded
}

// Next returns the stage that follows s, or "" for terminal states.
func (s VideoStatus) Next() VideoStatus {
	return forward[s]
}

// CanTransition reports whether from -> to is an edge of the state machine.
// failed is reachable from every non-terminal state.
func CanTransition(from, to VideoStatus) bool {
	if !from.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return forward[from] == to
}

func checkTransition(from, to VideoStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
