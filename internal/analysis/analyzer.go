package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Completer is a chat-style completion endpoint.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Result is the outcome of one analysis. Err records why the fallback was
// used; Document is valid regardless.
type Result struct {
	Document Document
	Origin   Origin
	Err      error
}

// Degraded reports whether the document came from the fallback generator.
func (r Result) Degraded() bool { return r.Origin == OriginFallback }

type Analyzer struct {
	llm        Completer
	charBudget int
	logger     *slog.Logger
}

// NewAnalyzer returns an Analyzer. A nil llm makes every analysis use the fallback.
func NewAnalyzer(llm Completer, charBudget int, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{llm: llm, charBudget: charBudget, logger: logger}
}

// Analyze asks the model for an analysis and normalizes the reply. It never
// returns an unusable document: model errors and unparseable replies both
// degrade to the transcript-statistics fallback.
func (a *Analyzer) Analyze(ctx context.Context, duration float64, segments []Segment) Result {
	if a.llm == nil {
		return a.fallback(duration, segments, errors.New("no language model configured"))
	}

	system, user, err := BuildPrompt(duration, segments, a.charBudget)
	if err != nil {
		return a.fallback(duration, segments, err)
	}

	reply, err := a.llm.Complete(ctx, system, user)
	if err != nil {
		return a.fallback(duration, segments, fmt.Errorf("completion: %w", err))
	}

	doc, origin, err := Normalize(reply, duration, segments)
	if err != nil {
		a.logger.Warn("model reply not parseable, using fallback",
			"error", err,
			"reply_len", len(reply),
		)
	}
	return Result{Document: doc, Origin: origin, Err: err}
}

func (a *Analyzer) fallback(duration float64, segments []Segment, cause error) Result {
	a.logger.Warn("analysis degraded to fallback", "error", cause)
	return Result{Document: Fallback(duration, segments), Origin: OriginFallback, Err: cause}
}
