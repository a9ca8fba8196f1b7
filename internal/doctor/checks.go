package doctor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-insight/internal/transcribe"
)

const defaultCheckTimeout = 5 * time.Second

// Check probes one dependency. Detail is shown next to a passing check.
type Check struct {
	Name  string
	Probe func(ctx context.Context) (detail string, err error)
}

// CheckSet runs its checks concurrently, each under its own timeout.
type CheckSet struct {
	checks  []Check
	timeout time.Duration
}

func NewCheckSet(timeout time.Duration, checks ...Check) *CheckSet {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &CheckSet{checks: checks, timeout: timeout}
}

func (s *CheckSet) Probe(ctx context.Context) (*Capabilities, error) {
	results := make([]Status, len(s.checks))

	var g errgroup.Group
	for i, c := range s.checks {
		i, c := i, c
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			detail, err := c.Probe(cctx)
			if err != nil {
				results[i] = Status{Error: err.Error()}
				return nil
			}
			results[i] = Status{Available: true, Detail: detail}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("probe interrupted: %w", err)
	}

	caps := &Capabilities{
		Checks:   make(map[string]Status, len(s.checks)),
		AllOK:    true,
		ProbedAt: time.Now(),
	}
	for i, c := range s.checks {
		caps.Checks[c.Name] = results[i]
		caps.AllOK = caps.AllOK && results[i].Available
	}
	return caps, nil
}

// MediaCheck reports whether the ffmpeg binaries are on PATH.
func MediaCheck(tc interface{ Check() error }) Check {
	return Check{
		Name: "ffmpeg",
		Probe: func(context.Context) (string, error) {
			return "", tc.Check()
		},
	}
}

// HealthCheck wraps a service client exposing a health endpoint.
func HealthCheck(name string, svc interface {
	Health(ctx context.Context) error
}) Check {
	return Check{
		Name: name,
		Probe: func(ctx context.Context) (string, error) {
			return "", svc.Health(ctx)
		},
	}
}

// TranscriptionCheck checks health and reports the loaded model.
func TranscriptionCheck(c *transcribe.Client) Check {
	return Check{
		Name: "transcription",
		Probe: func(ctx context.Context) (string, error) {
			if err := c.Health(ctx); err != nil {
				return "", err
			}
			models, err := c.Models(ctx)
			if err != nil {
				return "", nil
			}
			if models.Current != "" {
				return "model " + models.Current, nil
			}
			return strings.Join(models.Available, ","), nil
		},
	}
}
