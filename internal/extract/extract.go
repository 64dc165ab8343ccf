// Package extract runs ordered chains of extraction strategies per
// platform. Each strategy is one technique (a tool invocation, an API, a
// scraped page); a chain tries them strictly in order until one yields
// media.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"mediagrab/internal/media"
	"mediagrab/internal/metrics"
)

// Request is one extraction job.
type Request struct {
	URL       string
	Platform  media.Platform
	Quality   string
	Password  string
	AudioOnly bool
}

// File is a produced file inside the managed directory.
type File struct {
	Path    string
	MIME    string
	Size    int64
	Label   string
	Purpose media.Purpose // empty for the primary file
}

// Result is what a successful strategy produced. Files[0] is the primary
// file.
type Result struct {
	Title              string
	Kind               media.Kind
	Files              []File
	ResolvedQuality    string
	AvailableQualities []string
	WatermarkFree      bool
	Strategy           string
}

// Size returns the total size of all produced files.
func (r *Result) Size() uint64 {
	var total uint64
	for _, f := range r.Files {
		if f.Size > 0 {
			total += uint64(f.Size)
		}
	}
	return total
}

// Discard removes every produced file.
func (r *Result) Discard() {
	for _, f := range r.Files {
		os.Remove(f.Path)
	}
}

// Extractor is one extraction strategy.
type Extractor interface {
	// Name identifies the strategy in attempts and logs.
	Name() string

	// WatermarkFree is the strategy's declared capability. The result of
	// an attempt reports what was actually produced.
	WatermarkFree() bool

	// Attempt tries to produce media for req.
	Attempt(ctx context.Context, req Request) (*Result, error)
}

// Chain is the ordered strategy list of one platform.
type Chain struct {
	platform media.Platform
	steps    []Extractor
	log      zerolog.Logger
	metrics  metrics.Recorder
}

// NewChain creates a chain that tries steps in the given order.
func NewChain(p media.Platform, log zerolog.Logger, m metrics.Recorder, steps ...Extractor) *Chain {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Chain{
		platform: p,
		steps:    steps,
		log:      log.With().Str("component", "chain").Str("platform", p.String()).Logger(),
		metrics:  m,
	}
}

// Names returns the strategy names in chain order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name()
	}
	return names
}

// Run tries each strategy once, in order. A failed strategy is recorded as
// an attempt and never retried in place. When every strategy fails the
// error is a *media.ExhaustedError carrying all attempts.
func (c *Chain) Run(ctx context.Context, req Request) (*Result, []media.Attempt, error) {
	var attempts []media.Attempt
	chainStart := time.Now()

	for _, step := range c.steps {
		start := time.Now()
		res, err := attempt(ctx, step, req)
		if err == nil && (res == nil || len(res.Files) == 0) {
			err = media.ErrNoContent
		}

		a := media.Attempt{Strategy: step.Name(), Elapsed: time.Since(start)}
		if err != nil {
			a.Outcome = outcomeOf(err)
			a.Message = err.Error()
			a.Reason = media.ReasonOf(err)
			attempts = append(attempts, a)

			c.metrics.IncAttempt(c.platform.String(), a.Strategy, string(a.Outcome))
			c.log.Info().
				Str("strategy", a.Strategy).
				Str("outcome", string(a.Outcome)).
				Dur("elapsed", a.Elapsed).
				Err(err).
				Msg("strategy failed")

			if ctx.Err() != nil {
				break
			}
			continue
		}

		a.Outcome = media.OutcomeSuccess
		attempts = append(attempts, a)
		res.Strategy = step.Name()

		c.metrics.IncAttempt(c.platform.String(), a.Strategy, string(a.Outcome))
		c.metrics.ObserveExtraction(c.platform.String(), string(a.Outcome), time.Since(chainStart).Seconds())
		c.log.Info().
			Str("strategy", a.Strategy).
			Dur("elapsed", a.Elapsed).
			Bool("watermark_free", res.WatermarkFree).
			Msg("strategy succeeded")
		return res, attempts, nil
	}

	c.metrics.ObserveExtraction(c.platform.String(), "exhausted", time.Since(chainStart).Seconds())
	return nil, attempts, &media.ExhaustedError{Platform: c.platform, Attempts: attempts}
}

// attempt isolates a strategy so a panic inside it becomes a failed
// attempt instead of taking down the request.
func attempt(ctx context.Context, step Extractor, req Request) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("strategy %s panicked: %v", step.Name(), r)
		}
	}()
	return step.Attempt(ctx, req)
}

func outcomeOf(err error) media.Outcome {
	switch {
	case errors.Is(err, media.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return media.OutcomeTimeout
	case errors.Is(err, media.ErrNoContent):
		return media.OutcomeNoContent
	default:
		return media.OutcomeUpstreamError
	}
}
