// Package insight turns metric analyses into model commentary. The
// Dispatcher runs batches of model calls under a shared concurrency limit
// with a fixed-delay retry per request.
package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

// Dispatch limits.
const (
	MaxConcurrency = 4
	MaxAttempts    = 3
	RetryDelay     = 2 * time.Second
)

// Prompt is what a provider receives for one attempt.
type Prompt struct {
	Text     string
	ImagePNG []byte
}

// Provider is a model capability. A failed Invoke is retried with a new
// Provider instance.
type Provider interface {
	Invoke(ctx context.Context, p Prompt) (string, error)
}

// ProviderFactory returns a fresh Provider for each attempt.
type ProviderFactory func() (Provider, error)

// Request is one unit of work in a batch. Handle is carried back untouched
// so the caller can route the result.
type Request struct {
	ID     uuid.UUID
	Metric string
	Prompt Prompt
	Handle any
}

// NewRequest returns a Request with a fresh ID.
func NewRequest(metric string, p Prompt, handle any) Request {
	return Request{ID: uuid.New(), Metric: metric, Prompt: p, Handle: handle}
}

// Result pairs a request with its settled text.
type Result struct {
	Request  Request
	Text     string
	Attempts int
}

// Failed reports whether Text is a failure message.
func (r Result) Failed() bool { return strings.HasPrefix(r.Text, analysis.FailurePrefix) }

// Config tunes a Dispatcher. Zero fields take the package defaults.
type Config struct {
	MaxConcurrency int
	MaxAttempts    int
	RetryDelay     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = MaxConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = MaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = RetryDelay
	}
	return c
}

// Dispatcher sends prompts to a provider with bounded concurrency.
type Dispatcher struct {
	factory ProviderFactory
	cfg     Config
	log     zerolog.Logger
	metrics *Metrics
}

// NewDispatcher returns a Dispatcher. metrics may be nil.
func NewDispatcher(factory ProviderFactory, cfg Config, log zerolog.Logger, metrics *Metrics) *Dispatcher {
	return &Dispatcher{factory: factory, cfg: cfg.withDefaults(), log: log, metrics: metrics}
}

// Process runs every request concurrently and returns once all of them have
// settled. Each attempt holds one of MaxConcurrency slots only for the
// duration of the call; the delay between attempts is spent outside the
// slot. Results are in submission order.
func (d *Dispatcher) Process(ctx context.Context, reqs []Request) []Result {
	d.log.Info().Int("requests", len(reqs)).Int("max_concurrency", d.cfg.MaxConcurrency).Msg("processing LLM requests")
	sem := semaphore.NewWeighted(int64(d.cfg.MaxConcurrency))
	results := make([]Result, len(reqs))
	var g errgroup.Group
	for i := range reqs {
		i := i
		g.Go(func() error {
			req := reqs[i]
			log := d.log.With().Str("metric", req.Metric).Str("request_id", req.ID.String()).Logger()
			log.Info().Msg("dispatching LLM request")
			text, attempts, err := d.invoke(ctx, sem, req.Prompt, log)
			if err != nil {
				text = failureText(err)
			}
			results[i] = Result{Request: req, Text: text, Attempts: attempts}
			d.metrics.settled(err != nil)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// InvokeText runs a single text-only prompt through the same retry loop with
// a concurrency of one.
func (d *Dispatcher) InvokeText(ctx context.Context, prompt string) string {
	d.log.Info().Msg("invoking text-only LLM prompt")
	text, _, err := d.invoke(ctx, semaphore.NewWeighted(1), Prompt{Text: prompt}, d.log)
	d.metrics.settled(err != nil)
	if err != nil {
		return failureText(err)
	}
	return text
}

// failureText is the settled text of a request that exhausted its attempts.
func failureText(err error) string {
	return fmt.Sprintf("%s AI analysis: %v\n\nPlease check your API key.", analysis.FailurePrefix, err)
}

func (d *Dispatcher) invoke(ctx context.Context, sem *semaphore.Weighted, p Prompt, log zerolog.Logger) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		log.Info().Int("attempt", attempt).Msg("LLM request attempt")
		text, err := d.attempt(ctx, sem, p)
		d.metrics.attempt(err == nil)
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("LLM request succeeded")
			return text, attempt, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("LLM request failed")
		if attempt < d.cfg.MaxAttempts {
			if err := sleep(ctx, d.cfg.RetryDelay); err != nil {
				lastErr = errors.Join(lastErr, err)
				return "", attempt, lastErr
			}
		}
	}
	log.Error().Err(lastErr).Msg("LLM request exhausted retries")
	return "", d.cfg.MaxAttempts, lastErr
}

// attempt acquires a fresh provider and a concurrency slot, then makes one call.
func (d *Dispatcher) attempt(ctx context.Context, sem *semaphore.Weighted, p Prompt) (string, error) {
	provider, err := d.factory()
	if err != nil {
		return "", err
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer sem.Release(1)
	d.metrics.begin()
	defer d.metrics.end()
	return provider.Invoke(ctx, p)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ByID indexes results by request ID.
func ByID(results []Result) map[uuid.UUID]Result {
	out := make(map[uuid.UUID]Result, len(results))
	for _, r := range results {
		out[r.Request.ID] = r
	}
	return out
}
