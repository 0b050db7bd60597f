// Package embedding turns chunk texts into vectors through the configured embedding provider.
package embedding

import (
	"context"
	"fmt"
	"time"

	"calmchat/internal/config"
	"calmchat/internal/logger"
	"calmchat/internal/providers"
	"calmchat/internal/util"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Options struct {
	BatchSize      int
	Concurrency    int
	MaxAttempts    int
	Backoff        []time.Duration
	RequestTimeout time.Duration
	// Dimension is passed to providers that can produce vectors of any size (the mock).
	Dimension int
	// RequestsPerSecond of zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	Auditor           providers.Auditor
}

type Client struct {
	provider providers.EmbeddingProvider
	opts     Options
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(provider providers.EmbeddingProvider, opts Options) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}
	c := &Client{provider: provider, opts: opts, sleep: sleepCtx}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

func OptionsFromConfig(cfg config.Config, auditor providers.Auditor) (Options, error) {
	backoff, err := cfg.BackoffSchedule()
	if err != nil {
		return Options{}, err
	}
	return Options{
		BatchSize:         cfg.EmbedBatchSize,
		Concurrency:       cfg.EmbedConcurrency,
		MaxAttempts:       cfg.EmbedMaxAttempts,
		Backoff:           backoff,
		RequestTimeout:    cfg.RequestTimeout(),
		Dimension:         cfg.EmbedDim,
		RequestsPerSecond: cfg.EmbedRatePerSecond,
		Burst:             cfg.EmbedBurst,
		Auditor:           auditor,
	}, nil
}

// Embed returns one vector per text, in input order. Either every batch succeeds or the
// call fails with *util.EmbeddingServiceError and no vectors.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for batch, start := 0, 0; start < len(texts); batch, start = batch+1, start+c.opts.BatchSize {
		batch, start := batch, start
		end := min(start+c.opts.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, batch, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedOne embeds a single query text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embedBatch(ctx context.Context, batch int, texts []string) ([][]float32, error) {
	var lastErr error
	transient := false
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.opts.Backoff[min(attempt-2, len(c.opts.Backoff)-1)]
			logger.Debug("embedding batch %d retry %d/%d in %s: %v", batch, attempt, c.opts.MaxAttempts, delay, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &util.EmbeddingServiceError{Batch: batch, Attempts: attempt - 1, Transient: true, Err: err}
			}
		}
		vecs, err := c.call(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		kind := providers.ClassifyError(err)
		transient = kind.Retryable()
		if !transient || ctx.Err() != nil {
			return nil, &util.EmbeddingServiceError{Batch: batch, Attempts: attempt, Transient: transient, Err: err}
		}
	}
	return nil, &util.EmbeddingServiceError{Batch: batch, Attempts: c.opts.MaxAttempts, Transient: transient, Err: lastErr}
}

func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	callCtx := ctx
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}
	started := time.Now()
	vecs, info, err := c.provider.Embed(callCtx, providers.EmbedRequest{Operation: "embed", Inputs: texts, Dimension: c.opts.Dimension})
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("provider %s returned %d vectors for %d inputs", info.Name, len(vecs), len(texts))
	}
	if c.opts.Auditor != nil {
		if aerr := c.opts.Auditor.RecordCall(ctx, providers.NewCallRecord("embed", info, len(texts), started, err)); aerr != nil {
			logger.Warn("record embedding call: %v", aerr)
		}
	}
	return vecs, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
