// Package orchestrator drives the translate-and-verify loop over a
// document's chunks: skip what the cache already settled, translate the
// rest through the inference endpoint, run each result past the QA
// classifier, and retry with a corrective prompt while the attempt
// budget lasts. A chunk that exhausts its budget is recorded as failed
// and the run continues.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pdftranslate/internal/cache"
	"pdftranslate/internal/document"
	"pdftranslate/internal/llm"
	"pdftranslate/internal/postprocess"
	"pdftranslate/internal/qa"
)

const (
	DefaultTemperature         = 0.3
	DefaultRevisionTemperature = 0.2
	DefaultMaxTokens           = 4000
	DefaultMaxAttempts         = 3
	DefaultNetworkRetries      = 3
	DefaultRetryBackoff        = 2 * time.Second
	DefaultRequestDelay        = 500 * time.Millisecond
	DefaultConcurrency         = 1
)

// FlagNetworkError marks a chunk abandoned because the endpoint kept
// failing, as opposed to failing quality checks.
const FlagNetworkError = "network_error"

type Config struct {
	SourceLang string
	TargetLang string

	// Temperature applies to the first attempt; RevisionTemperature to
	// corrective retries, which want less creativity.
	Temperature         float32
	RevisionTemperature float32
	MaxTokens           int

	// MaxAttempts bounds LLM requests per chunk including the first.
	MaxAttempts int

	// NetworkRetries is the total number of tries per request when the
	// endpoint errors; RetryBackoff is the pause between them.
	NetworkRetries int
	RetryBackoff   time.Duration

	// RequestDelay throttles requests to keep a local endpoint
	// responsive. By default only the first request of each chunk is
	// throttled; DelayRetries extends it to corrective attempts.
	RequestDelay time.Duration
	DelayRetries bool

	Concurrency int
}

func (c *Config) applyDefaults() {
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.RevisionTemperature <= 0 {
		c.RevisionTemperature = DefaultRevisionTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.NetworkRetries <= 0 {
		c.NetworkRetries = DefaultNetworkRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	// Zero means unset; a negative delay disables throttling outright.
	if c.RequestDelay == 0 {
		c.RequestDelay = DefaultRequestDelay
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// Summary counts how the run's chunks were resolved.
type Summary struct {
	Verified int
	Failed   int
	Cached   int
}

// Store is the resume store the orchestrator reads and writes, satisfied
// by *cache.Store. Every terminal chunk result must be durable before
// the run moves on, so write failures abort the run.
type Store interface {
	Load(ctx context.Context) (map[document.ChunkID]document.TranslationResult, error)
	Put(ctx context.Context, r document.TranslationResult) error
}

type Orchestrator struct {
	client   llm.Client
	store    Store
	analyzer *qa.Analyzer
	cfg      Config
	log      *zap.Logger
	limiter  *rate.Limiter

	mu sync.Mutex
}

func New(client llm.Client, store Store, analyzer *qa.Analyzer, cfg Config, log *zap.Logger) *Orchestrator {
	cfg.applyDefaults()

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &Orchestrator{
		client:   client,
		store:    store,
		analyzer: analyzer,
		cfg:      cfg,
		log:      log,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Run translates every chunk and returns the per-chunk results. Quality
// and network failures on individual chunks do not abort the run; the
// returned error is reserved for cancellation and cache I/O problems.
func (o *Orchestrator) Run(ctx context.Context, chunks []document.Chunk) (map[document.ChunkID]document.TranslationResult, Summary, error) {
	cached, err := o.store.Load(ctx)
	if err != nil {
		return nil, Summary{}, err
	}

	results := make(map[document.ChunkID]document.TranslationResult, len(chunks))
	var summary Summary

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, chunk := range chunks {
		hash := cache.HashText(chunk.Text)
		if prev, ok := cached[chunk.ID]; ok && prev.State == document.StateVerified && prev.SourceHash == hash {
			o.mu.Lock()
			results[chunk.ID] = prev
			summary.Cached++
			summary.Verified++
			o.mu.Unlock()
			o.log.Debug("chunk already verified, skipping",
				zap.String("chunk", chunk.ID.String()))
			continue
		}

		chunk := chunk
		g.Go(func() error {
			res, err := o.translateChunk(gctx, chunk, hash)
			if err != nil {
				return err
			}

			o.mu.Lock()
			results[chunk.ID] = res
			if res.State == document.StateVerified {
				summary.Verified++
			} else {
				summary.Failed++
			}
			o.mu.Unlock()

			if err := o.store.Put(ctx, res); err != nil {
				return fmt.Errorf("persist chunk %s: %w", chunk.ID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Summary{}, err
	}
	return results, summary, nil
}

func (o *Orchestrator) translateChunk(ctx context.Context, chunk document.Chunk, hash string) (document.TranslationResult, error) {
	res := document.TranslationResult{
		ID:         chunk.ID,
		SourceHash: hash,
		State:      document.StateFailed,
	}

	system := systemPrompt(o.cfg.TargetLang)
	var previous string
	var issues []string

	for res.Attempts < o.cfg.MaxAttempts {
		if res.Attempts == 0 || o.cfg.DelayRetries {
			if err := o.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		opts := llm.CallOptions{Temperature: o.cfg.Temperature, MaxTokens: o.cfg.MaxTokens}
		user := chunk.Text
		if res.Attempts > 0 {
			opts.Temperature = o.cfg.RevisionTemperature
			user = revisionPrompt(chunk.Text, previous, o.cfg.TargetLang, issues)
		}

		raw, err := o.callWithRetry(ctx, []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		}, opts)
		res.Attempts++
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			o.log.Warn("abandoning chunk after endpoint failures",
				zap.String("chunk", chunk.ID.String()),
				zap.Int("attempts", res.Attempts),
				zap.Error(err))
			res.Flags = append(res.Flags, FlagNetworkError)
			return res, nil
		}

		text := postprocess.Clean(raw)
		report := o.analyzer.Check(chunk.Text, text)
		if report.OK() {
			res.Text = text
			res.Flags = nil
			res.State = document.StateVerified
			return res, nil
		}

		o.log.Debug("translation failed quality checks",
			zap.String("chunk", chunk.ID.String()),
			zap.Int("attempt", res.Attempts),
			zap.Strings("flags", report.Flags()))

		// Keep the best effort so far; a later render can still use it.
		res.Text = text
		res.Flags = report.Flags()
		previous = text
		issues = report.Details()
	}

	o.log.Warn("chunk failed after exhausting attempts",
		zap.String("chunk", chunk.ID.String()),
		zap.Int("attempts", res.Attempts),
		zap.Strings("flags", res.Flags))
	return res, nil
}

// callWithRetry retries transient endpoint failures with a fixed
// backoff. Non-network errors are returned immediately.
func (o *Orchestrator) callWithRetry(ctx context.Context, messages []llm.Message, opts llm.CallOptions) (string, error) {
	var lastErr error
	for try := 1; try <= o.cfg.NetworkRetries; try++ {
		text, err := o.client.ChatCompletion(ctx, messages, opts)
		if err == nil {
			return text, nil
		}

		var netErr *llm.NetworkError
		if !errors.As(err, &netErr) {
			return "", err
		}
		lastErr = err

		if try < o.cfg.NetworkRetries {
			o.log.Debug("endpoint request failed, retrying",
				zap.Int("try", try), zap.Error(err))
			select {
			case <-time.After(o.cfg.RetryBackoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}
