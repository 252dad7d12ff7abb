// Package pipeline wires the stages end to end: extract, health-check
// the endpoint, chunk, translate against the resumable cache, and
// render. A run that finishes with failed chunks still produces output,
// reported as degraded, and keeps the cache for a retry.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdftranslate/internal/cache"
	"pdftranslate/internal/chunker"
	"pdftranslate/internal/document"
	"pdftranslate/internal/extractor"
	"pdftranslate/internal/llm"
	"pdftranslate/internal/orchestrator"
	"pdftranslate/internal/qa"
	"pdftranslate/internal/renderer"
)

type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "md"
)

// Status reports how a run ended. A degraded run produced output but
// some chunks carry best-effort or untranslated text.
type Status string

const (
	StatusComplete Status = "complete"
	StatusDegraded Status = "degraded"
)

type Config struct {
	InputPath  string
	OutputPath string
	Format     Format

	ChunkSize int

	BaseURL string
	Model   string
	Timeout time.Duration

	SourceLang string
	TargetLang string

	FontPath    string
	AssetPolicy renderer.AssetDirPolicy

	Temperature         float32
	RevisionTemperature float32
	MaxTokens           int
	MaxAttempts         int
	NetworkRetries      int
	RequestDelay        time.Duration
	DelayRetries        bool
	Concurrency         int
}

// FailedChunk identifies a chunk that never verified, with the flags
// from its final attempt.
type FailedChunk struct {
	ID    document.ChunkID
	Flags []string
}

// Outcome summarizes a finished run.
type Outcome struct {
	Status     Status
	OutputPath string
	Pages      int
	Chunks     int
	Cached     int
	Failed     []FailedChunk
}

// Extractor is the document-reading stage, injectable for tests.
type Extractor interface {
	Extract(path string) ([]document.Page, error)
}

// Renderer is the output stage.
type Renderer interface {
	Render(pages []renderer.PageContent, outputPath string) error
}

type Pipeline struct {
	cfg    Config
	log    *zap.Logger
	ext    Extractor
	client llm.Client
	render Renderer
}

// New builds a pipeline with the real extractor, endpoint client, and
// the renderer matching cfg.Format.
func New(cfg Config, log *zap.Logger) (*Pipeline, error) {
	client := llm.New(llm.Config{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})

	var render Renderer
	switch cfg.Format {
	case FormatPDF, "":
		render = renderer.NewPDF(cfg.FontPath, log)
	case FormatMarkdown:
		render = renderer.NewMarkdown(cfg.AssetPolicy, log)
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}

	return NewWithComponents(cfg, log, extractor.New(log), client, render), nil
}

// NewWithComponents builds a pipeline from explicit stages.
func NewWithComponents(cfg Config, log *zap.Logger, ext Extractor, client llm.Client, render Renderer) *Pipeline {
	if cfg.Format == "" {
		cfg.Format = FormatPDF
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	return &Pipeline{cfg: cfg, log: log, ext: ext, client: client, render: render}
}

// Run executes the full translation. The outcome is non-nil whenever an
// output file was written, including degraded runs.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	runID := uuid.NewString()
	log := p.log.With(zap.String("run", runID))

	outputPath, err := p.resolveOutputPath(log)
	if err != nil {
		return nil, err
	}

	pages, err := p.ext.Extract(p.cfg.InputPath)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no translatable content in %s", p.cfg.InputPath)
	}

	if err := p.checkEndpoint(ctx, log); err != nil {
		return nil, err
	}

	chunks := chunker.SplitPages(pages, p.cfg.ChunkSize)
	log.Info("document prepared",
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", p.cfg.ChunkSize))

	store, err := p.openCache(outputPath, log)
	if err != nil {
		return nil, err
	}

	analyzer := qa.New(p.cfg.SourceLang, p.cfg.TargetLang, 0)
	orch := orchestrator.New(p.client, store, analyzer, orchestrator.Config{
		SourceLang:          p.cfg.SourceLang,
		TargetLang:          p.cfg.TargetLang,
		Temperature:         p.cfg.Temperature,
		RevisionTemperature: p.cfg.RevisionTemperature,
		MaxTokens:           p.cfg.MaxTokens,
		MaxAttempts:         p.cfg.MaxAttempts,
		NetworkRetries:      p.cfg.NetworkRetries,
		RequestDelay:        p.cfg.RequestDelay,
		DelayRetries:        p.cfg.DelayRetries,
		Concurrency:         p.cfg.Concurrency,
	}, log)

	results, summary, err := orch.Run(ctx, chunks)
	if err != nil {
		store.Close()
		return nil, err
	}

	outcome := &Outcome{
		Status:     StatusComplete,
		OutputPath: outputPath,
		Pages:      len(pages),
		Chunks:     len(chunks),
		Cached:     summary.Cached,
	}
	for _, c := range chunks {
		if res := results[c.ID]; res.State != document.StateVerified {
			outcome.Status = StatusDegraded
			outcome.Failed = append(outcome.Failed, FailedChunk{ID: c.ID, Flags: res.Flags})
		}
	}

	content := renderer.Assemble(pages, chunks, results)
	if err := p.render.Render(content, outputPath); err != nil {
		// Keep the cache so the translations survive a render failure.
		store.Close()
		return nil, err
	}

	if outcome.Status == StatusComplete {
		if err := store.Finalize(); err != nil {
			log.Warn("failed to remove cache after successful run", zap.Error(err))
		}
	} else {
		log.Warn("run degraded, keeping cache for retry",
			zap.Int("failed_chunks", len(outcome.Failed)),
			zap.String("cache", store.Path()))
		store.Close()
	}

	log.Info("translation finished",
		zap.String("status", string(outcome.Status)),
		zap.String("output", outcome.OutputPath),
		zap.Int("verified", summary.Verified),
		zap.Int("cached", summary.Cached),
		zap.Int("failed", len(outcome.Failed)))
	return outcome, nil
}

// resolveOutputPath derives the output location when unset and corrects
// a mismatched extension.
func (p *Pipeline) resolveOutputPath(log *zap.Logger) (string, error) {
	wantExt := "." + string(p.cfg.Format)

	out := p.cfg.OutputPath
	if out == "" {
		stem := strings.TrimSuffix(p.cfg.InputPath, filepath.Ext(p.cfg.InputPath))
		return stem + "_translated" + wantExt, nil
	}

	if ext := filepath.Ext(out); !strings.EqualFold(ext, wantExt) {
		corrected := strings.TrimSuffix(out, ext) + wantExt
		log.Warn("correcting output extension to match format",
			zap.String("given", out), zap.String("using", corrected))
		out = corrected
	}
	return out, nil
}

// checkEndpoint verifies the endpoint is reachable before any chunk
// work starts. An unknown model name is only a warning since some
// servers do not enumerate loaded models faithfully.
func (p *Pipeline) checkEndpoint(ctx context.Context, log *zap.Logger) error {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("endpoint unreachable: %w", err)
	}
	for _, m := range models {
		if m == p.cfg.Model {
			return nil
		}
	}
	log.Warn("configured model not advertised by endpoint",
		zap.String("model", p.cfg.Model),
		zap.Strings("available", models))
	return nil
}

func (p *Pipeline) openCache(outputPath string, log *zap.Logger) (*cache.Store, error) {
	absIn, err := filepath.Abs(p.cfg.InputPath)
	if err != nil {
		return nil, err
	}
	absOut, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, err
	}
	fp := cache.Fingerprint{
		InputPath:  absIn,
		OutputPath: absOut,
		ChunkSize:  p.cfg.ChunkSize,
		Model:      p.cfg.Model,
	}
	sidecar := cache.SidecarPath(outputPath)
	if _, err := os.Stat(sidecar); err == nil {
		log.Info("found existing cache, resuming", zap.String("path", sidecar))
	}

	store, err := cache.Open(sidecar, fp, log)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return store, nil
}
