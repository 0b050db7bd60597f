// Package app builds the shared component graph used by the API server, the worker and calmctl.
package app

import (
	"context"
	"fmt"
	"strings"

	"calmchat/internal/chat"
	"calmchat/internal/chunker"
	"calmchat/internal/compose"
	"calmchat/internal/config"
	"calmchat/internal/embedding"
	"calmchat/internal/extract"
	"calmchat/internal/ingest"
	"calmchat/internal/logger"
	"calmchat/internal/providers"
	"calmchat/internal/session"
	"calmchat/internal/storage"
	"calmchat/internal/vector"
)

type App struct {
	Config    config.Config
	DB        *storage.DB
	Providers *providers.Manager
	EmbedRef  providers.ProviderRef
	Embedder  *embedding.Client
	Gateway   *vector.Gateway
	Extractor *extract.Extractor
	Status    ingest.StatusStore
	Pipeline  *ingest.Pipeline
	Sessions  session.Store
	Chat      *chat.Service
	Audit     *storage.ProviderAuditRepo

	closers []func()
}

type Option func(*buildOptions)

type buildOptions struct {
	extractor *extract.Extractor
	manager   *providers.Manager
}

// WithExtractor overrides the extractor built from config, e.g. to disable OCR for one run.
func WithExtractor(e *extract.Extractor) Option {
	return func(o *buildOptions) { o.extractor = e }
}

// WithProviders overrides the provider manager built from config.
func WithProviders(m *providers.Manager) Option {
	return func(o *buildOptions) { o.manager = m }
}

// New connects to the configured stores and wires every component. The vector store is
// initialised, so a dimension or metric conflict with existing data fails here.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	metric, err := vector.ParseMetric(cfg.DistanceMetric)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.Providers = bo.manager
	if a.Providers == nil {
		if a.Providers, err = providers.NewManager(cfg); err != nil {
			return nil, err
		}
	}

	var (
		backend vector.Backend
		auditor providers.Auditor
	)
	switch strings.ToLower(cfg.StoreBackend) {
	case "memory":
		backend = vector.NewMemoryBackend()
		a.Status = ingest.NewMemoryStatusStore()
	default:
		db, err := storage.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if err := db.EnsureSchema(ctx, cfg.EmbedDim, metric); err != nil {
			return nil, err
		}
		backend = storage.NewChunkRepo(db)
		a.Status = storage.NewDocumentRepo(db)
		a.Audit = storage.NewProviderAuditRepo(db)
		auditor = a.Audit
	}

	a.Gateway = vector.NewGateway(backend, cfg.EmbedDim, metric, cfg.TopK)
	if err := a.Gateway.Init(ctx); err != nil {
		return nil, err
	}

	embedProvider, ref := a.Providers.Embedder()
	a.EmbedRef = ref
	embedOpts, err := embedding.OptionsFromConfig(cfg, auditor)
	if err != nil {
		return nil, err
	}
	a.Embedder = embedding.New(embedProvider, embedOpts)

	a.Extractor = bo.extractor
	if a.Extractor == nil {
		a.Extractor = extract.NewFromConfig(cfg)
	}
	pipelineOpts := []ingest.Option{ingest.WithStatusStore(a.Status)}
	if cfg.WriteArtifacts {
		pipelineOpts = append(pipelineOpts, ingest.WithArtifacts(cfg.DataOutRoot))
	}
	ch := chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))
	a.Pipeline = ingest.New(a.Extractor, ch, a.Embedder, a.Gateway, pipelineOpts...)

	switch strings.ToLower(cfg.SessionStore) {
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.SessionDBPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close session store: %v", err)
			}
		})
		a.Sessions = store
	default:
		a.Sessions = session.NewMemoryStore()
	}

	composer := compose.New(a.Providers.LLM(), compose.OptionsFromConfig(cfg, metric, auditor))
	a.Chat = chat.NewService(a.Embedder, a.Gateway, composer, a.Sessions, chat.Options{
		TopK:          cfg.TopK,
		MinSimilarity: cfg.MinSimilarity,
	})

	logger.Debug("app ready: store=%s sessions=%s embed=%s llm=%s ocr=%t",
		cfg.StoreBackend, cfg.SessionStore, ref.Raw, refNames(a.Providers.LLMRefs()), a.Extractor.OCREnabled())
	ok = true
	return a, nil
}

// Close releases stores in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Info is the collection and runtime summary shown by `calmctl status` and GET /documents.
type Info struct {
	vector.Stats
	Dimension     int                           `json:"dimension"`
	Metric        vector.Metric                 `json:"metric"`
	StoreBackend  string                        `json:"store_backend"`
	OCREnabled    bool                          `json:"ocr_enabled"`
	EmbedProvider string                        `json:"embed_provider"`
	LLMProviders  []string                      `json:"llm_providers"`
	ProviderCalls []storage.ProviderCallSummary `json:"provider_calls,omitempty"`
}

func (a *App) Info(ctx context.Context) (Info, error) {
	stats, err := a.Gateway.Stats(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("collection stats: %w", err)
	}
	info := Info{
		Stats:         stats,
		Dimension:     a.Gateway.Dimension(),
		Metric:        a.Gateway.Metric(),
		StoreBackend:  a.Config.StoreBackend,
		OCREnabled:    a.Extractor.OCREnabled(),
		EmbedProvider: a.EmbedRef.Raw,
		LLMProviders:  refNames(a.Providers.LLMRefs()),
	}
	if a.Audit != nil {
		calls, err := a.Audit.SummarizeCalls(ctx)
		if err != nil {
			logger.Warn("summarize provider calls: %v", err)
		}
		info.ProviderCalls = calls
	}
	return info, nil
}

func refNames(refs []providers.ProviderRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Raw)
	}
	if len(out) == 0 {
		out = append(out, "mock")
	}
	return out
}
