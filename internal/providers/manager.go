package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"calmchat/internal/config"
	"calmchat/internal/logger"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok || strings.EqualFold(ref.Name, "ollama") {
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok || strings.EqualFold(ref.Name, "groq") {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	return m, nil
}

// NewStaticManager wraps already-built providers, mainly for tests.
func NewStaticManager(llm []NamedLLMProvider, embed []NamedEmbedProvider) *Manager {
	return &Manager{llmProviders: llm, embedProviders: embed}
}

// Embedder returns the preferred embedding provider. Vectors from different models are not
// comparable, so embeddings never fall back to a second provider.
func (m *Manager) Embedder() (EmbeddingProvider, ProviderRef) {
	order := m.PreferredEmbedOrder()
	if len(order) == 0 {
		return NewMockProvider(0), ProviderRef{Raw: "mock", Name: "mock"}
	}
	n := m.embedProviders[order[0]]
	return n.Provider, n.Ref
}

// LLM returns a provider that tries each configured LLM in preferred order, moving on when
// one fails with a quota, rate or transient error.
func (m *Manager) LLM() LLMProvider {
	order := m.PreferredLLMOrder()
	chain := make([]NamedLLMProvider, 0, len(order))
	for _, i := range order {
		chain = append(chain, m.llmProviders[i])
	}
	if len(chain) == 0 {
		chain = append(chain, NamedLLMProvider{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(0)})
	}
	return &fallbackLLM{chain: chain}
}

func (m *Manager) LLMRefs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.llmProviders))
	for i := range m.llmProviders {
		out = append(out, m.llmProviders[i].Ref)
	}
	return out
}

func (m *Manager) EmbedProviderRefs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.embedProviders))
	for i := range m.embedProviders {
		out = append(out, m.embedProviders[i].Ref)
	}
	return out
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func (m *Manager) PreferredEmbedOrder() []int {
	return preferredOrder(len(m.embedProviders), func(i int) string { return strings.ToLower(m.embedProviders[i].Ref.Name) })
}

// preferredOrder puts real providers before the mock, keeping configured order otherwise.
func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

type fallbackLLM struct {
	chain []NamedLLMProvider
}

func (f *fallbackLLM) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var (
		errs []error
		info ProviderInfo
	)
	for i, p := range f.chain {
		resp, pinfo, err := p.Provider.Generate(ctx, req)
		info = pinfo
		if err == nil {
			return resp, info, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Ref.Raw, err))
		kind := ClassifyError(err)
		if ctx.Err() != nil || !(kind.Retryable() || kind == ErrorQuota) {
			break
		}
		if i+1 < len(f.chain) {
			logger.Warn("llm provider %s failed (%s), trying %s", p.Ref.Raw, kind, f.chain[i+1].Ref.Raw)
		}
	}
	return GenerateResponse{}, info, errors.Join(errs...)
}

func buildProvider(ref ProviderRef, cfg config.Config) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(cfg.EmbedDim), nil
	case "openai":
		return NewOpenAIProvider(OpenAIOptions{
			KeyName:    ref.KeyAlias,
			APIKey:     cfg.ProviderKey("openai", ref.KeyAlias),
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.ChatModel,
			EmbedModel: cfg.EmbedModel,
		}), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias, cfg.ProviderKey("groq", ref.KeyAlias), cfg.GroqModel), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias, cfg.OllamaBaseURL, cfg.OllamaEmbedModel), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
