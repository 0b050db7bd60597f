// Package compose assembles the grounded prompt and asks the language model for an answer.
package compose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calmchat/internal/config"
	"calmchat/internal/logger"
	"calmchat/internal/models"
	"calmchat/internal/providers"
	"calmchat/internal/util"
	"calmchat/internal/vector"
)

type Options struct {
	HistoryWindow  int
	DocChars       int
	MaxTokens      int
	Temperature    float64
	TopP           float64
	RequestTimeout time.Duration
	Metric         vector.Metric
	Auditor        providers.Auditor
}

func OptionsFromConfig(cfg config.Config, metric vector.Metric, auditor providers.Auditor) Options {
	return Options{
		HistoryWindow:  cfg.HistoryWindow,
		DocChars:       cfg.DocChars,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		TopP:           cfg.TopP,
		RequestTimeout: cfg.RequestTimeout(),
		Metric:         metric,
		Auditor:        auditor,
	}
}

type Request struct {
	Question  string
	Hits      []vector.Hit
	History   []models.Turn
	StudyMode bool
}

type Answer struct {
	Text     string                 `json:"text"`
	Fallback bool                   `json:"fallback"`
	Provider providers.ProviderInfo `json:"provider"`
}

type Composer struct {
	llm  providers.LLMProvider
	opts Options
}

func New(llm providers.LLMProvider, opts Options) *Composer {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.DocChars <= 0 {
		opts.DocChars = 500
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	if opts.Metric == "" {
		opts.Metric = vector.MetricCosine
	}
	return &Composer{llm: llm, opts: opts}
}

// Compose never fails because of the completion service: on error the user gets
// FallbackMessage with Fallback set. Only a cancelled context is returned as an error.
func (c *Composer) Compose(ctx context.Context, req Request) (Answer, error) {
	system, user := c.BuildPrompt(req)
	callCtx := ctx
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}
	started := time.Now()
	resp, info, err := c.llm.Generate(callCtx, providers.GenerateRequest{
		Operation:   "answer",
		System:      system,
		Messages:    []providers.ChatMessage{{Role: "user", Content: user}},
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
	})
	text := strings.TrimSpace(resp.Text)
	if err == nil && text == "" {
		err = fmt.Errorf("%s returned an empty answer", info.Name)
	}
	if c.opts.Auditor != nil {
		rec := providers.NewCallRecord("answer", info, 1, started, err)
		rec.PromptTokens, rec.CompletionTokens = resp.PromptTokens, resp.CompletionTokens
		if aerr := c.opts.Auditor.RecordCall(ctx, rec); aerr != nil {
			logger.Warn("record completion call: %v", aerr)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}
		logger.Error("generate answer for %q: %v", util.Truncate(req.Question, 50), err)
		return Answer{Text: FallbackMessage, Fallback: true, Provider: info}, nil
	}
	return Answer{Text: text, Provider: info}, nil
}

// BuildPrompt returns the tone directive and the grounded user message.
func (c *Composer) BuildPrompt(req Request) (system, user string) {
	system = AgentPrompt
	if req.StudyMode {
		system = StudyModePrompt
	}
	var b strings.Builder
	b.WriteString("CONTEXTO DA CONVERSA:\n")
	b.WriteString(c.formatHistory(req.History))
	b.WriteString("\n\nPERGUNTA DO USUÁRIO: ")
	b.WriteString(strings.TrimSpace(req.Question))
	b.WriteString("\n\nINFORMAÇÕES RELEVANTES DOS DOCUMENTOS:\n")
	b.WriteString(c.formatDocuments(req.Hits))
	return system, b.String()
}

func (c *Composer) formatHistory(history []models.Turn) string {
	if len(history) == 0 {
		return noHistory
	}
	recent := history[max(0, len(history)-c.opts.HistoryWindow):]
	lines := make([]string, 0, len(recent))
	for i, t := range recent {
		role := "Assistente"
		if t.Role == models.RoleUser {
			role = "Usuário"
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, role, t.Text))
	}
	return strings.Join(lines, "\n")
}

func (c *Composer) formatDocuments(hits []vector.Hit) string {
	if len(hits) == 0 {
		return noDocuments
	}
	docs := make([]string, 0, len(hits))
	for i, h := range hits {
		content := h.Chunk.Text
		if r := []rune(content); len(r) > c.opts.DocChars {
			content = string(r[:c.opts.DocChars])
		}
		docs = append(docs, fmt.Sprintf("Documento %d (Similaridade: %.2f, Arquivo: %s, Página: %d, Chunk: %d):\n%s\n",
			i+1, c.opts.Metric.Similarity(h.Distance), h.Chunk.SourceFilename, h.Chunk.PageNumber, h.Chunk.Offset, content))
	}
	return strings.Join(docs, "\n")
}
