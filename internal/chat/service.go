// Package chat answers questions against the ingested collection within a conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"calmchat/internal/compose"
	"calmchat/internal/logger"
	"calmchat/internal/models"
	"calmchat/internal/session"
	"calmchat/internal/util"
	"calmchat/internal/vector"
)

var ErrEmptyQuestion = errors.New("question is empty")

type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	TopK int
	// MinSimilarity drops cosine hits scoring below it. Zero keeps every hit.
	MinSimilarity float64
	SnippetChars  int
}

type Service struct {
	embedder QueryEmbedder
	gateway  *vector.Gateway
	composer *compose.Composer
	sessions session.Store
	opts     Options
	now      func() time.Time
}

func NewService(embedder QueryEmbedder, gateway *vector.Gateway, composer *compose.Composer, sessions session.Store, opts Options) *Service {
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = 240
	}
	return &Service{embedder: embedder, gateway: gateway, composer: composer, sessions: sessions, opts: opts, now: time.Now}
}

type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	// StudyMode, when set, switches the session's mode before answering.
	StudyMode *bool `json:"study_mode,omitempty"`
}

type AskResponse struct {
	Answer    string          `json:"answer"`
	SessionID string          `json:"session_id"`
	StudyMode bool            `json:"study_mode"`
	Sources   []models.Source `json:"sources"`
	Fallback  bool            `json:"fallback"`
	Provider  string          `json:"provider,omitempty"`
}

func (s *Service) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AskResponse{}, ErrEmptyQuestion
	}
	sess, err := s.openSession(ctx, req)
	if err != nil {
		return AskResponse{}, err
	}

	vec, err := s.embedder.EmbedOne(ctx, question)
	if err != nil {
		return AskResponse{}, fmt.Errorf("embed question: %w", err)
	}
	hits, err := s.gateway.Query(ctx, vec, s.opts.TopK)
	if err != nil {
		return AskResponse{}, fmt.Errorf("query collection: %w", err)
	}
	hits = s.filter(hits)

	asked := s.now().UTC()
	ans, err := s.composer.Compose(ctx, compose.Request{
		Question:  question,
		Hits:      hits,
		History:   sess.Turns,
		StudyMode: sess.StudyMode,
	})
	if err != nil {
		return AskResponse{}, err
	}
	if err := s.sessions.Append(ctx, sess.ID,
		models.Turn{Role: models.RoleUser, Text: question, Timestamp: asked},
		models.Turn{Role: models.RoleAssistant, Text: ans.Text, Timestamp: s.now().UTC()},
	); err != nil {
		return AskResponse{}, fmt.Errorf("append turns: %w", err)
	}
	logger.Debug("answered in session %s: hits=%d fallback=%t", sess.ID, len(hits), ans.Fallback)

	return AskResponse{
		Answer:    ans.Text,
		SessionID: sess.ID,
		StudyMode: sess.StudyMode,
		Sources:   s.sources(question, hits),
		Fallback:  ans.Fallback,
		Provider:  ans.Provider.Name,
	}, nil
}

func (s *Service) openSession(ctx context.Context, req AskRequest) (session.Session, error) {
	if req.SessionID == "" {
		study := req.StudyMode != nil && *req.StudyMode
		return s.sessions.Create(ctx, study)
	}
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return session.Session{}, err
	}
	if req.StudyMode != nil && *req.StudyMode != sess.StudyMode {
		if err := s.sessions.SetStudyMode(ctx, sess.ID, *req.StudyMode); err != nil {
			return session.Session{}, err
		}
		sess.StudyMode = *req.StudyMode
	}
	return sess, nil
}

func (s *Service) filter(hits []vector.Hit) []vector.Hit {
	if s.opts.MinSimilarity <= 0 || s.gateway.Metric() != vector.MetricCosine {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if vector.MetricCosine.Similarity(h.Distance) >= s.opts.MinSimilarity {
			kept = append(kept, h)
		}
	}
	return kept
}

func (s *Service) sources(question string, hits []vector.Hit) []models.Source {
	metric := s.gateway.Metric()
	out := make([]models.Source, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.Source{
			Filename:    h.Chunk.SourceFilename,
			Page:        h.Chunk.PageNumber,
			ChunkOffset: h.Chunk.Offset,
			ChunkID:     h.Chunk.ChunkID,
			Distance:    h.Distance,
			Similarity:  metric.Similarity(h.Distance),
			Snippet:     util.DisplayEvidenceSnippet(h.Chunk.Text, question, s.opts.SnippetChars),
		})
	}
	return out
}
