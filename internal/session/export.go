package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"calmchat/internal/models"
	"calmchat/internal/util"
)

// ExportDocument is the downloadable form of a conversation.
type ExportDocument struct {
	ConversationID string        `json:"conversation_id"`
	Timestamp      time.Time     `json:"timestamp"`
	StudyMode      bool          `json:"study_mode"`
	Messages       []models.Turn `json:"messages"`
}

func Export(sess Session) ExportDocument {
	return ExportDocument{
		ConversationID: sess.ID,
		Timestamp:      time.Now().UTC(),
		StudyMode:      sess.StudyMode,
		Messages:       append([]models.Turn{}, sess.Turns...),
	}
}

func ExportFilename(id string) string {
	return fmt.Sprintf("conversa_fobia_social_%s.json", id)
}

// WriteExport writes the export document into dir and returns its path.
func WriteExport(dir string, sess Session) (string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, ExportFilename(sess.ID))
	if err := util.WriteJSONAtomic(path, Export(sess)); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// topicKeywords are the social-anxiety themes tracked in conversation summaries.
var topicKeywords = []string{
	"ansiedade", "social", "medo", "timidez", "exposição", "terapia",
	"tratamento", "sintomas", "técnicas", "respiração", "relaxamento",
	"cognitivo", "comportamental", "psicólogo", "profissional",
}

const (
	topicWindow = 5
	maxTopics   = 5
)

type Summary struct {
	TotalMessages     int      `json:"total_messages"`
	UserMessages      int      `json:"user_messages"`
	AssistantMessages int      `json:"assistant_messages"`
	RecentTopics      []string `json:"recent_topics"`
}

func Summarize(sess Session) Summary {
	s := Summary{TotalMessages: len(sess.Turns), RecentTopics: []string{}}
	for _, t := range sess.Turns {
		switch t.Role {
		case models.RoleUser:
			s.UserMessages++
		case models.RoleAssistant:
			s.AssistantMessages++
		}
	}
	recent := sess.Turns[max(0, len(sess.Turns)-topicWindow):]
	parts := make([]string, 0, len(recent))
	for _, t := range recent {
		parts = append(parts, t.Text)
	}
	text := strings.ToLower(strings.Join(parts, " "))
	for _, kw := range topicKeywords {
		if len(s.RecentTopics) == maxTopics {
			break
		}
		if strings.Contains(text, kw) {
			s.RecentTopics = append(s.RecentTopics, kw)
		}
	}
	return s
}
