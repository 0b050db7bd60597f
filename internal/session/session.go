// Package session holds conversations: append-only turns plus the study-mode flag.
package session

import (
	"context"
	"time"

	"calmchat/internal/models"
)

type Session struct {
	ID        string        `json:"id"`
	StudyMode bool          `json:"study_mode"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Turns     []models.Turn `json:"turns"`
}

// Info is a session without its turns, as returned by List.
type Info struct {
	ID        string    `json:"id"`
	StudyMode bool      `json:"study_mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
}

// Store persists sessions. Unknown ids return an error wrapping util.ErrNotFound. Append
// writes all given turns or none.
type Store interface {
	Create(ctx context.Context, studyMode bool) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Append(ctx context.Context, id string, turns ...models.Turn) error
	SetStudyMode(ctx context.Context, id string, studyMode bool) error
	End(ctx context.Context, id string) error
	List(ctx context.Context) ([]Info, error)
}
