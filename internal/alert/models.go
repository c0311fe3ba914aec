package alert

import (
	"context"
	"time"
)

type Type string

const (
	TypeFollow  Type = "follow"
	TypeLike    Type = "like"
	TypeComment Type = "comment"
	TypeSystem  Type = "system"
)

type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	TargetURL string    `json:"target_url,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type Input struct {
	UserID    string
	ActorID   string
	Type      Type
	Message   string
	TargetURL string
}

// Recipient carries what a notifier needs to reach the user.
type Recipient struct {
	ID          string
	Email       string
	EmailAlerts bool
}

type Notification struct {
	Alert     Alert
	Recipient Recipient
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
