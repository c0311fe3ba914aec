package social

import (
	"context"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/alert"
)

const MaxCommentLength = 2000

type UserSummary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	Since     time.Time `json:"since"`
}

// BookmarkTarget names exactly one of a map or a POI.
type BookmarkTarget struct {
	MapID string `json:"map_id"`
	POIID string `json:"poi_id"`
}

type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MapID     string    `json:"map_id,omitempty"`
	POIID     string    `json:"poi_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type BookmarkState struct {
	Bookmarked bool `json:"bookmarked"`
}

type Comment struct {
	ID        string    `json:"id"`
	MapID     string    `json:"map_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Body      string    `json:"body"`
	Likes     int       `json:"likes"`
	Liked     bool      `json:"liked"`
	CreatedAt time.Time `json:"created_at"`
}

type LikeState struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// FeedMap is a public map by someone the reader follows.
type FeedMap struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	MapName   string    `json:"map_name"`
	Likes     int       `json:"likes"`
	Views     int       `json:"views"`
	POICount  int       `json:"poi_count"`
	CreatedAt time.Time `json:"created_at"`
}

type Alerter interface {
	Create(ctx context.Context, in alert.Input) (alert.Alert, error)
}
