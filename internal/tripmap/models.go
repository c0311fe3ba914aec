package tripmap

import (
	"context"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/alert"
	"github.com/apmanager001/tripmaps-sub000/internal/poi"
)

type Map struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MapName   string    `json:"map_name"`
	IsPrivate bool      `json:"is_private"`
	Likes     int       `json:"likes"`
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"created_at"`

	POICount     int       `json:"poi_count"`
	CommentCount int       `json:"comment_count"`
	Liked        bool      `json:"liked"`
	Bookmarked   bool      `json:"bookmarked"`
	POIs         []poi.POI `json:"pois,omitempty"`
	// Route is the Google encoded polyline through the POIs in creation order.
	Route string `json:"route,omitempty"`
}

type CreateInput struct {
	MapName   string      `json:"map_name"`
	IsPrivate bool        `json:"is_private"`
	Coords    []poi.Input `json:"coords"`
}

type Patch struct {
	MapName   *string `json:"map_name"`
	IsPrivate *bool   `json:"is_private"`
}

type LikeState struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// Alerter raises in-app alerts; *alert.Service satisfies it.
type Alerter interface {
	Create(ctx context.Context, in alert.Input) (alert.Alert, error)
}
