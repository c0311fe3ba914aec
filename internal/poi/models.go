package poi

import (
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/photo"
	"github.com/apmanager001/tripmaps-sub000/internal/tag"
)

type POI struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	MapID        string     `json:"map_id,omitempty"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	LocationName string     `json:"location_name"`
	Description  string     `json:"description"`
	DateVisited  *time.Time `json:"date_visited,omitempty"`
	IsPrivate    bool       `json:"is_private"`
	Views        int        `json:"views"`
	CreatedAt    time.Time  `json:"created_at"`

	Tags       []tag.Tag     `json:"tags"`
	Likes      int           `json:"likes"`
	PhotoCount int           `json:"photo_count"`
	Liked      bool          `json:"liked"`
	Bookmarked bool          `json:"bookmarked"`
	Photos     []photo.Photo `json:"photos,omitempty"`
	DistanceKm *float64      `json:"distance_km,omitempty"`
}

type Input struct {
	MapID        string     `json:"map_id"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	LocationName string     `json:"location_name"`
	Description  string     `json:"description"`
	DateVisited  *time.Time `json:"date_visited"`
	IsPrivate    bool       `json:"is_private"`
	Tags         []string   `json:"tags"`
}

// Patch changes only the fields that are set. Tags, when set, replace every
// tag of the POI.
type Patch struct {
	Lat          *float64   `json:"lat"`
	Lng          *float64   `json:"lng"`
	LocationName *string    `json:"location_name"`
	Description  *string    `json:"description"`
	DateVisited  *time.Time `json:"date_visited"`
	IsPrivate    *bool      `json:"is_private"`
	Tags         *[]string  `json:"tags"`
}

type LikeState struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}
