package photo

import (
	"encoding/json"
	"time"
)

const MaxFileSize = 10 << 20

var allowedMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type Photo struct {
	ID               string          `json:"id"`
	POIID            string          `json:"poi_id"`
	UserID           string          `json:"user_id"`
	S3Key            string          `json:"s3_key"`
	ThumbnailKey     string          `json:"thumbnail_key,omitempty"`
	S3Bucket         string          `json:"s3_bucket"`
	S3URL            string          `json:"s3_url"`
	OriginalFileName string          `json:"original_file_name"`
	FileSize         int64           `json:"file_size"`
	MimeType         string          `json:"mime_type"`
	Width            int             `json:"width"`
	Height           int             `json:"height"`
	Exif             json.RawMessage `json:"exif_data,omitempty"`
	DateVisited      *time.Time      `json:"date_visited,omitempty"`
	IsPrimary        bool            `json:"is_primary"`
	CreatedAt        time.Time       `json:"created_at"`

	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// UploadInput is a photo that has already been resized and had its EXIF
// extracted.
type UploadInput struct {
	POIID       string
	UserID      string
	FileName    string
	MimeType    string
	Body        []byte
	Thumbnail   []byte
	Width       int
	Height      int
	Exif        json.RawMessage
	DateVisited *time.Time
	IsPrimary   bool
}
