package photo

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/cascade"
	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/logging"
	"github.com/apmanager001/tripmaps-sub000/internal/objectstore"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const photoColumns = `id, poi_id, user_id, s3_key, COALESCE(thumbnail_key, ''), s3_bucket, s3_url,
		original_file_name, file_size, mime_type, width, height, exif_data, date_visited, is_primary, created_at`

var errNoStore = errors.New("object store not configured")

type Service struct {
	db         db.DB
	store      objectstore.Store
	purger     *cascade.Purger
	presignTTL time.Duration
	log        *logrus.Logger
}

func NewService(db db.DB, store objectstore.Store, purger *cascade.Purger, presignTTL time.Duration, log *logrus.Logger) *Service {
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{db: db, store: store, purger: purger, presignTTL: presignTTL, log: log}
}

func validateUpload(in UploadInput) error {
	if len(in.Body) == 0 {
		return apperr.Validation("file is empty")
	}
	if len(in.Body) > MaxFileSize || len(in.Thumbnail) > MaxFileSize {
		return apperr.Validation("file exceeds 10MB")
	}
	if !govalidator.IsIn(in.MimeType, mimeTypes()...) {
		return apperr.Validation("unsupported image type " + in.MimeType)
	}
	if in.Width < 0 || in.Height < 0 {
		return apperr.Validation("dimensions must not be negative")
	}
	return nil
}

// Upload stores the photo bytes, then records the photo row. If the row
// cannot be written the uploaded objects are removed again.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Photo, error) {
	if err := validateUpload(in); err != nil {
		return Photo{}, err
	}
	if s.store == nil {
		return Photo{}, apperr.External(errNoStore, "photo storage is not configured")
	}
	if err := s.checkCanView(ctx, in.POIID, in.UserID); err != nil {
		return Photo{}, err
	}

	id := uuid.NewString()
	ext := allowedMimeTypes[in.MimeType]
	p := Photo{
		ID:               id,
		POIID:            in.POIID,
		UserID:           in.UserID,
		S3Key:            path.Join("photos", in.POIID, id+ext),
		OriginalFileName: in.FileName,
		FileSize:         int64(len(in.Body)),
		MimeType:         in.MimeType,
		Width:            in.Width,
		Height:           in.Height,
		Exif:             in.Exif,
		DateVisited:      in.DateVisited,
		IsPrimary:        in.IsPrimary,
	}

	obj, err := s.store.Upload(ctx, p.S3Key, in.Body, in.MimeType)
	if err != nil {
		return Photo{}, apperr.External(err, "could not store photo")
	}
	p.S3Bucket = obj.Bucket
	p.S3URL = obj.URL
	uploaded := []string{p.S3Key}

	if len(in.Thumbnail) > 0 {
		thumbKey := path.Join("thumbnails", in.POIID, id+ext)
		if _, err := s.store.Upload(ctx, thumbKey, in.Thumbnail, in.MimeType); err != nil {
			s.purger.Purge(ctx, uploaded)
			return Photo{}, apperr.External(err, "could not store thumbnail")
		}
		p.ThumbnailKey = thumbKey
		uploaded = append(uploaded, thumbKey)
	}

	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockPOI(ctx, tx, p.POIID); err != nil {
			return err
		}
		if p.IsPrimary {
			if _, err := tx.Exec(ctx, `
				UPDATE photos SET is_primary = false
				WHERE poi_id=$1 AND is_primary
			`, p.POIID); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO photos (id, poi_id, user_id, s3_key, thumbnail_key, s3_bucket, s3_url,
			                    original_file_name, file_size, mime_type, width, height, exif_data, date_visited, is_primary)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			RETURNING created_at
		`, p.ID, p.POIID, p.UserID, p.S3Key, nullable(p.ThumbnailKey), p.S3Bucket, p.S3URL,
			p.OriginalFileName, p.FileSize, p.MimeType, p.Width, p.Height, exifArg(p.Exif), p.DateVisited, p.IsPrimary,
		).Scan(&p.CreatedAt)
	})
	if err != nil {
		s.purger.Purge(ctx, uploaded)
		return Photo{}, apperr.FromDB(err, "photo")
	}

	if err := s.sign(ctx, &p); err != nil {
		s.log.WithFields(logrus.Fields{"photo_id": p.ID, "error": err.Error()}).Warn("could not presign uploaded photo")
	}
	return p, nil
}

// SetPrimary makes the photo the only primary photo of its POI. The POI row
// lock serializes concurrent calls for the same POI.
func (s *Service) SetPrimary(ctx context.Context, photoID, callerID string) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var poiID, uploaderID, ownerID string
		err := tx.QueryRow(ctx, `
			SELECT ph.poi_id, ph.user_id, p.user_id
			FROM photos ph
			JOIN pois p ON p.id = ph.poi_id
			WHERE ph.id=$1
		`, photoID).Scan(&poiID, &uploaderID, &ownerID)
		if err != nil {
			return apperr.FromDB(err, "photo")
		}
		if callerID != uploaderID && callerID != ownerID {
			return apperr.Forbidden("only the uploader or the POI owner can change the primary photo")
		}
		if err := lockPOI(ctx, tx, poiID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE photos SET is_primary = false
			WHERE poi_id=$1 AND is_primary AND id <> $2
		`, poiID, photoID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE photos SET is_primary = true WHERE id=$1`, photoID)
		return err
	})
}

// Delete removes a photo. Only the uploader may delete it; owning the POI is
// not enough.
func (s *Service) Delete(ctx context.Context, photoID, callerID string) (cascade.Report, error) {
	var uploaderID, key, thumb string
	err := s.db.QueryRow(ctx, `
		SELECT user_id, s3_key, COALESCE(thumbnail_key, '')
		FROM photos WHERE id=$1
	`, photoID).Scan(&uploaderID, &key, &thumb)
	if err != nil {
		return cascade.Report{}, apperr.FromDB(err, "photo")
	}
	if uploaderID != callerID {
		return cascade.Report{}, apperr.Forbidden("only the uploader can delete this photo")
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM photos WHERE id=$1`, photoID); err != nil {
		return cascade.Report{}, apperr.FromDB(err, "photo")
	}

	keys := []string{key}
	if thumb != "" {
		keys = append(keys, thumb)
	}
	return s.purger.Purge(ctx, keys), nil
}

// Get returns one photo with signed URLs. The viewer must be able to see the
// photo's POI.
func (s *Service) Get(ctx context.Context, photoID, viewerID string) (Photo, error) {
	row := s.db.QueryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id=$1`, photoID)
	p, err := scanPhoto(row)
	if err != nil {
		return Photo{}, apperr.FromDB(err, "photo")
	}
	if err := s.checkCanView(ctx, p.POIID, viewerID); err != nil {
		return Photo{}, err
	}
	if err := s.sign(ctx, &p); err != nil {
		return Photo{}, apperr.External(err, "could not sign photo url")
	}
	return p, nil
}

// ForPOI lists the photos of a POI, primary first, with signed URLs. A POI on
// a private map is Forbidden to anyone but its owner and the map owner.
func (s *Service) ForPOI(ctx context.Context, poiID, viewerID string) ([]Photo, error) {
	if err := s.checkCanView(ctx, poiID, viewerID); err != nil {
		return nil, err
	}
	return s.ForVisiblePOI(ctx, poiID)
}

// ForVisiblePOI is ForPOI for callers that already checked the POI's
// visibility.
func (s *Service) ForVisiblePOI(ctx context.Context, poiID string) ([]Photo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+photoColumns+`
		FROM photos WHERE poi_id=$1
		ORDER BY is_primary DESC, created_at
	`, poiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := []Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range photos {
		if err := s.sign(ctx, &photos[i]); err != nil {
			return nil, apperr.External(err, "could not sign photo url")
		}
	}
	return photos, nil
}

func (s *Service) checkCanView(ctx context.Context, poiID, userID string) error {
	var ownerID, mapOwnerID string
	var mapPrivate bool
	err := s.db.QueryRow(ctx, `
		SELECT p.user_id, COALESCE(m.user_id, ''), COALESCE(m.is_private, false)
		FROM pois p
		LEFT JOIN maps m ON m.id = p.map_id
		WHERE p.id=$1
	`, poiID).Scan(&ownerID, &mapOwnerID, &mapPrivate)
	if err != nil {
		return apperr.FromDB(err, "poi")
	}
	if mapPrivate && userID != ownerID && userID != mapOwnerID {
		return apperr.Forbidden("poi belongs to a private map")
	}
	return nil
}

func (s *Service) sign(ctx context.Context, p *Photo) error {
	if s.store == nil {
		return nil
	}
	u, err := s.store.Presign(ctx, p.S3Key, s.presignTTL)
	if err != nil {
		return err
	}
	p.URL = u
	if p.ThumbnailKey != "" {
		t, err := s.store.Presign(ctx, p.ThumbnailKey, s.presignTTL)
		if err != nil {
			return err
		}
		p.ThumbnailURL = t
	}
	return nil
}

func lockPOI(ctx context.Context, tx pgx.Tx, poiID string) error {
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM pois WHERE id=$1 FOR UPDATE`, poiID).Scan(&id); err != nil {
		return apperr.FromDB(err, "poi")
	}
	return nil
}

func scanPhoto(row pgx.Row) (Photo, error) {
	var p Photo
	err := row.Scan(&p.ID, &p.POIID, &p.UserID, &p.S3Key, &p.ThumbnailKey, &p.S3Bucket, &p.S3URL,
		&p.OriginalFileName, &p.FileSize, &p.MimeType, &p.Width, &p.Height, &p.Exif, &p.DateVisited, &p.IsPrimary, &p.CreatedAt)
	return p, err
}

func mimeTypes() []string {
	out := make([]string, 0, len(allowedMimeTypes))
	for m := range allowedMimeTypes {
		out = append(out, m)
	}
	return out
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func exifArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
