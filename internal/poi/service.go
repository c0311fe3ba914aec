package poi

import (
	"context"
	"sort"
	"strings"

	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/cascade"
	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/history"
	"github.com/apmanager001/tripmaps-sub000/internal/photo"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/geo"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"
	"github.com/apmanager001/tripmaps-sub000/internal/tag"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	MaxRadiusKm = 500
	// nearbyScanLimit caps the bounding-box candidates refined in memory.
	nearbyScanLimit = 1000
)

// listColumns expects the viewer id as $1.
const listColumns = `p.id, p.user_id, COALESCE(p.map_id, ''), p.lat, p.lng, p.location_name, p.description,
		p.date_visited, p.is_private, p.views, p.created_at,
		(SELECT COUNT(*) FROM poi_likes l WHERE l.poi_id = p.id),
		(SELECT COUNT(*) FROM photos ph WHERE ph.poi_id = p.id),
		EXISTS (SELECT 1 FROM poi_likes l WHERE l.poi_id = p.id AND l.user_id = $1),
		EXISTS (SELECT 1 FROM bookmarks b WHERE b.poi_id = p.id AND b.user_id = $1)`

// publicFilter admits POIs without a map, and mapped POIs only when neither
// the map nor the POI is private. It needs maps joined as m.
const publicFilter = `(p.map_id IS NULL OR (NOT m.is_private AND NOT p.is_private))`

type Service struct {
	db     db.DB
	photos *photo.Service
	purger *cascade.Purger
}

func NewService(db db.DB, photos *photo.Service, purger *cascade.Purger) *Service {
	return &Service{db: db, photos: photos, purger: purger}
}

// Validate checks the coordinate ranges. A location name is optional.
func Validate(in Input) error {
	if !geo.ValidLat(in.Lat) || !geo.ValidLng(in.Lng) {
		return apperr.Validation("coordinates out of range")
	}
	return nil
}

// InsertTx writes a POI with its tags and the "create" history entry using q,
// which is expected to be a transaction.
func InsertTx(ctx context.Context, q db.Querier, userID string, in Input) (POI, error) {
	p := POI{
		ID:           uuid.NewString(),
		UserID:       userID,
		MapID:        in.MapID,
		Lat:          in.Lat,
		Lng:          in.Lng,
		LocationName: strings.TrimSpace(in.LocationName),
		Description:  in.Description,
		DateVisited:  in.DateVisited,
		IsPrivate:    in.IsPrivate,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO pois (id, user_id, map_id, lat, lng, location_name, description, date_visited, is_private)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, p.ID, p.UserID, nullable(p.MapID), p.Lat, p.Lng, p.LocationName, p.Description, p.DateVisited, p.IsPrivate,
	).Scan(&p.CreatedAt)
	if err != nil {
		return POI{}, errors.Wrap(err, "could not insert poi")
	}

	if p.Tags, err = tag.Attach(ctx, q, p.ID, in.Tags); err != nil {
		return POI{}, err
	}
	if _, err := history.Record(ctx, q, p.ID, userID, history.ActionCreate, "Created new POI"); err != nil {
		return POI{}, err
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, userID string, in Input) (POI, error) {
	if err := Validate(in); err != nil {
		return POI{}, err
	}

	var created POI
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if in.MapID != "" {
			var ownerID string
			err := tx.QueryRow(ctx, `SELECT user_id FROM maps WHERE id=$1 FOR SHARE`, in.MapID).Scan(&ownerID)
			if err != nil {
				return apperr.FromDB(err, "map")
			}
			if ownerID != userID {
				return apperr.Forbidden("only the map owner can add POIs to it")
			}
		}
		var err error
		created, err = InsertTx(ctx, tx, userID, in)
		return err
	})
	if err != nil {
		return POI{}, apperr.FromDB(err, "poi")
	}
	return created, nil
}

// Get returns a POI with its tags, photos and the viewer's like and bookmark
// state. Non-owner views bump the view counter.
func (s *Service) Get(ctx context.Context, poiID, viewerID string) (POI, error) {
	var p POI
	var mapOwnerID string
	var mapPrivate bool
	err := s.db.QueryRow(ctx, `
		SELECT p.id, p.user_id, COALESCE(p.map_id, ''), p.lat, p.lng, p.location_name, p.description,
		       p.date_visited, p.is_private, p.views, p.created_at,
		       COALESCE(m.user_id, ''), COALESCE(m.is_private, false)
		FROM pois p
		LEFT JOIN maps m ON m.id = p.map_id
		WHERE p.id=$1
	`, poiID).Scan(&p.ID, &p.UserID, &p.MapID, &p.Lat, &p.Lng, &p.LocationName, &p.Description,
		&p.DateVisited, &p.IsPrivate, &p.Views, &p.CreatedAt, &mapOwnerID, &mapPrivate)
	if err != nil {
		return POI{}, apperr.FromDB(err, "poi")
	}
	if mapPrivate && viewerID != p.UserID && viewerID != mapOwnerID {
		return POI{}, apperr.Forbidden("poi belongs to a private map")
	}

	if viewerID != p.UserID {
		err := s.db.QueryRow(ctx, `UPDATE pois SET views = views + 1 WHERE id=$1 RETURNING views`, p.ID).Scan(&p.Views)
		if err != nil {
			return POI{}, apperr.FromDB(err, "poi")
		}
	}

	err = s.db.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM poi_likes WHERE poi_id=$1),
		       EXISTS (SELECT 1 FROM poi_likes WHERE poi_id=$1 AND user_id=$2),
		       EXISTS (SELECT 1 FROM bookmarks WHERE poi_id=$1 AND user_id=$2)
	`, p.ID, viewerID).Scan(&p.Likes, &p.Liked, &p.Bookmarked)
	if err != nil {
		return POI{}, errors.Wrap(err, "could not load poi stats")
	}

	tags, err := tag.ForPOIs(ctx, s.db, []string{p.ID})
	if err != nil {
		return POI{}, err
	}
	p.Tags = nonNilTags(tags[p.ID])

	if p.Photos, err = s.photos.ForVisiblePOI(ctx, p.ID); err != nil {
		return POI{}, err
	}
	p.PhotoCount = len(p.Photos)
	return p, nil
}

func (s *Service) Update(ctx context.Context, poiID, callerID string, patch Patch) (POI, error) {
	var p POI
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id, user_id, COALESCE(map_id, ''), lat, lng, location_name, description,
			       date_visited, is_private, views, created_at
			FROM pois WHERE id=$1 FOR UPDATE
		`, poiID).Scan(&p.ID, &p.UserID, &p.MapID, &p.Lat, &p.Lng, &p.LocationName, &p.Description,
			&p.DateVisited, &p.IsPrivate, &p.Views, &p.CreatedAt)
		if err != nil {
			return apperr.FromDB(err, "poi")
		}
		if p.UserID != callerID {
			return apperr.Forbidden("only the owner can edit this poi")
		}

		changed := apply(&p, patch)
		if err := Validate(Input{Lat: p.Lat, Lng: p.Lng}); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE pois
			SET lat=$2, lng=$3, location_name=$4, description=$5, date_visited=$6, is_private=$7
			WHERE id=$1
		`, p.ID, p.Lat, p.Lng, p.LocationName, p.Description, p.DateVisited, p.IsPrivate); err != nil {
			return err
		}

		if patch.Tags != nil {
			if p.Tags, err = tag.Replace(ctx, tx, p.ID, *patch.Tags); err != nil {
				return err
			}
			changed = append(changed, "tags")
		} else {
			tags, err := tag.ForPOIs(ctx, tx, []string{p.ID})
			if err != nil {
				return err
			}
			p.Tags = nonNilTags(tags[p.ID])
		}

		summary := "Updated POI"
		if len(changed) > 0 {
			summary = "Updated " + strings.Join(changed, ", ")
		}
		_, err = history.Record(ctx, tx, p.ID, callerID, history.ActionUpdate, summary)
		return err
	})
	if err != nil {
		return POI{}, apperr.FromDB(err, "poi")
	}
	return p, nil
}

// Delete removes the POI with its photos, tag links, likes and bookmarks.
// Owners and staff may delete. Stored files are purged after commit.
func (s *Service) Delete(ctx context.Context, poiID, callerID, callerRole string) (cascade.Report, error) {
	var keys []string
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var ownerID string
		if err := tx.QueryRow(ctx, `SELECT user_id FROM pois WHERE id=$1 FOR UPDATE`, poiID).Scan(&ownerID); err != nil {
			return apperr.FromDB(err, "poi")
		}
		if ownerID != callerID && !auth.IsStaff(callerRole) {
			return apperr.Forbidden("only the owner can delete this poi")
		}

		var err error
		if keys, err = cascade.DeletePOITx(ctx, tx, poiID); err != nil {
			return err
		}
		_, err = history.Record(ctx, tx, poiID, callerID, history.ActionDelete, "Deleted POI")
		return err
	})
	if err != nil {
		return cascade.Report{}, apperr.FromDB(err, "poi")
	}
	return s.purger.Purge(ctx, keys), nil
}

// ToggleLike flips the caller's like on a POI. The POI row lock serializes
// toggles on the same POI.
func (s *Service) ToggleLike(ctx context.Context, poiID, userID string) (LikeState, error) {
	var state LikeState
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var ownerID, mapOwnerID string
		var mapPrivate bool
		err := tx.QueryRow(ctx, `
			SELECT p.user_id, COALESCE(m.user_id, ''), COALESCE(m.is_private, false)
			FROM pois p
			LEFT JOIN maps m ON m.id = p.map_id
			WHERE p.id=$1
			FOR UPDATE OF p
		`, poiID).Scan(&ownerID, &mapOwnerID, &mapPrivate)
		if err != nil {
			return apperr.FromDB(err, "poi")
		}
		if mapPrivate && userID != ownerID && userID != mapOwnerID {
			return apperr.Forbidden("poi belongs to a private map")
		}

		res, err := tx.Exec(ctx, `DELETE FROM poi_likes WHERE user_id=$1 AND poi_id=$2`, userID, poiID)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx, `INSERT INTO poi_likes (user_id, poi_id) VALUES ($1,$2)`, userID, poiID); err != nil {
				return err
			}
			state.Liked = true
		}
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM poi_likes WHERE poi_id=$1`, poiID).Scan(&state.Likes)
	})
	if err != nil {
		return LikeState{}, apperr.FromDB(err, "poi")
	}
	return state, nil
}

// ListForMap returns the POIs of a map in creation order. Callers check map
// visibility first.
func (s *Service) ListForMap(ctx context.Context, mapID, viewerID string) ([]POI, error) {
	return s.list(ctx, `
		SELECT `+listColumns+`
		FROM pois p
		WHERE p.map_id = $2
		ORDER BY p.created_at, p.id
	`, viewerID, mapID)
}

// ListByUser shows the owner every POI and everyone else the public ones.
func (s *Service) ListByUser(ctx context.Context, userID, viewerID string, pg page.Page) ([]POI, error) {
	return s.list(ctx, `
		SELECT `+listColumns+`
		FROM pois p
		LEFT JOIN maps m ON m.id = p.map_id
		WHERE p.user_id = $2 AND ($2 = $1 OR `+publicFilter+`)
		ORDER BY p.created_at DESC
		LIMIT $3 OFFSET $4
	`, viewerID, userID, pg.Limit, pg.Offset())
}

func (s *Service) SearchByName(ctx context.Context, q, viewerID string, pg page.Page) ([]POI, error) {
	pattern, err := likePattern(q)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, `
		SELECT `+listColumns+`
		FROM pois p
		LEFT JOIN maps m ON m.id = p.map_id
		WHERE p.location_name ILIKE $2 AND `+publicFilter+`
		ORDER BY p.created_at DESC
		LIMIT $3 OFFSET $4
	`, viewerID, pattern, pg.Limit, pg.Offset())
}

// Search matches q against the name, the description and the tag names of
// public POIs.
func (s *Service) Search(ctx context.Context, q, viewerID string, pg page.Page) ([]POI, error) {
	pattern, err := likePattern(q)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, `
		SELECT `+listColumns+`
		FROM pois p
		LEFT JOIN maps m ON m.id = p.map_id
		WHERE (p.location_name ILIKE $2
		       OR p.description ILIKE $2
		       OR EXISTS (SELECT 1 FROM poi_tags pt JOIN tags t ON t.id = pt.tag_id
		                  WHERE pt.poi_id = p.id AND t.name ILIKE $2))
		  AND `+publicFilter+`
		ORDER BY p.created_at DESC
		LIMIT $3 OFFSET $4
	`, viewerID, pattern, pg.Limit, pg.Offset())
}

// Nearby returns public POIs within radiusKm, nearest first. The bounding box
// contains the whole circle, candidates are taken nearest first in degree
// space and the haversine distance refines.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64, viewerID string, pg page.Page) ([]POI, error) {
	if !geo.ValidLat(lat) || !geo.ValidLng(lng) {
		return nil, apperr.Validation("coordinates out of range")
	}
	if radiusKm <= 0 || radiusKm > MaxRadiusKm {
		return nil, apperr.Validation("radius_km must be between 0 and 500")
	}

	box := geo.BoundingBox(lat, lng, radiusKm)
	lngs := box.LngRanges()
	candidates, err := s.list(ctx, `
		SELECT `+listColumns+`
		FROM pois p
		LEFT JOIN maps m ON m.id = p.map_id
		WHERE p.lat BETWEEN $2 AND $3
		  AND (p.lng BETWEEN $4 AND $5 OR p.lng BETWEEN $6 AND $7)
		  AND `+publicFilter+`
		ORDER BY power(p.lat - $8, 2) + power(LEAST(ABS(p.lng - $9), 360 - ABS(p.lng - $9)) * $10, 2)
		LIMIT $11
	`, viewerID, box.MinLat, box.MaxLat, lngs[0][0], lngs[0][1], lngs[1][0], lngs[1][1],
		lat, lng, geo.LngScale(lat), nearbyScanLimit)
	if err != nil {
		return nil, err
	}

	within := candidates[:0]
	for _, p := range candidates {
		d := geo.HaversineKm(lat, lng, p.Lat, p.Lng)
		if d <= radiusKm {
			p.DistanceKm = &d
			within = append(within, p)
		}
	}
	sort.SliceStable(within, func(i, j int) bool { return *within[i].DistanceKm < *within[j].DistanceKm })

	start := pg.Offset()
	if start < 0 || start >= len(within) {
		return []POI{}, nil
	}
	end := start + pg.Limit
	if end > len(within) {
		end = len(within)
	}
	return within[start:end], nil
}

// History lists the edits of a POI the viewer can see, newest first.
func (s *Service) History(ctx context.Context, poiID, viewerID string, pg page.Page) ([]history.Entry, error) {
	if err := s.checkVisible(ctx, poiID, viewerID); err != nil {
		return nil, err
	}
	return history.ForPOI(ctx, s.db, poiID, pg.Limit, pg.Offset())
}

func (s *Service) checkVisible(ctx context.Context, poiID, viewerID string) error {
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
	if mapPrivate && viewerID != ownerID && viewerID != mapOwnerID {
		return apperr.Forbidden("poi belongs to a private map")
	}
	return nil
}

func (s *Service) list(ctx context.Context, sql string, args ...any) ([]POI, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "could not list pois")
	}
	defer rows.Close()

	pois := []POI{}
	ids := []string{}
	for rows.Next() {
		var p POI
		if err := rows.Scan(&p.ID, &p.UserID, &p.MapID, &p.Lat, &p.Lng, &p.LocationName, &p.Description,
			&p.DateVisited, &p.IsPrivate, &p.Views, &p.CreatedAt,
			&p.Likes, &p.PhotoCount, &p.Liked, &p.Bookmarked); err != nil {
			return nil, err
		}
		pois = append(pois, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags, err := tag.ForPOIs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range pois {
		pois[i].Tags = nonNilTags(tags[pois[i].ID])
	}
	return pois, nil
}

func apply(p *POI, patch Patch) []string {
	var changed []string
	if patch.Lat != nil && *patch.Lat != p.Lat {
		p.Lat = *patch.Lat
		changed = append(changed, "lat")
	}
	if patch.Lng != nil && *patch.Lng != p.Lng {
		p.Lng = *patch.Lng
		changed = append(changed, "lng")
	}
	if patch.LocationName != nil {
		if name := strings.TrimSpace(*patch.LocationName); name != p.LocationName {
			p.LocationName = name
			changed = append(changed, "location_name")
		}
	}
	if patch.Description != nil && *patch.Description != p.Description {
		p.Description = *patch.Description
		changed = append(changed, "description")
	}
	if patch.DateVisited != nil {
		p.DateVisited = patch.DateVisited
		changed = append(changed, "date_visited")
	}
	if patch.IsPrivate != nil && *patch.IsPrivate != p.IsPrivate {
		p.IsPrivate = *patch.IsPrivate
		changed = append(changed, "is_private")
	}
	return changed
}

func likePattern(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", apperr.Validation("q is required")
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%", nil
}

func nonNilTags(tags []tag.Tag) []tag.Tag {
	if tags == nil {
		return []tag.Tag{}
	}
	return tags
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
