// Package tripmap owns maps: named, optionally private collections of POIs
// with like and view counters.
package tripmap

import (
	"context"
	"fmt"
	"strings"

	"github.com/apmanager001/tripmaps-sub000/internal/alert"
	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/cascade"
	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/logging"
	"github.com/apmanager001/tripmaps-sub000/internal/poi"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-polyline"
)

const listColumns = `m.id, m.user_id, m.map_name, m.is_private, m.likes, m.views, m.created_at,
		(SELECT COUNT(*) FROM pois p WHERE p.map_id = m.id)`

type Service struct {
	db     db.DB
	pois   *poi.Service
	purger *cascade.Purger
	alerts Alerter
	log    *logrus.Logger
}

func NewService(db db.DB, pois *poi.Service, purger *cascade.Purger, alerts Alerter, log *logrus.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{db: db, pois: pois, purger: purger, alerts: alerts, log: log}
}

// Create writes the map and one POI per coordinate in a single transaction.
// Every coordinate is validated before anything is written.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (Map, error) {
	name := strings.TrimSpace(in.MapName)
	if name == "" {
		return Map{}, apperr.Validation("map_name is required")
	}
	for i, c := range in.Coords {
		if err := poi.Validate(c); err != nil {
			return Map{}, apperr.Newf(apperr.KindValidation, "coordinate %d: %s", i+1, err.Error())
		}
	}

	m := Map{
		ID:        uuid.NewString(),
		UserID:    userID,
		MapName:   name,
		IsPrivate: in.IsPrivate,
	}
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO maps (id, user_id, map_name, is_private)
			VALUES ($1,$2,$3,$4)
			RETURNING created_at
		`, m.ID, m.UserID, m.MapName, m.IsPrivate).Scan(&m.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "could not insert map")
		}

		m.POIs = make([]poi.POI, 0, len(in.Coords))
		for _, c := range in.Coords {
			c.MapID = m.ID
			p, err := poi.InsertTx(ctx, tx, userID, c)
			if err != nil {
				return err
			}
			m.POIs = append(m.POIs, p)
		}
		return nil
	})
	if err != nil {
		return Map{}, apperr.FromDB(err, "map")
	}
	m.POICount = len(m.POIs)
	m.Route = route(m.POIs)
	return m, nil
}

// Get returns the map for viewerID, who may be "" for anonymous readers.
// Private maps are visible to their owner only. Reads by anyone but the owner
// add one view.
func (s *Service) Get(ctx context.Context, mapID, viewerID string) (Map, error) {
	var m Map
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, map_name, is_private, likes, views, created_at
		FROM maps WHERE id=$1
	`, mapID).Scan(&m.ID, &m.UserID, &m.MapName, &m.IsPrivate, &m.Likes, &m.Views, &m.CreatedAt)
	if err != nil {
		return Map{}, apperr.FromDB(err, "map")
	}
	if m.IsPrivate && viewerID != m.UserID {
		return Map{}, apperr.Forbidden("map is private")
	}

	if viewerID != m.UserID {
		err := s.db.QueryRow(ctx, `UPDATE maps SET views = views + 1 WHERE id=$1 RETURNING views`, m.ID).Scan(&m.Views)
		if err != nil {
			return Map{}, apperr.FromDB(err, "map")
		}
	}

	err = s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM map_likes WHERE map_id=$1 AND user_id=$2),
		       EXISTS (SELECT 1 FROM bookmarks WHERE map_id=$1 AND user_id=$2),
		       (SELECT COUNT(*) FROM map_comments WHERE map_id=$1)
	`, m.ID, viewerID).Scan(&m.Liked, &m.Bookmarked, &m.CommentCount)
	if err != nil {
		return Map{}, errors.Wrap(err, "could not load map stats")
	}

	if m.POIs, err = s.pois.ListForMap(ctx, m.ID, viewerID); err != nil {
		return Map{}, err
	}
	m.POICount = len(m.POIs)
	m.Route = route(m.POIs)
	return m, nil
}

func (s *Service) Update(ctx context.Context, mapID, callerID string, patch Patch) (Map, error) {
	var m Map
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id, user_id, map_name, is_private, likes, views, created_at
			FROM maps WHERE id=$1 FOR UPDATE
		`, mapID).Scan(&m.ID, &m.UserID, &m.MapName, &m.IsPrivate, &m.Likes, &m.Views, &m.CreatedAt)
		if err != nil {
			return apperr.FromDB(err, "map")
		}
		if m.UserID != callerID {
			return apperr.Forbidden("only the owner can edit this map")
		}

		if patch.MapName != nil {
			name := strings.TrimSpace(*patch.MapName)
			if name == "" {
				return apperr.Validation("map_name must not be empty")
			}
			m.MapName = name
		}
		if patch.IsPrivate != nil {
			m.IsPrivate = *patch.IsPrivate
		}

		_, err = tx.Exec(ctx, `UPDATE maps SET map_name=$2, is_private=$3 WHERE id=$1`, m.ID, m.MapName, m.IsPrivate)
		return err
	})
	if err != nil {
		return Map{}, apperr.FromDB(err, "map")
	}
	return m, nil
}

// Delete removes the map and everything under it. Owners and staff may
// delete. Photo files are purged after commit and failures only show up in
// the report.
func (s *Service) Delete(ctx context.Context, mapID, callerID, callerRole string) (cascade.Report, error) {
	var keys []string
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var ownerID string
		if err := tx.QueryRow(ctx, `SELECT user_id FROM maps WHERE id=$1 FOR UPDATE`, mapID).Scan(&ownerID); err != nil {
			return apperr.FromDB(err, "map")
		}
		if ownerID != callerID && !auth.IsStaff(callerRole) {
			return apperr.Forbidden("only the owner can delete this map")
		}
		var err error
		keys, err = cascade.DeleteMapTx(ctx, tx, mapID)
		return err
	})
	if err != nil {
		return cascade.Report{}, apperr.FromDB(err, "map")
	}
	return s.purger.Purge(ctx, keys), nil
}

// ToggleLike flips the user's like and moves the counter with it. The map row
// lock serializes concurrent toggles.
func (s *Service) ToggleLike(ctx context.Context, mapID, userID string) (LikeState, error) {
	var state LikeState
	var ownerID, name string
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var private bool
		err := tx.QueryRow(ctx, `
			SELECT user_id, map_name, is_private FROM maps WHERE id=$1 FOR UPDATE
		`, mapID).Scan(&ownerID, &name, &private)
		if err != nil {
			return apperr.FromDB(err, "map")
		}
		if private && userID != ownerID {
			return apperr.Forbidden("map is private")
		}

		res, err := tx.Exec(ctx, `DELETE FROM map_likes WHERE user_id=$1 AND map_id=$2`, userID, mapID)
		if err != nil {
			return err
		}
		if res.RowsAffected() > 0 {
			return tx.QueryRow(ctx, `
				UPDATE maps SET likes = GREATEST(likes - 1, 0) WHERE id=$1 RETURNING likes
			`, mapID).Scan(&state.Likes)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO map_likes (user_id, map_id) VALUES ($1,$2)`, userID, mapID); err != nil {
			return err
		}
		state.Liked = true
		return tx.QueryRow(ctx, `UPDATE maps SET likes = likes + 1 WHERE id=$1 RETURNING likes`, mapID).Scan(&state.Likes)
	})
	if err != nil {
		return LikeState{}, apperr.FromDB(err, "map")
	}

	if state.Liked {
		s.alert(ctx, alert.Input{
			UserID:    ownerID,
			ActorID:   userID,
			Type:      alert.TypeLike,
			Message:   fmt.Sprintf("Your map %q got a new like", name),
			TargetURL: "/maps/" + mapID,
		})
	}
	return state, nil
}

// ListByUser shows private maps to their owner only.
func (s *Service) ListByUser(ctx context.Context, userID, viewerID string, pg page.Page) ([]Map, error) {
	return s.list(ctx, `
		SELECT `+listColumns+`
		FROM maps m
		WHERE m.user_id = $1 AND (NOT m.is_private OR m.user_id = $2)
		ORDER BY m.created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, viewerID, pg.Limit, pg.Offset())
}

func (s *Service) Popular(ctx context.Context, pg page.Page) ([]Map, error) {
	return s.list(ctx, `
		SELECT `+listColumns+`
		FROM maps m
		WHERE NOT m.is_private
		ORDER BY m.likes DESC, m.views DESC, m.created_at DESC
		LIMIT $1 OFFSET $2
	`, pg.Limit, pg.Offset())
}

func (s *Service) SearchByName(ctx context.Context, q string, pg page.Page) ([]Map, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("q is required")
	}
	pattern := "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q) + "%"
	return s.list(ctx, `
		SELECT `+listColumns+`
		FROM maps m
		WHERE NOT m.is_private AND m.map_name ILIKE $1
		ORDER BY m.likes DESC, m.created_at DESC
		LIMIT $2 OFFSET $3
	`, pattern, pg.Limit, pg.Offset())
}

func (s *Service) list(ctx context.Context, sql string, args ...any) ([]Map, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "could not list maps")
	}
	defer rows.Close()

	maps := []Map{}
	for rows.Next() {
		var m Map
		if err := rows.Scan(&m.ID, &m.UserID, &m.MapName, &m.IsPrivate, &m.Likes, &m.Views, &m.CreatedAt, &m.POICount); err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

func (s *Service) alert(ctx context.Context, in alert.Input) {
	if s.alerts == nil {
		return
	}
	if _, err := s.alerts.Create(ctx, in); err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id": in.UserID,
			"type":    in.Type,
			"error":   err.Error(),
		}).Warn("could not raise alert")
	}
}

func route(pois []poi.POI) string {
	if len(pois) == 0 {
		return ""
	}
	coords := make([][]float64, len(pois))
	for i, p := range pois {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}
