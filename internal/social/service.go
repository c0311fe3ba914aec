// Package social holds the relations between users and content: follows,
// bookmarks, map comments and comment likes, plus the follow feed.
package social

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/apmanager001/tripmaps-sub000/internal/alert"
	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/logging"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Service struct {
	db     db.DB
	alerts Alerter
	log    *logrus.Logger
}

func NewService(db db.DB, alerts Alerter, log *logrus.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{db: db, alerts: alerts, log: log}
}

// Follow records that followerID follows followingID. Following twice is a
// no-op and raises no second alert.
func (s *Service) Follow(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return apperr.Validation("cannot follow yourself")
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, followingID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("user")
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO follows (follower_id, following_id)
		VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, followerID, followingID)
	if err != nil {
		return apperr.FromDB(err, "follow")
	}
	if tag.RowsAffected() > 0 {
		s.alert(ctx, alert.Input{
			UserID:    followingID,
			ActorID:   followerID,
			Type:      alert.TypeFollow,
			Message:   "You have a new follower",
			TargetURL: "/users/" + followerID,
		})
	}
	return nil
}

func (s *Service) Unfollow(ctx context.Context, followerID, followingID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM follows WHERE follower_id=$1 AND following_id=$2`, followerID, followingID)
	return err
}

func (s *Service) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id=$1 AND following_id=$2)
	`, followerID, followingID).Scan(&ok)
	return ok, err
}

func (s *Service) Followers(ctx context.Context, userID string, pg page.Page) ([]UserSummary, error) {
	return s.users(ctx, `
		SELECT u.id, u.username, u.full_name, u.avatar_url, f.created_at
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.following_id=$1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pg)
}

func (s *Service) Following(ctx context.Context, userID string, pg page.Page) ([]UserSummary, error) {
	return s.users(ctx, `
		SELECT u.id, u.username, u.full_name, u.avatar_url, f.created_at
		FROM follows f
		JOIN users u ON u.id = f.following_id
		WHERE f.follower_id=$1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pg)
}

// ToggleBookmark adds or removes a bookmark on exactly one map or POI the
// user can see.
func (s *Service) ToggleBookmark(ctx context.Context, userID string, target BookmarkTarget) (BookmarkState, error) {
	if (target.MapID == "") == (target.POIID == "") {
		return BookmarkState{}, apperr.Validation("exactly one of map_id or poi_id is required")
	}

	column, id := "map_id", target.MapID
	if target.POIID != "" {
		column, id = "poi_id", target.POIID
		if err := s.checkPOIVisible(ctx, id, userID); err != nil {
			return BookmarkState{}, err
		}
	} else if _, _, err := s.visibleMap(ctx, id, userID); err != nil {
		return BookmarkState{}, err
	}

	var state BookmarkState
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		res, err := tx.Exec(ctx, `DELETE FROM bookmarks WHERE user_id=$1 AND `+column+`=$2`, userID, id)
		if err != nil {
			return err
		}
		if res.RowsAffected() > 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO bookmarks (id, user_id, map_id, poi_id)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT DO NOTHING
		`, uuid.NewString(), userID, nullable(target.MapID), nullable(target.POIID))
		state.Bookmarked = err == nil
		return err
	})
	if err != nil {
		return BookmarkState{}, apperr.FromDB(err, "bookmark")
	}
	return state, nil
}

func (s *Service) Bookmarks(ctx context.Context, userID string, pg page.Page) ([]Bookmark, error) {
	rows, err := s.db.Query(ctx, `
		SELECT b.id, b.user_id, COALESCE(b.map_id, ''), COALESCE(b.poi_id, ''),
		       COALESCE(m.map_name, p.location_name, ''), b.created_at
		FROM bookmarks b
		LEFT JOIN maps m ON m.id = b.map_id
		LEFT JOIN pois p ON p.id = b.poi_id
		WHERE b.user_id=$1
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pg.Limit, pg.Offset())
	if err != nil {
		return nil, errors.Wrap(err, "could not list bookmarks")
	}
	defer rows.Close()

	bookmarks := []Bookmark{}
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.MapID, &b.POIID, &b.Title, &b.CreatedAt); err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

func (s *Service) AddComment(ctx context.Context, mapID, userID, body string) (Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, apperr.Validation("comment must not be empty")
	}
	if utf8.RuneCountInString(body) > MaxCommentLength {
		return Comment{}, apperr.Newf(apperr.KindValidation, "comment exceeds %d characters", MaxCommentLength)
	}
	ownerID, name, err := s.visibleMap(ctx, mapID, userID)
	if err != nil {
		return Comment{}, err
	}

	c := Comment{ID: uuid.NewString(), MapID: mapID, UserID: userID, Body: body}
	err = s.db.QueryRow(ctx, `
		INSERT INTO map_comments (id, map_id, user_id, body)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, c.ID, c.MapID, c.UserID, c.Body).Scan(&c.CreatedAt)
	if err != nil {
		return Comment{}, apperr.FromDB(err, "comment")
	}

	s.alert(ctx, alert.Input{
		UserID:    ownerID,
		ActorID:   userID,
		Type:      alert.TypeComment,
		Message:   fmt.Sprintf("New comment on %q", name),
		TargetURL: "/maps/" + mapID,
	})
	return c, nil
}

// Comments lists a visible map's comments oldest first, with like counts and
// the viewer's like state.
func (s *Service) Comments(ctx context.Context, mapID, viewerID string, pg page.Page) ([]Comment, error) {
	if _, _, err := s.visibleMap(ctx, mapID, viewerID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.map_id, c.user_id, COALESCE(u.username, ''), c.body, c.created_at,
		       (SELECT COUNT(*) FROM comment_likes cl WHERE cl.comment_id = c.id),
		       EXISTS (SELECT 1 FROM comment_likes cl WHERE cl.comment_id = c.id AND cl.user_id = $2)
		FROM map_comments c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.map_id = $1
		ORDER BY c.created_at
		LIMIT $3 OFFSET $4
	`, mapID, viewerID, pg.Limit, pg.Offset())
	if err != nil {
		return nil, errors.Wrap(err, "could not list comments")
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.MapID, &c.UserID, &c.Username, &c.Body, &c.CreatedAt, &c.Likes, &c.Liked); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// DeleteComment lets the author, the map owner or staff remove a comment
// together with its likes.
func (s *Service) DeleteComment(ctx context.Context, commentID, callerID, callerRole string) error {
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var authorID, mapOwnerID string
		err := tx.QueryRow(ctx, `
			SELECT c.user_id, m.user_id
			FROM map_comments c
			JOIN maps m ON m.id = c.map_id
			WHERE c.id=$1
			FOR UPDATE OF c
		`, commentID).Scan(&authorID, &mapOwnerID)
		if err != nil {
			return apperr.FromDB(err, "comment")
		}
		if callerID != authorID && callerID != mapOwnerID && !auth.IsStaff(callerRole) {
			return apperr.Forbidden("cannot delete this comment")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM comment_likes WHERE comment_id=$1`, commentID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM map_comments WHERE id=$1`, commentID)
		return err
	})
	return apperr.FromDB(err, "comment")
}

func (s *Service) ToggleCommentLike(ctx context.Context, commentID, userID string) (LikeState, error) {
	var state LikeState
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var ownerID string
		var private bool
		err := tx.QueryRow(ctx, `
			SELECT m.user_id, m.is_private
			FROM map_comments c
			JOIN maps m ON m.id = c.map_id
			WHERE c.id=$1
			FOR UPDATE OF c
		`, commentID).Scan(&ownerID, &private)
		if err != nil {
			return apperr.FromDB(err, "comment")
		}
		if private && ownerID != userID {
			return apperr.Forbidden("map is private")
		}

		res, err := tx.Exec(ctx, `DELETE FROM comment_likes WHERE user_id=$1 AND comment_id=$2`, userID, commentID)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx, `INSERT INTO comment_likes (user_id, comment_id) VALUES ($1,$2)`, userID, commentID); err != nil {
				return err
			}
			state.Liked = true
		}
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM comment_likes WHERE comment_id=$1`, commentID).Scan(&state.Likes)
	})
	if err != nil {
		return LikeState{}, apperr.FromDB(err, "comment")
	}
	return state, nil
}

// Feed lists public maps of the users userID follows, newest first.
func (s *Service) Feed(ctx context.Context, userID string, pg page.Page) ([]FeedMap, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.user_id, u.username, m.map_name, m.likes, m.views, m.created_at,
		       (SELECT COUNT(*) FROM pois p WHERE p.map_id = m.id)
		FROM maps m
		JOIN follows f ON f.following_id = m.user_id
		JOIN users u ON u.id = m.user_id
		WHERE f.follower_id = $1 AND NOT m.is_private
		ORDER BY m.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pg.Limit, pg.Offset())
	if err != nil {
		return nil, errors.Wrap(err, "could not load feed")
	}
	defer rows.Close()

	feed := []FeedMap{}
	for rows.Next() {
		var m FeedMap
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.MapName, &m.Likes, &m.Views, &m.CreatedAt, &m.POICount); err != nil {
			return nil, err
		}
		feed = append(feed, m)
	}
	return feed, rows.Err()
}

func (s *Service) users(ctx context.Context, sql, userID string, pg page.Page) ([]UserSummary, error) {
	rows, err := s.db.Query(ctx, sql, userID, pg.Limit, pg.Offset())
	if err != nil {
		return nil, errors.Wrap(err, "could not list users")
	}
	defer rows.Close()

	users := []UserSummary{}
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.AvatarURL, &u.Since); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// visibleMap returns the owner and name of a map userID may see.
func (s *Service) visibleMap(ctx context.Context, mapID, userID string) (string, string, error) {
	var ownerID, name string
	var private bool
	err := s.db.QueryRow(ctx, `SELECT user_id, map_name, is_private FROM maps WHERE id=$1`, mapID).Scan(&ownerID, &name, &private)
	if err != nil {
		return "", "", apperr.FromDB(err, "map")
	}
	if private && ownerID != userID {
		return "", "", apperr.Forbidden("map is private")
	}
	return ownerID, name, nil
}

func (s *Service) checkPOIVisible(ctx context.Context, poiID, userID string) error {
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

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
