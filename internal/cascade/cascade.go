// Package cascade removes an entity together with everything that hangs off
// it. Database rows go inside the caller's transaction; object-store files
// are purged after commit on a best-effort basis.
package cascade

import (
	"context"
	"sort"
	"sync"

	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/logging"
	"github.com/apmanager001/tripmaps-sub000/internal/objectstore"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

var mapStatements = []string{
	`DELETE FROM comment_likes WHERE comment_id IN (SELECT id FROM map_comments WHERE map_id=$1)`,
	`DELETE FROM map_comments WHERE map_id=$1`,
	`DELETE FROM bookmarks WHERE map_id=$1 OR poi_id IN (SELECT id FROM pois WHERE map_id=$1)`,
	`DELETE FROM map_likes WHERE map_id=$1`,
	`DELETE FROM poi_likes WHERE poi_id IN (SELECT id FROM pois WHERE map_id=$1)`,
	`DELETE FROM poi_tags WHERE poi_id IN (SELECT id FROM pois WHERE map_id=$1)`,
	`DELETE FROM photos WHERE poi_id IN (SELECT id FROM pois WHERE map_id=$1)`,
	`DELETE FROM pois WHERE map_id=$1`,
	`DELETE FROM maps WHERE id=$1`,
}

var poiStatements = []string{
	`DELETE FROM bookmarks WHERE poi_id=$1`,
	`DELETE FROM poi_likes WHERE poi_id=$1`,
	`DELETE FROM poi_tags WHERE poi_id=$1`,
	`DELETE FROM photos WHERE poi_id=$1`,
	`DELETE FROM pois WHERE id=$1`,
}

var userStatements = []string{
	`DELETE FROM comment_likes WHERE user_id=$1 OR comment_id IN (SELECT c.id FROM map_comments c WHERE c.user_id=$1 OR c.map_id IN (SELECT id FROM maps WHERE user_id=$1))`,
	`DELETE FROM map_comments WHERE user_id=$1 OR map_id IN (SELECT id FROM maps WHERE user_id=$1)`,
	`DELETE FROM bookmarks WHERE user_id=$1 OR map_id IN (SELECT id FROM maps WHERE user_id=$1) OR poi_id IN (SELECT id FROM pois WHERE user_id=$1)`,
	`UPDATE maps SET likes = GREATEST(likes - 1, 0) WHERE user_id <> $1 AND id IN (SELECT map_id FROM map_likes WHERE user_id=$1)`,
	`DELETE FROM map_likes WHERE user_id=$1 OR map_id IN (SELECT id FROM maps WHERE user_id=$1)`,
	`DELETE FROM poi_likes WHERE user_id=$1 OR poi_id IN (SELECT id FROM pois WHERE user_id=$1)`,
	`DELETE FROM poi_tags WHERE poi_id IN (SELECT id FROM pois WHERE user_id=$1)`,
	`DELETE FROM photos WHERE user_id=$1 OR poi_id IN (SELECT id FROM pois WHERE user_id=$1)`,
	`DELETE FROM pois WHERE user_id=$1`,
	`DELETE FROM maps WHERE user_id=$1`,
	`DELETE FROM follows WHERE follower_id=$1 OR following_id=$1`,
	`DELETE FROM alerts WHERE user_id=$1`,
	`DELETE FROM flags WHERE reporter_id=$1`,
	`DELETE FROM refresh_tokens WHERE user_id=$1`,
	`DELETE FROM users WHERE id=$1`,
}

// DeleteMapTx deletes a map, its POIs and all of their dependents. It returns
// the object keys of the removed photos.
func DeleteMapTx(ctx context.Context, tx db.Querier, mapID string) ([]string, error) {
	keys, err := collectKeys(ctx, tx, `
		SELECT ph.s3_key, COALESCE(ph.thumbnail_key, '')
		FROM photos ph
		JOIN pois p ON p.id = ph.poi_id
		WHERE p.map_id=$1
	`, mapID)
	if err != nil {
		return nil, err
	}
	if err := run(ctx, tx, mapStatements, mapID); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeletePOITx deletes a POI with its photos, tag links, likes and bookmarks.
func DeletePOITx(ctx context.Context, tx db.Querier, poiID string) ([]string, error) {
	keys, err := collectKeys(ctx, tx, `
		SELECT s3_key, COALESCE(thumbnail_key, '')
		FROM photos WHERE poi_id=$1
	`, poiID)
	if err != nil {
		return nil, err
	}
	if err := run(ctx, tx, poiStatements, poiID); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteUserTx deletes an account and everything it owns.
func DeleteUserTx(ctx context.Context, tx db.Querier, userID string) ([]string, error) {
	keys, err := collectKeys(ctx, tx, `
		SELECT s3_key, COALESCE(thumbnail_key, '')
		FROM photos
		WHERE user_id=$1 OR poi_id IN (SELECT id FROM pois WHERE user_id=$1)
	`, userID)
	if err != nil {
		return nil, err
	}
	if err := run(ctx, tx, userStatements, userID); err != nil {
		return nil, err
	}
	return keys, nil
}

func collectKeys(ctx context.Context, q db.Querier, sql, id string) ([]string, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrap(err, "could not collect photo keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key, thumb string
		if err := rows.Scan(&key, &thumb); err != nil {
			return nil, err
		}
		keys = append(keys, key)
		if thumb != "" {
			keys = append(keys, thumb)
		}
	}
	return keys, rows.Err()
}

func run(ctx context.Context, q db.Querier, statements []string, id string) error {
	for _, stmt := range statements {
		if _, err := q.Exec(ctx, stmt, id); err != nil {
			return errors.Wrap(err, "cascade delete failed")
		}
	}
	return nil
}

type Report struct {
	Attempted int      `json:"attempted"`
	Failed    []string `json:"failed,omitempty"`
}

// Purger deletes object-store keys after the owning rows are gone.
type Purger struct {
	store objectstore.Store
	log   *logrus.Logger
	limit int
}

func NewPurger(store objectstore.Store, log *logrus.Logger, concurrency int) *Purger {
	if log == nil {
		log = logging.Discard()
	}
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Purger{store: store, log: log, limit: concurrency}
}

// Purge deletes keys concurrently. Failures are logged and reported, never
// returned: the rows are already committed and the files are orphaned.
func (p *Purger) Purge(ctx context.Context, keys []string) Report {
	report := Report{Attempted: len(keys)}
	if len(keys) == 0 || p == nil || p.store == nil {
		return report
	}
	ctx = context.WithoutCancel(ctx)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.limit)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := p.store.Delete(ctx, key); err != nil {
				p.log.WithFields(logrus.Fields{
					"key":   key,
					"op":    "delete",
					"error": err.Error(),
				}).Warn("orphaned object left in store")
				mu.Lock()
				report.Failed = append(report.Failed, key)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Failed)
	return report
}
