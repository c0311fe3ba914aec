// Package tag canonicalizes free-form tag names and keeps one row per
// canonical name.
package tag

import (
	"context"
	"strings"

	"github.com/apmanager001/tripmaps-sub000/internal/db"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

// Canonicalize trims, collapses inner whitespace and lower-cases name.
func Canonicalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// CanonicalizeAll canonicalizes names, dropping empties and duplicates while
// keeping the first-seen order.
func CanonicalizeAll(names []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		c := Canonicalize(n)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Resolve finds or creates a tag for each name. Each lookup is a single
// upsert so concurrent callers converge on the same row.
func Resolve(ctx context.Context, q db.Querier, names []string) ([]Tag, error) {
	canonical := CanonicalizeAll(names)
	tags := make([]Tag, 0, len(canonical))
	for _, name := range canonical {
		var t Tag
		err := q.QueryRow(ctx, `
			INSERT INTO tags (id, name)
			VALUES ($1,$2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, name
		`, uuid.NewString(), name).Scan(&t.ID, &t.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "could not resolve tag %q", name)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

func Link(ctx context.Context, q db.Querier, poiID string, tags []Tag) error {
	for _, t := range tags {
		_, err := q.Exec(ctx, `
			INSERT INTO poi_tags (poi_id, tag_id)
			VALUES ($1,$2)
			ON CONFLICT DO NOTHING
		`, poiID, t.ID)
		if err != nil {
			return errors.Wrapf(err, "could not link tag %s", t.Name)
		}
	}
	return nil
}

// Attach resolves names and links them to the POI.
func Attach(ctx context.Context, q db.Querier, poiID string, names []string) ([]Tag, error) {
	tags, err := Resolve(ctx, q, names)
	if err != nil {
		return nil, err
	}
	if err := Link(ctx, q, poiID, tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// Replace drops every link of the POI and attaches names in their place.
func Replace(ctx context.Context, q db.Querier, poiID string, names []string) ([]Tag, error) {
	if _, err := q.Exec(ctx, `DELETE FROM poi_tags WHERE poi_id=$1`, poiID); err != nil {
		return nil, errors.Wrap(err, "could not clear tags")
	}
	return Attach(ctx, q, poiID, names)
}

// ForPOIs loads the tags of every listed POI in one query.
func ForPOIs(ctx context.Context, q db.Querier, poiIDs []string) (map[string][]Tag, error) {
	out := map[string][]Tag{}
	if len(poiIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT pt.poi_id, t.id, t.name
		FROM poi_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.poi_id = ANY($1)
		ORDER BY t.name
	`, poiIDs)
	if err != nil {
		return nil, errors.Wrap(err, "could not load tags")
	}
	defer rows.Close()

	for rows.Next() {
		var poiID string
		var t Tag
		if err := rows.Scan(&poiID, &t.ID, &t.Name); err != nil {
			return nil, err
		}
		out[poiID] = append(out[poiID], t)
	}
	return out, rows.Err()
}
