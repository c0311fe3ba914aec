package tag

import (
	"context"

	"github.com/apmanager001/tripmaps-sub000/internal/db"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Suggest returns tags whose canonical name starts with prefix.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int) ([]Tag, error) {
	prefix = Canonicalize(prefix)
	if prefix == "" {
		return []Tag{}, nil
	}
	return s.query(ctx, `
		SELECT t.id, t.name, COUNT(pt.poi_id)
		FROM tags t
		LEFT JOIN poi_tags pt ON pt.tag_id = t.id
		WHERE t.name LIKE $1 || '%'
		GROUP BY t.id, t.name
		ORDER BY COUNT(pt.poi_id) DESC, t.name
		LIMIT $2
	`, escapeLike(prefix), limit)
}

// Popular returns the most used tags.
func (s *Service) Popular(ctx context.Context, limit int) ([]Tag, error) {
	return s.query(ctx, `
		SELECT t.id, t.name, COUNT(*)
		FROM tags t
		JOIN poi_tags pt ON pt.tag_id = t.id
		GROUP BY t.id, t.name
		ORDER BY COUNT(*) DESC, t.name
		LIMIT $1
	`, limit)
}

func (s *Service) query(ctx context.Context, sql string, args ...any) ([]Tag, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Count); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\\' || r == '%' || r == '_' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
