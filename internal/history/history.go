// Package history keeps the append-only edit log of POIs. Entries outlive the
// POI they describe.
package history

import (
	"context"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/db"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type Entry struct {
	ID        string    `json:"id"`
	POIID     string    `json:"poi_id"`
	UserID    string    `json:"user_id"`
	Action    Action    `json:"action"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// Record appends an entry. Callers pass their transaction so the entry
// commits together with the change it describes.
func Record(ctx context.Context, q db.Querier, poiID, userID string, action Action, summary string) (Entry, error) {
	e := Entry{
		ID:      uuid.NewString(),
		POIID:   poiID,
		UserID:  userID,
		Action:  action,
		Summary: summary,
	}
	row := q.QueryRow(ctx, `
		INSERT INTO edit_history (id, poi_id, user_id, action, summary)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, e.ID, e.POIID, e.UserID, string(e.Action), e.Summary)
	if err := row.Scan(&e.CreatedAt); err != nil {
		return Entry{}, errors.Wrap(err, "could not record edit history")
	}
	return e, nil
}

func ForPOI(ctx context.Context, q db.Querier, poiID string, limit, offset int) ([]Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, poi_id, user_id, action, summary, created_at
		FROM edit_history WHERE poi_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, poiID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &e.POIID, &e.UserID, &action, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
