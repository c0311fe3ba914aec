// Package alert stores in-app alerts and hands each new one to a Notifier.
package alert

import (
	"context"

	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/logging"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Service struct {
	db       db.DB
	notifier Notifier
	log      *logrus.Logger
}

func NewService(db db.DB, notifier Notifier, log *logrus.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{db: db, notifier: notifier, log: log}
}

// Create records an alert for in.UserID and notifies them. Self-alerts and
// alert types the recipient switched off are skipped and return a zero Alert.
// Notifier failures are logged only.
func (s *Service) Create(ctx context.Context, in Input) (Alert, error) {
	if in.UserID == "" || in.UserID == in.ActorID {
		return Alert{}, nil
	}

	var r Recipient
	var follows, likes, comments bool
	err := s.db.QueryRow(ctx, `
		SELECT id, email, email_alerts, follow_alerts, like_alerts, comment_alerts
		FROM users WHERE id=$1
	`, in.UserID).Scan(&r.ID, &r.Email, &r.EmailAlerts, &follows, &likes, &comments)
	if err != nil {
		return Alert{}, apperr.FromDB(err, "user")
	}
	switch in.Type {
	case TypeFollow:
		if !follows {
			return Alert{}, nil
		}
	case TypeLike:
		if !likes {
			return Alert{}, nil
		}
	case TypeComment:
		if !comments {
			return Alert{}, nil
		}
	}

	a := Alert{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		ActorID:   in.ActorID,
		Type:      in.Type,
		Message:   in.Message,
		TargetURL: in.TargetURL,
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO alerts (id, user_id, actor_id, type, message, target_url)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, a.ID, a.UserID, a.ActorID, string(a.Type), a.Message, a.TargetURL).Scan(&a.CreatedAt)
	if err != nil {
		return Alert{}, errors.Wrap(err, "could not save alert")
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, Notification{Alert: a, Recipient: r}); err != nil {
			s.log.WithFields(logrus.Fields{
				"alert_id": a.ID,
				"user_id":  a.UserID,
				"type":     a.Type,
				"error":    err.Error(),
			}).Warn("alert notification failed")
		}
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, pg page.Page) ([]Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, actor_id, type, message, target_url, is_read, created_at
		FROM alerts
		WHERE user_id=$1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, unreadOnly, pg.Limit, pg.Offset())
	if err != nil {
		return nil, errors.Wrap(err, "could not list alerts")
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.UserID, &a.ActorID, &a.Type, &a.Message, &a.TargetURL, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE user_id=$1 AND NOT is_read`, userID).Scan(&n)
	return n, err
}

func (s *Service) MarkRead(ctx context.Context, alertID, userID string) error {
	tag, err := s.db.Exec(ctx, `UPDATE alerts SET is_read = true WHERE id=$1 AND user_id=$2`, alertID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("alert")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE alerts SET is_read = true WHERE user_id=$1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Service) Delete(ctx context.Context, alertID, userID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM alerts WHERE id=$1 AND user_id=$2`, alertID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("alert")
	}
	return nil
}
