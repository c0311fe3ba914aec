// Package moderation stores user reports against content and the public
// contact form.
package moderation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Flag reports a target. A reporter may hold one open flag per target.
func (s *Service) Flag(ctx context.Context, reporterID string, in FlagInput) (Flag, error) {
	table, ok := targetTables[in.TargetType]
	if !ok {
		return Flag{}, apperr.Newf(apperr.KindValidation, "unknown target_type %q", in.TargetType)
	}
	reason := strings.TrimSpace(in.Reason)
	if in.TargetID == "" || reason == "" {
		return Flag{}, apperr.Validation("target_id and reason are required")
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return Flag{}, apperr.Newf(apperr.KindValidation, "reason exceeds %d characters", maxReasonLength)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id=$1)`, in.TargetID).Scan(&exists); err != nil {
		return Flag{}, err
	}
	if !exists {
		return Flag{}, apperr.NotFound(in.TargetType)
	}

	f := Flag{
		ID:         uuid.NewString(),
		ReporterID: reporterID,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Reason:     reason,
		Status:     StatusOpen,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO flags (id, reporter_id, target_type, target_id, reason)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, f.ID, f.ReporterID, f.TargetType, f.TargetID, f.Reason).Scan(&f.CreatedAt)
	if err != nil {
		err = apperr.FromDB(err, "flag")
		if apperr.Is(err, apperr.KindConflict) {
			return Flag{}, apperr.Conflict("you already flagged this " + in.TargetType)
		}
		return Flag{}, err
	}
	return f, nil
}

// Flags lists flags by status, oldest first. An empty status lists all.
func (s *Service) Flags(ctx context.Context, callerRole, status string, pg page.Page) ([]Flag, error) {
	if !auth.IsStaff(callerRole) {
		return nil, apperr.Forbidden("moderator role required")
	}
	switch status {
	case "", StatusOpen, StatusResolved, StatusDismissed:
	default:
		return nil, apperr.Newf(apperr.KindValidation, "unknown status %q", status)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, reporter_id, target_type, target_id, reason, status, resolved_by, created_at
		FROM flags
		WHERE $1 = '' OR status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`, status, pg.Limit, pg.Offset())
	if err != nil {
		return nil, errors.Wrap(err, "could not list flags")
	}
	defer rows.Close()

	flags := []Flag{}
	for rows.Next() {
		var f Flag
		if err := rows.Scan(&f.ID, &f.ReporterID, &f.TargetType, &f.TargetID, &f.Reason, &f.Status, &f.ResolvedBy, &f.CreatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// Resolve closes an open flag as resolved or dismissed.
func (s *Service) Resolve(ctx context.Context, flagID, moderatorID, callerRole, status string) (Flag, error) {
	if !auth.IsStaff(callerRole) {
		return Flag{}, apperr.Forbidden("moderator role required")
	}
	if status != StatusResolved && status != StatusDismissed {
		return Flag{}, apperr.Validation("status must be resolved or dismissed")
	}

	var f Flag
	err := s.db.QueryRow(ctx, `
		UPDATE flags SET status=$2, resolved_by=$3
		WHERE id=$1 AND status='open'
		RETURNING id, reporter_id, target_type, target_id, reason, status, resolved_by, created_at
	`, flagID, status, moderatorID).
		Scan(&f.ID, &f.ReporterID, &f.TargetType, &f.TargetID, &f.Reason, &f.Status, &f.ResolvedBy, &f.CreatedAt)
	if err != nil {
		return Flag{}, apperr.FromDB(err, "open flag")
	}
	return f, nil
}

func (s *Service) Contact(ctx context.Context, in ContactInput) (Contact, error) {
	c := Contact{
		ID:      uuid.NewString(),
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
	}
	if c.Name == "" || c.Message == "" {
		return Contact{}, apperr.Validation("name and message are required")
	}
	if !govalidator.IsEmail(c.Email) {
		return Contact{}, apperr.Validation("email is invalid")
	}
	if utf8.RuneCountInString(c.Message) > maxMessageLength {
		return Contact{}, apperr.Newf(apperr.KindValidation, "message exceeds %d characters", maxMessageLength)
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO contacts (id, name, email, subject, message)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, c.ID, c.Name, c.Email, c.Subject, c.Message).Scan(&c.CreatedAt)
	if err != nil {
		return Contact{}, apperr.FromDB(err, "contact")
	}
	return c, nil
}

func (s *Service) Contacts(ctx context.Context, callerRole string, pg page.Page) ([]Contact, error) {
	if callerRole != auth.RoleAdmin {
		return nil, apperr.Forbidden("admin role required")
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, name, email, subject, message, created_at
		FROM contacts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, pg.Limit, pg.Offset())
	if err != nil {
		return nil, errors.Wrap(err, "could not list contacts")
	}
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Subject, &c.Message, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
