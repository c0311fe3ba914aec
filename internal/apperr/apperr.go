// Package apperr defines the error kinds shared by every service and maps
// them onto HTTP responses.
package apperr

import (
	stderrors "errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

type Kind string

const (
	KindInternal     Kind = "internal"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindExternal     Kind = "external"
)

const uniqueViolation = "23505"

type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, msg string) error {
	return errors.WithStack(&Error{Kind: kind, Message: msg})
}

func Newf(kind Kind, format string, args ...any) error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Message: msg, cause: err})
}

func NotFound(entity string) error { return Newf(KindNotFound, "%s not found", entity) }
func Forbidden(msg string) error { return New(KindForbidden, msg) }
func Validation(msg string) error { return New(KindValidation, msg) }
func Conflict(msg string) error { return New(KindConflict, msg) }
func Unauthorized(msg string) error { return New(KindUnauthorized, msg) }
func External(err error, msg string) error { return Wrap(err, KindExternal, msg) }

// FromDB classifies a storage error. Missing rows become NotFound and unique
// violations become Conflict; anything else is wrapped as internal.
func FromDB(err error, entity string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	if stderrors.Is(err, pgx.ErrNoRows) {
		return Wrap(err, KindNotFound, entity+" not found")
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return Wrap(err, KindConflict, entity+" already exists")
	}
	return errors.Wrapf(err, "could not access %s", entity)
}

func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func Status(err error) int {
	var fe *fiber.Error
	if stderrors.As(err, &fe) {
		return fe.Code
	}
	switch KindOf(err) {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindValidation:
		return fiber.StatusBadRequest
	case KindConflict:
		return fiber.StatusConflict
	case KindExternal:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func message(err error) string {
	var fe *fiber.Error
	if stderrors.As(err, &fe) {
		return fe.Message
	}
	var e *Error
	if stderrors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindExternal {
		return e.Message
	}
	if KindOf(err) == KindExternal {
		return "upstream service failed"
	}
	return "internal server error"
}

// Handler is the fiber ErrorHandler rendering every error as
// {"error": kind, "message": msg}.
func Handler(c *fiber.Ctx, err error) error {
	kind := KindOf(err)
	var fe *fiber.Error
	if stderrors.As(err, &fe) {
		kind = kindForStatus(fe.Code)
	}
	return c.Status(Status(err)).JSON(fiber.Map{
		"error":   kind,
		"message": message(err),
	})
}

func kindForStatus(code int) Kind {
	switch code {
	case fiber.StatusNotFound:
		return KindNotFound
	case fiber.StatusForbidden:
		return KindForbidden
	case fiber.StatusUnauthorized:
		return KindUnauthorized
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return KindValidation
	case fiber.StatusConflict:
		return KindConflict
	default:
		return KindInternal
	}
}
