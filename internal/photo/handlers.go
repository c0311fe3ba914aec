package photo

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// RegisterRoutes mounts /pois/:id/photos and /photos/:id on r. Reads go
// through optionalAuth so owners can see photos on their private maps.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, optionalAuth fiber.Handler) {
	r.Post("/pois/:id/photos", authMiddleware, func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file required")
		}
		body, mimeType, err := readUpload(fh)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		in := UploadInput{
			POIID:     c.Params("id"),
			UserID:    auth.UserID(c),
			FileName:  fh.Filename,
			MimeType:  mimeType,
			Body:      body,
			IsPrimary: c.FormValue("is_primary") == "true",
		}
		if thumb, err := c.FormFile("thumbnail"); err == nil {
			if in.Thumbnail, _, err = readUpload(thumb); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		in.Width, _ = strconv.Atoi(c.FormValue("width"))
		in.Height, _ = strconv.Atoi(c.FormValue("height"))
		if raw := c.FormValue("exif"); raw != "" {
			if !json.Valid([]byte(raw)) {
				return fiber.NewError(fiber.StatusBadRequest, "exif must be JSON")
			}
			in.Exif = json.RawMessage(raw)
		}
		if raw := c.FormValue("date_visited"); raw != "" {
			visited, err := parseDate(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "date_visited must be a date")
			}
			in.DateVisited = &visited
		}

		p, err := svc.Upload(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	r.Get("/pois/:id/photos", optionalAuth, func(c *fiber.Ctx) error {
		photos, err := svc.ForPOI(c.UserContext(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(photos)
	})

	r.Get("/photos/:id", optionalAuth, func(c *fiber.Ctx) error {
		p, err := svc.Get(c.UserContext(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(p)
	})

	r.Put("/photos/:id/primary", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.SetPrimary(c.UserContext(), c.Params("id"), auth.UserID(c)); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "is_primary": true})
	})

	r.Delete("/photos/:id", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := svc.Delete(c.UserContext(), c.Params("id"), auth.UserID(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, string, error) {
	if fh.Size > MaxFileSize {
		return nil, "", errors.New("file exceeds 10MB")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, "", err
	}
	mimeType := strings.TrimSpace(strings.Split(fh.Header.Get("Content-Type"), ";")[0])
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(body)
	}
	return body, mimeType, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
