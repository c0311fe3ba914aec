package page

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxPage      = 10000
)

type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func New(p, limit int) Page {
	if p < 1 {
		p = 1
	}
	if p > MaxPage {
		p = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: p, Limit: limit}
}

// Offset is clamped like New, so a hand-built Page never yields a negative
// or overflowing offset.
func (p Page) Offset() int {
	n := min(max(p.Page, 1), MaxPage)
	limit := min(max(p.Limit, 0), MaxLimit)
	return (n - 1) * limit
}

// FromQuery reads ?page= and ?limit= with defaults. Malformed values fall
// back to the defaults.
func FromQuery(c *fiber.Ctx) Page {
	p, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return New(p, limit)
}
