package poi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func withUser(id string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id != "" {
			c.Locals("user_id", id)
		}
		return c.Next()
	}
}

func newTestApp(mock pgxmock.PgxPoolIface, viewer string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apperr.Handler})
	RegisterRoutes(app, newTestService(mock, &fakeStore{}), withUser(viewer), withUser(viewer))
	return app
}

func TestHandlersCreate(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pois`).
		WithArgs(pgxmock.AnyArg(), "user-1", nil, 1.5, 2.5, "Cafe", "espresso", pgxmock.AnyArg(), false).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO edit_history`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "user-1", "create", "Created new POI").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	app := newTestApp(mock, "user-1")
	req := httptest.NewRequest(http.MethodPost, "/pois",
		strings.NewReader(`{"lat":1.5,"lng":2.5,"location_name":"Cafe","description":"espresso"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %v", resp.StatusCode, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHandlersBadInput(t *testing.T) {
	app := newTestApp(nil, "user-1")

	cases := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodPost, "/pois", `{"lat":100,"lng":0,"location_name":"x"}`, http.StatusBadRequest},
		{http.MethodPost, "/pois", `{not json`, http.StatusBadRequest},
		{http.MethodGet, "/pois/nearby?lat=abc&lng=1", "", http.StatusBadRequest},
		{http.MethodGet, "/pois/nearby?lat=1&lng=1&radius_km=900", "", http.StatusBadRequest},
		{http.MethodGet, "/pois/search?q=", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.target, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s %s: got %d want %d", tc.method, tc.target, resp.StatusCode, tc.want)
		}
	}
}

func TestHandlersListByUserAnonymous(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`WHERE p.user_id = \$2`).
		WithArgs("", "user-1", 20, 0).
		WillReturnRows(pgxmock.NewRows(listRowColumns))

	app := newTestApp(mock, "")
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/users/user-1/pois", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v %v", resp.StatusCode, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func expectPOIVisibility(mock pgxmock.PgxPoolIface, poiID, ownerID string, mapPrivate bool) {
	mock.ExpectQuery(`SELECT p.user_id, COALESCE\(m.user_id, ''\), COALESCE\(m.is_private, false\)`).
		WithArgs(poiID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "map_owner", "is_private"}).AddRow(ownerID, ownerID, mapPrivate))
}

func TestHandlersHistoryOnPrivateMap(t *testing.T) {
	cases := []struct {
		viewer string
		want   int
	}{
		{"", http.StatusForbidden},
		{"stranger", http.StatusForbidden},
		{"owner-1", http.StatusOK},
	}
	for _, tc := range cases {
		mock := newMock(t)
		expectPOIVisibility(mock, "poi-secret", "owner-1", true)
		if tc.want == http.StatusOK {
			mock.ExpectQuery(`FROM edit_history WHERE poi_id=\$1`).
				WithArgs("poi-secret", 20, 0).
				WillReturnRows(pgxmock.NewRows([]string{"id", "poi_id", "user_id", "action", "summary", "created_at"}).
					AddRow("h-1", "poi-secret", "owner-1", "create", "Created new POI", time.Now()))
		}

		app := newTestApp(mock, tc.viewer)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/pois/poi-secret/history", nil))
		if err != nil || resp.StatusCode != tc.want {
			t.Fatalf("history as %q: got %v want %d (%v)", tc.viewer, resp.StatusCode, tc.want, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}
}
