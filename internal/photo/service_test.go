package photo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/cascade"
	"github.com/apmanager001/tripmaps-sub000/internal/objectstore"

	"github.com/pashagolub/pgxmock/v3"
)

type fakeStore struct {
	mu        sync.Mutex
	uploaded  map[string][]byte
	deleted   []string
	uploadErr error
	deleteErr error
}

func (f *fakeStore) Upload(_ context.Context, key string, body []byte, _ string) (objectstore.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return objectstore.Object{}, f.uploadErr
	}
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[key] = body
	return objectstore.Object{Key: key, Bucket: "bucket", URL: "https://bucket/" + key}, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed/" + key, nil
}

var photoRowColumns = []string{"id", "poi_id", "user_id", "s3_key", "thumbnail_key", "s3_bucket", "s3_url",
	"original_file_name", "file_size", "mime_type", "width", "height", "exif_data", "date_visited", "is_primary", "created_at"}

func newTestService(mock pgxmock.PgxPoolIface, store *fakeStore) *Service {
	return NewService(mock, store, cascade.NewPurger(store, nil, 2), time.Minute, nil)
}

func expectPrivatePOI(mock pgxmock.PgxPoolIface, poiID, ownerID string) {
	mock.ExpectQuery(`SELECT p.user_id, COALESCE\(m.user_id, ''\), COALESCE\(m.is_private, false\)`).
		WithArgs(poiID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "map_owner", "is_private"}).AddRow(ownerID, ownerID, true))
}

func expectVisiblePOI(mock pgxmock.PgxPoolIface, poiID, ownerID string) {
	mock.ExpectQuery(`SELECT p.user_id, COALESCE\(m.user_id, ''\), COALESCE\(m.is_private, false\)`).
		WithArgs(poiID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "map_owner", "is_private"}).AddRow(ownerID, ownerID, false))
}

func TestUploadPrimaryUnsetsSiblings(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := &fakeStore{}
	expectVisiblePOI(mock, "poi-1", "user-1")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM pois WHERE id=\$1 FOR UPDATE`).
		WithArgs("poi-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("poi-1"))
	mock.ExpectExec(`UPDATE photos SET is_primary = false`).
		WithArgs("poi-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO photos`).
		WithArgs(pgxmock.AnyArg(), "poi-1", "user-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "bucket", pgxmock.AnyArg(),
			"beach.jpg", int64(4), "image/jpeg", 800, 600, pgxmock.AnyArg(), pgxmock.AnyArg(), true).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	svc := newTestService(mock, store)
	p, err := svc.Upload(context.Background(), UploadInput{
		POIID:     "poi-1",
		UserID:    "user-1",
		FileName:  "beach.jpg",
		MimeType:  "image/jpeg",
		Body:      []byte("jpeg"),
		Thumbnail: []byte("tn"),
		Width:     800,
		Height:    600,
		Exif:      []byte(`{"Make":"Canon"}`),
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if p.S3Key != "photos/poi-1/"+p.ID+".jpg" || p.ThumbnailKey != "thumbnails/poi-1/"+p.ID+".jpg" {
		t.Fatalf("unexpected keys: %s %s", p.S3Key, p.ThumbnailKey)
	}
	if p.URL != "https://signed/"+p.S3Key || p.ThumbnailURL == "" {
		t.Fatalf("expected signed urls: %+v", p)
	}
	if len(store.uploaded) != 2 {
		t.Fatalf("expected photo and thumbnail uploaded")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUploadByVisitorToPublicPOI(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	expectVisiblePOI(mock, "poi-1", "owner-1")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM pois WHERE id=\$1 FOR UPDATE`).
		WithArgs("poi-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("poi-1"))
	mock.ExpectQuery(`INSERT INTO photos`).
		WithArgs(pgxmock.AnyArg(), "poi-1", "visitor", pgxmock.AnyArg(), pgxmock.AnyArg(), "bucket", pgxmock.AnyArg(),
			"view.png", int64(3), "image/png", 0, 0, pgxmock.AnyArg(), pgxmock.AnyArg(), false).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	p, err := newTestService(mock, &fakeStore{}).Upload(context.Background(), UploadInput{
		POIID:    "poi-1",
		UserID:   "visitor",
		FileName: "view.png",
		MimeType: "image/png",
		Body:     []byte("png"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if p.UserID != "visitor" {
		t.Fatalf("expected the visitor as uploader: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUploadValidation(t *testing.T) {
	svc := newTestService(nil, &fakeStore{})
	cases := []UploadInput{
		{POIID: "poi-1", MimeType: "image/jpeg"},
		{POIID: "poi-1", MimeType: "image/tiff", Body: []byte("x")},
		{POIID: "poi-1", MimeType: "image/png", Body: make([]byte, MaxFileSize+1)},
		{POIID: "poi-1", MimeType: "image/png", Body: []byte("x"), Width: -1},
	}
	for _, in := range cases {
		if _, err := svc.Upload(context.Background(), in); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for %s, got %v", in.MimeType, err)
		}
	}
}

func TestUploadWithoutStore(t *testing.T) {
	svc := NewService(nil, nil, nil, time.Minute, nil)
	_, err := svc.Upload(context.Background(), UploadInput{POIID: "poi-1", MimeType: "image/png", Body: []byte("x")})
	if !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestUploadDBFailureRemovesObjects(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := &fakeStore{}
	expectVisiblePOI(mock, "poi-1", "user-1")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM pois WHERE id=\$1 FOR UPDATE`).
		WithArgs("poi-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("poi-1"))
	mock.ExpectQuery(`INSERT INTO photos`).WillReturnError(errDB)
	mock.ExpectRollback()

	svc := newTestService(mock, store)
	_, err = svc.Upload(context.Background(), UploadInput{
		POIID: "poi-1", UserID: "user-1", MimeType: "image/png", Body: []byte("png"),
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(store.deleted) != 1 {
		t.Fatalf("expected uploaded object to be removed, got %v", store.deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUploadPrivateMapForbidden(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT p.user_id`).
		WithArgs("poi-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "map_owner", "is_private"}).AddRow("owner", "owner", true))

	store := &fakeStore{}
	_, err = newTestService(mock, store).Upload(context.Background(), UploadInput{
		POIID: "poi-1", UserID: "stranger", MimeType: "image/png", Body: []byte("png"),
	})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(store.uploaded) != 0 {
		t.Fatalf("expected nothing uploaded")
	}
}

func TestUploadStoreFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	expectVisiblePOI(mock, "poi-1", "user-1")
	_, err = newTestService(mock, &fakeStore{uploadErr: errStore}).Upload(context.Background(), UploadInput{
		POIID: "poi-1", UserID: "user-1", MimeType: "image/png", Body: []byte("png"),
	})
	if !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestSetPrimarySwapsFlag(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	// photo-a is primary; making photo-b primary must clear photo-a in the
	// same transaction.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ph.poi_id, ph.user_id, p.user_id`).
		WithArgs("photo-b").
		WillReturnRows(pgxmock.NewRows([]string{"poi_id", "uploader", "owner"}).AddRow("poi-1", "user-2", "user-1"))
	mock.ExpectQuery(`SELECT id FROM pois WHERE id=\$1 FOR UPDATE`).
		WithArgs("poi-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("poi-1"))
	mock.ExpectExec(`UPDATE photos SET is_primary = false\s+WHERE poi_id=\$1 AND is_primary AND id <> \$2`).
		WithArgs("poi-1", "photo-b").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE photos SET is_primary = true WHERE id=\$1`).
		WithArgs("photo-b").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	svc := newTestService(mock, &fakeStore{})
	if err := svc.SetPrimary(context.Background(), "photo-b", "user-1"); err != nil {
		t.Fatalf("set primary: %v", err)
	}

	mock.ExpectQuery(`SELECT id, poi_id, user_id, s3_key`).
		WithArgs("poi-1").
		WillReturnRows(pgxmock.NewRows(photoRowColumns).
			AddRow("photo-b", "poi-1", "user-2", "photos/poi-1/b.jpg", "", "bucket", "u", "b.jpg", int64(10), "image/jpeg", 1, 1, nil, nil, true, time.Now()).
			AddRow("photo-a", "poi-1", "user-1", "photos/poi-1/a.jpg", "", "bucket", "u", "a.jpg", int64(10), "image/jpeg", 1, 1, nil, nil, false, time.Now()))

	photos, err := svc.ForVisiblePOI(context.Background(), "poi-1")
	if err != nil {
		t.Fatalf("for poi: %v", err)
	}
	primaries := 0
	for _, p := range photos {
		if p.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 || photos[0].ID != "photo-b" {
		t.Fatalf("expected exactly one primary photo first: %+v", photos)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetPrimaryForbiddenAndMissing(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ph.poi_id`).
		WithArgs("photo-1").
		WillReturnRows(pgxmock.NewRows([]string{"poi_id", "uploader", "owner"}).AddRow("poi-1", "user-2", "user-1"))
	mock.ExpectRollback()

	svc := newTestService(mock, &fakeStore{})
	if err := svc.SetPrimary(context.Background(), "photo-1", "stranger"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ph.poi_id`).
		WithArgs("photo-404").
		WillReturnRows(pgxmock.NewRows([]string{"poi_id", "uploader", "owner"}))
	mock.ExpectRollback()
	if err := svc.SetPrimary(context.Background(), "photo-404", "user-1"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteUploaderOnly(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := &fakeStore{}
	svc := newTestService(mock, store)

	// the POI owner is not the uploader
	mock.ExpectQuery(`SELECT user_id, s3_key, COALESCE\(thumbnail_key, ''\)`).
		WithArgs("photo-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "s3_key", "thumbnail_key"}).AddRow("uploader", "photos/poi-1/a.jpg", "thumbnails/poi-1/a.jpg"))
	if _, err := svc.Delete(context.Background(), "photo-1", "poi-owner"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	mock.ExpectQuery(`SELECT user_id, s3_key`).
		WithArgs("photo-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "s3_key", "thumbnail_key"}).AddRow("uploader", "photos/poi-1/a.jpg", "thumbnails/poi-1/a.jpg"))
	mock.ExpectExec(`DELETE FROM photos WHERE id=\$1`).
		WithArgs("photo-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	report, err := svc.Delete(context.Background(), "photo-1", "uploader")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if report.Attempted != 2 || len(store.deleted) != 2 {
		t.Fatalf("expected photo and thumbnail purged: %+v %v", report, store.deleted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteStoreFailureStillSucceeds(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT user_id, s3_key`).
		WithArgs("photo-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "s3_key", "thumbnail_key"}).AddRow("uploader", "photos/poi-1/a.jpg", ""))
	mock.ExpectExec(`DELETE FROM photos`).WithArgs("photo-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))

	report, err := newTestService(mock, &fakeStore{deleteErr: errStore}).Delete(context.Background(), "photo-1", "uploader")
	if err != nil {
		t.Fatalf("delete should not fail on store errors: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected failed key reported: %+v", report)
	}
}

func TestGetSignsURLs(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	visited := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM photos WHERE id=\$1`).
		WithArgs("photo-1").
		WillReturnRows(pgxmock.NewRows(photoRowColumns).
			AddRow("photo-1", "poi-1", "user-1", "photos/poi-1/a.jpg", "thumbnails/poi-1/a.jpg", "bucket", "u", "a.jpg", int64(10), "image/jpeg", 1, 1, nil, &visited, true, time.Now()))
	expectVisiblePOI(mock, "poi-1", "user-1")

	svc := newTestService(mock, &fakeStore{})
	p, err := svc.Get(context.Background(), "photo-1", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.ThumbnailURL != "https://signed/thumbnails/poi-1/a.jpg" || p.DateVisited == nil || !p.DateVisited.Equal(visited) {
		t.Fatalf("unexpected photo: %+v", p)
	}

	mock.ExpectQuery(`FROM photos WHERE id=\$1`).
		WithArgs("photo-404").
		WillReturnRows(pgxmock.NewRows(photoRowColumns))
	if _, err := svc.Get(context.Background(), "photo-404", ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReadsOnPrivateMapPOI(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	svc := newTestService(mock, &fakeStore{})

	for _, viewer := range []string{"", "stranger"} {
		expectPrivatePOI(mock, "poi-secret", "owner-1")
		if _, err := svc.ForPOI(context.Background(), "poi-secret", viewer); !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf("list as %q: expected forbidden, got %v", viewer, err)
		}
	}

	expectPrivatePOI(mock, "poi-secret", "owner-1")
	mock.ExpectQuery(`FROM photos WHERE poi_id=\$1`).
		WithArgs("poi-secret").
		WillReturnRows(pgxmock.NewRows(photoRowColumns).
			AddRow("ph-1", "poi-secret", "owner-1", "photos/poi-secret/ph-1.jpg", "", "bucket", "u", "a.jpg", int64(10), "image/jpeg", 1, 1, nil, nil, false, time.Now()))
	photos, err := svc.ForPOI(context.Background(), "poi-secret", "owner-1")
	if err != nil || len(photos) != 1 || photos[0].URL != "https://signed/photos/poi-secret/ph-1.jpg" {
		t.Fatalf("owner list: %+v %v", photos, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var (
	errDB    = errors.New("db error")
	errStore = errors.New("store error")
)
