package social

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/alert"
	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/google/go-cmp/cmp"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeAlerter struct {
	err error
	got []alert.Input
}

func (f *fakeAlerter) Create(_ context.Context, in alert.Input) (alert.Alert, error) {
	f.got = append(f.got, in)
	return alert.Alert{ID: "alert-1"}, f.err
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func expectMap(mock pgxmock.PgxPoolIface, mapID, owner string, private bool) {
	mock.ExpectQuery(`SELECT user_id, map_name, is_private FROM maps WHERE id=\$1`).
		WithArgs(mapID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "map_name", "is_private"}).AddRow(owner, "Lisbon", private))
}

func TestFollowOnceAlertsOnce(t *testing.T) {
	mock := newMock(t)
	alerts := &fakeAlerter{}
	svc := NewService(mock, alerts, nil)

	for _, affected := range []int64{1, 0} {
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE id=\$1\)`).
			WithArgs("user-2").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(`INSERT INTO follows`).
			WithArgs("user-1", "user-2").
			WillReturnResult(pgxmock.NewResult("INSERT", affected))
	}

	for i := 0; i < 2; i++ {
		if err := svc.Follow(context.Background(), "user-1", "user-2"); err != nil {
			t.Fatalf("follow %d: %v", i, err)
		}
	}

	want := []alert.Input{{
		UserID:    "user-2",
		ActorID:   "user-1",
		Type:      alert.TypeFollow,
		Message:   "You have a new follower",
		TargetURL: "/users/user-1",
	}}
	if diff := cmp.Diff(want, alerts.got); diff != "" {
		t.Fatalf("alerts mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFollowRejectsSelfAndUnknown(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil)

	if err := svc.Follow(context.Background(), "user-1", "user-1"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	if err := svc.Follow(context.Background(), "user-1", "ghost"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFollowAlertFailureIsLogged(t *testing.T) {
	mock := newMock(t)
	log, hook := test.NewNullLogger()
	svc := NewService(mock, &fakeAlerter{err: errors.New("alerts down")}, log)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`INSERT INTO follows`).
		WithArgs("user-1", "user-2").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := svc.Follow(context.Background(), "user-1", "user-2"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["error"] != "alerts down" {
		t.Fatalf("expected warning entry, got %+v", entry)
	}
}

func TestFollowersList(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil)
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`JOIN users u ON u.id = f.follower_id`).
		WithArgs("user-2", 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "full_name", "avatar_url", "created_at"}).
			AddRow("user-1", "ana", "Ana", "", since))

	got, err := svc.Followers(context.Background(), "user-2", page.New(1, 20))
	if err != nil {
		t.Fatalf("followers: %v", err)
	}
	want := []UserSummary{{ID: "user-1", Username: "ana", FullName: "Ana", Since: since}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("followers mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleBookmarkMap(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil)
	target := BookmarkTarget{MapID: "map-1"}

	expectMap(mock, "map-1", "owner-1", false)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM bookmarks WHERE user_id=\$1 AND map_id=\$2`).
		WithArgs("user-1", "map-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO bookmarks`).
		WithArgs(pgxmock.AnyArg(), "user-1", "map-1", nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	expectMap(mock, "map-1", "owner-1", false)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM bookmarks WHERE user_id=\$1 AND map_id=\$2`).
		WithArgs("user-1", "map-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	first, err := svc.ToggleBookmark(context.Background(), "user-1", target)
	if err != nil || !first.Bookmarked {
		t.Fatalf("first toggle: %+v %v", first, err)
	}
	second, err := svc.ToggleBookmark(context.Background(), "user-1", target)
	if err != nil || second.Bookmarked {
		t.Fatalf("second toggle: %+v %v", second, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestToggleBookmarkTargets(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil)

	for _, target := range []BookmarkTarget{{}, {MapID: "map-1", POIID: "poi-1"}} {
		if _, err := svc.ToggleBookmark(context.Background(), "user-1", target); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("target %+v: expected validation error, got %v", target, err)
		}
	}

	mock.ExpectQuery(`FROM pois p`).
		WithArgs("poi-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "map_owner", "is_private"}).AddRow("owner-1", "owner-1", true))
	_, err := svc.ToggleBookmark(context.Background(), "user-1", BookmarkTarget{POIID: "poi-1"})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddCommentAlertsOwner(t *testing.T) {
	mock := newMock(t)
	alerts := &fakeAlerter{}
	svc := NewService(mock, alerts, nil)

	expectMap(mock, "map-1", "owner-1", false)
	mock.ExpectQuery(`INSERT INTO map_comments`).
		WithArgs(pgxmock.AnyArg(), "map-1", "user-1", "great route").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	c, err := svc.AddComment(context.Background(), "map-1", "user-1", "  great route ")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if c.Body != "great route" || c.ID == "" {
		t.Fatalf("unexpected comment: %+v", c)
	}
	if len(alerts.got) != 1 || alerts.got[0].UserID != "owner-1" || alerts.got[0].Type != alert.TypeComment {
		t.Fatalf("unexpected alerts: %+v", alerts.got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddCommentValidation(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil)

	for _, body := range []string{"   ", strings.Repeat("é", MaxCommentLength+1)} {
		if _, err := svc.AddComment(context.Background(), "map-1", "user-1", body); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for %d runes, got %v", len(body), err)
		}
	}

	expectMap(mock, "map-1", "owner-1", true)
	if _, err := svc.AddComment(context.Background(), "map-1", "user-1", "hi"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden on private map, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommentsIncludeLikeState(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	expectMap(mock, "map-1", "owner-1", false)
	mock.ExpectQuery(`FROM map_comments c`).
		WithArgs("map-1", "user-1", 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "map_id", "user_id", "username", "body", "created_at", "likes", "liked"}).
			AddRow("c-1", "map-1", "user-3", "rui", "nice", at, 2, true))

	got, err := svc.Comments(context.Background(), "map-1", "user-1", page.New(1, 20))
	if err != nil {
		t.Fatalf("comments: %v", err)
	}
	want := []Comment{{ID: "c-1", MapID: "map-1", UserID: "user-3", Username: "rui", Body: "nice", Likes: 2, Liked: true, CreatedAt: at}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteCommentPermissions(t *testing.T) {
	cases := []struct {
		name, caller, role string
		allowed            bool
	}{
		{"author", "author-1", auth.RoleMember, true},
		{"map owner", "owner-1", auth.RoleMember, true},
		{"moderator", "mod-1", auth.RoleModerator, true},
		{"stranger", "user-9", auth.RoleMember, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := newMock(t)
			svc := NewService(mock, nil, nil)

			mock.ExpectBegin()
			mock.ExpectQuery(`FOR UPDATE OF c`).
				WithArgs("c-1").
				WillReturnRows(pgxmock.NewRows([]string{"author", "owner"}).AddRow("author-1", "owner-1"))
			if tc.allowed {
				mock.ExpectExec(`DELETE FROM comment_likes WHERE comment_id=\$1`).
					WithArgs("c-1").
					WillReturnResult(pgxmock.NewResult("DELETE", 3))
				mock.ExpectExec(`DELETE FROM map_comments WHERE id=\$1`).
					WithArgs("c-1").
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := svc.DeleteComment(context.Background(), "c-1", tc.caller, tc.role)
			if tc.allowed && err != nil {
				t.Fatalf("delete: %v", err)
			}
			if !tc.allowed && !apperr.Is(err, apperr.KindForbidden) {
				t.Fatalf("expected forbidden, got %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestToggleCommentLike(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF c`).
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "is_private"}).AddRow("owner-1", false))
	mock.ExpectExec(`DELETE FROM comment_likes WHERE user_id=\$1 AND comment_id=\$2`).
		WithArgs("user-1", "c-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO comment_likes`).
		WithArgs("user-1", "c-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM comment_likes WHERE comment_id=\$1`).
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	state, err := svc.ToggleCommentLike(context.Background(), "c-1", "user-1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if diff := cmp.Diff(LikeState{Liked: true, Likes: 1}, state); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFeedPublicMapsOfFollowed(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil)
	at := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE f.follower_id = \$1 AND NOT m.is_private`).
		WithArgs("user-1", 10, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "username", "map_name", "likes", "views", "created_at", "poi_count"}).
			AddRow("map-2", "user-2", "bea", "Porto", 4, 30, at, 6))

	got, err := svc.Feed(context.Background(), "user-1", page.New(2, 10))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	want := []FeedMap{{ID: "map-2", UserID: "user-2", Username: "bea", MapName: "Porto", Likes: 4, Views: 30, POICount: 6, CreatedAt: at}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("feed mismatch (-want +got):\n%s", diff)
	}
}
