package booking

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s := store.NewFileStore(t.TempDir())
	var n int
	svc := NewService(s, Options{
		NewID:   func() string { n++; return fmt.Sprintf("id-%d", n) },
		Suffix:  func() string { return "ab12c" },
		Now:     func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) },
		JoinURL: func(room string) string { return "http://localhost:7880/rooms/" + url.PathEscape(room) },
	})
	return svc, s
}

func TestCreateFillsDefaultsAndPersists(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, Request{CandidateName: " Ada ", Position: "SRE", Date: "2026-11-02", Time: "14:30"})
	require.NoError(t, err)
	require.Equal(t, Booking{
		ID:            "id-1",
		CandidateName: "Ada",
		Position:      "SRE",
		Date:          "2026-11-02",
		Time:          "14:30",
		DateTime:      "2026-11-02T14:30",
		Duration:      "45",
		RoomName:      "Mock Interview Ada ab12c",
		JoinURL:       "http://localhost:7880/rooms/Mock%20Interview%20Ada%20ab12c",
		Status:        StatusScheduled,
		CreatedAt:     "2026-10-01T09:00:00Z",
	}, b)

	var raw []Booking
	require.NoError(t, s.Load(ctx, StoreKey, &raw))
	require.Equal(t, []Booking{b}, raw)
}

func TestListIsSortedByDateTime(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Request{CandidateName: "Late", Date: "2026-12-01", Time: "09:00"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Request{CandidateName: "Early", Date: "2026-11-01", Time: "17:00"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Request{CandidateName: "Morning", Date: "2026-11-01", Time: "08:15"})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, b := range list {
		names = append(names, b.CandidateName)
	}
	require.Equal(t, []string{"Morning", "Early", "Late"}, names)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{name: "missing name", req: Request{Date: "2026-11-01", Time: "09:00"}, want: requiredMessage},
		{name: "missing date", req: Request{CandidateName: "A", Time: "09:00"}, want: requiredMessage},
		{name: "bad date", req: Request{CandidateName: "A", Date: "11/01/2026", Time: "09:00"}, want: "date must be YYYY-MM-DD"},
		{name: "bad time", req: Request{CandidateName: "A", Date: "2026-11-01", Time: "9am"}, want: "time must be HH:MM"},
		{name: "bad duration", req: Request{CandidateName: "A", Date: "2026-11-01", Time: "09:00", Duration: "an hour"}, want: "duration must be a number of minutes"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req)
			require.True(t, apperr.IsKind(err, apperr.KindValidation))
			require.Equal(t, tc.want, apperr.Message(err))
		})
	}

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDeleteAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, Request{CandidateName: "A", Date: "2026-11-01", Time: "09:00"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, Request{CandidateName: "B", Date: "2026-11-02", Time: "09:00"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, second, got)

	require.NoError(t, svc.Delete(ctx, first.ID))
	require.ErrorIs(t, svc.Delete(ctx, first.ID), ErrNotFound)
	_, err = svc.Get(ctx, first.ID)
	require.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []Booking{second}, list)
}
