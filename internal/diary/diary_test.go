package diary

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/haven/internal/memstore"
	"github.com/johndosdos/haven/internal/model"
)

var today = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func day(offset int) time.Time {
	return Day(today).AddDate(0, 0, offset)
}

type memorySeen struct {
	mu   sync.Mutex
	seen map[string][]int64
}

func (m *memorySeen) Recent(_ context.Context, userID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64{}, m.seen[userID]...), nil
}

func (m *memorySeen) Remember(_ context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string][]int64)
	}
	m.seen[userID] = append(m.seen[userID], id)
	return nil
}

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	store.SeedQuotes()
	s := NewService(store, store, &memorySeen{})
	s.SetClock(func() time.Time { return today })
	return s, store
}

func TestCanEdit(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"today", day(0), true},
		{"yesterday", day(-1), true},
		{"two_days_ago", day(-2), true},
		{"three_days_ago", day(-3), false},
		{"tomorrow", day(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanEdit(tt.date, today))
		})
	}
}

func TestStreak(t *testing.T) {
	tests := []struct {
		name  string
		dates []time.Time
		want  int
	}{
		{"none", nil, 0},
		{"today_only", []time.Time{day(0)}, 1},
		{"ending_yesterday", []time.Time{day(-1), day(-2), day(-3)}, 3},
		{"gap_breaks", []time.Time{day(0), day(-1), day(-3)}, 2},
		{"stale", []time.Time{day(-2), day(-3)}, 0},
		{"duplicates", []time.Time{day(0), day(0).Add(5 * time.Hour), day(-1)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Streak(tt.dates, today))
		})
	}
}

func TestStreakData(t *testing.T) {
	data := StreakData([]time.Time{day(0), day(-34), day(-40)}, today, StreakDays)

	require.Len(t, data, StreakDays)
	assert.Equal(t, "2024-05-12", data[0].Date)
	assert.True(t, data[0].Completed)
	assert.Equal(t, "2024-06-15", data[StreakDays-1].Date)
	assert.True(t, data[StreakDays-1].Completed)
	assert.Equal(t, 15, data[StreakDays-1].Day)
	assert.False(t, data[1].Completed)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	entry, created, err := s.Create(ctx, "u1", day(-1), "Walk", "Went for a walk", "🙂")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, entry.IsCompleted)
	assert.Equal(t, "2024-06-14", entry.DateString())

	again, created, err := s.Create(ctx, "u1", day(-1), "Other", "Other text", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, entry.ID, again.ID)
	assert.Equal(t, "Walk", again.Title)

	_, _, err = s.Create(ctx, "u1", day(-3), "Old", "Too late", "")
	assert.ErrorIs(t, err, ErrDateLocked)

	_, _, err = s.Create(ctx, "u1", day(0), "", "no title", "")
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s, store := newService(t)

	entry, _, err := s.Create(ctx, "u1", day(0), "Day", "Fine", "")
	require.NoError(t, err)

	content := "Better than fine"
	updated, err := s.Update(ctx, entry.ID, "u1", Patch{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "Day", updated.Title)
	assert.Equal(t, content, updated.Content)

	_, err = s.Update(ctx, entry.ID, "u2", Patch{Content: &content})
	assert.ErrorIs(t, err, ErrForbidden)

	old, err := store.CreateDiaryEntry(ctx, model.DiaryEntry{UserID: "u1", Date: day(-5), Title: "a", Content: "b", IsCompleted: true})
	require.NoError(t, err)
	_, err = s.Update(ctx, old.ID, "u1", Patch{Content: &content})
	assert.ErrorIs(t, err, ErrDateLocked)

	_, err = s.Update(ctx, 999, "u1", Patch{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCalendarView(t *testing.T) {
	ctx := context.Background()
	s, store := newService(t)

	for _, offset := range []int{0, -1, -2} {
		_, _, err := s.Create(ctx, "u1", day(offset), "t", "c", "")
		require.NoError(t, err)
	}
	_, err := store.CreateDiaryEntry(ctx, model.DiaryEntry{UserID: "u1", Date: day(-20), Title: "t", Content: "c", IsCompleted: true})
	require.NoError(t, err)

	view, err := s.CalendarView(ctx, "u1", 2024, 6)
	require.NoError(t, err)

	assert.Equal(t, 2024, view.Year)
	assert.Equal(t, 6, view.Month)
	assert.Len(t, view.DiaryEntries, 3)
	assert.Contains(t, view.DiaryEntries, "2024-06-13")
	assert.Equal(t, 3, view.Streak)
	assert.Len(t, view.StreakData, StreakDays)
	require.NotNil(t, view.TodayEntry)
	assert.True(t, view.CanEditToday)
	assert.NotNil(t, view.Quote)

	may, err := s.CalendarView(ctx, "u1", 2024, 5)
	require.NoError(t, err)
	assert.Len(t, may.DiaryEntries, 1)

	_, err = s.CalendarView(ctx, "u1", 2024, 13)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDateInfo(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	info, err := s.DateInfo(ctx, "u1", day(-4))
	require.NoError(t, err)
	assert.Equal(t, "2024-06-11", info.Date)
	assert.False(t, info.CanEdit)
	assert.Nil(t, info.DiaryEntry)
}

func TestRandomQuoteAvoidsRecentlySeen(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	seen := make(map[int64]bool)
	for range len(memstore.DefaultQuotes) {
		q, err := s.RandomQuote(ctx, "u1", nil)
		require.NoError(t, err)
		assert.False(t, seen[q.ID], "quote %d repeated before all were shown", q.ID)
		seen[q.ID] = true
	}

	// Every quote was seen, so the history no longer restricts the pick.
	_, err := s.RandomQuote(ctx, "u1", nil)
	assert.NoError(t, err)
}

func TestRandomQuoteExclude(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	all, err := s.Quotes(ctx)
	require.NoError(t, err)

	var exclude []int64
	for _, q := range all[1:] {
		exclude = append(exclude, q.ID)
	}
	q, err := s.RandomQuote(ctx, "", exclude)
	require.NoError(t, err)
	assert.Equal(t, all[0].ID, q.ID)

	exclude = append(exclude, all[0].ID)
	_, err = s.RandomQuote(ctx, "", exclude)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 29, d.Day())

	_, err = ParseDate("29/02/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
