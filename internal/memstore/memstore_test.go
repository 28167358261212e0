package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/haven/internal/chat"
	"github.com/johndosdos/haven/internal/diary"
	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/therapy"
)

var (
	_ chat.Store       = (*Store)(nil)
	_ therapy.Store    = (*Store)(nil)
	_ diary.Store      = (*Store)(nil)
	_ diary.QuoteStore = (*Store)(nil)
)

func TestMessageIDsIncrease(t *testing.T) {
	ctx := context.Background()
	s := New()

	g, err := s.CreateGroup(ctx, "abc", 5)
	require.NoError(t, err)

	var last int64
	for range 5 {
		m, err := s.CreateMessage(ctx, model.ChatMessage{GroupID: g.ID, Content: "hi"})
		require.NoError(t, err)
		assert.Greater(t, m.ID, last)
		last = m.ID
	}

	recent, err := s.ListRecentMessages(ctx, g.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, last, recent[1].ID)

	since, err := s.ListMessagesSince(ctx, g.ID, last-1)
	require.NoError(t, err)
	assert.Len(t, since, 1)

	_, err = s.CreateMessage(ctx, model.ChatMessage{GroupID: 99})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFlagSessionBansAtThreshold(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	for i := 1; i <= 3; i++ {
		f, err := s.FlagSession(ctx, "sess", "profanity", 3, now)
		require.NoError(t, err)
		assert.Equal(t, i, f.FlagCount)
		assert.Equal(t, i == 3, f.Banned)
	}

	banned, err := s.ListBanned(ctx)
	require.NoError(t, err)
	require.Len(t, banned, 1)
	assert.Equal(t, "System", banned[0].BannedBy)

	require.NoError(t, s.Unban(ctx, "sess"))
	f, err := s.GetFlag(ctx, "sess")
	require.NoError(t, err)
	assert.False(t, f.Banned)
	assert.Zero(t, f.FlagCount)

	assert.ErrorIs(t, s.Unban(ctx, "nobody"), model.ErrNotFound)
}

func TestTherapyTransitionsAreConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	ts, err := s.CreateTherapySession(ctx, model.TherapySession{UserRef: "u", Status: model.TherapyRequested})
	require.NoError(t, err)

	_, err = s.StartTherapySession(ctx, ts.ID, "t1", now)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.AcceptTherapySession(ctx, ts.ID, "t1", now)
	require.NoError(t, err)
	_, err = s.AcceptTherapySession(ctx, ts.ID, "t2", now)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.StartTherapySession(ctx, ts.ID, "t2", now)
	assert.ErrorIs(t, err, model.ErrConflict)
	_, err = s.StartTherapySession(ctx, ts.ID, "t1", now)
	require.NoError(t, err)

	ended, err := s.EndTherapySession(ctx, ts.ID, now.Add(10*time.Minute+30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, ended.ActualDuration)
	assert.Equal(t, 10, *ended.ActualDuration)

	_, err = s.EndTherapySession(ctx, ts.ID, now)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.CreateTherapyMessage(ctx, model.TherapyMessage{SessionID: ts.ID, SenderID: "u", SenderType: model.SenderUser, Content: "hi"})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.AcceptTherapySession(ctx, 404, "t1", now)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDiaryEntryUniquePerDay(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.CreateDiaryEntry(ctx, model.DiaryEntry{UserID: "u", Date: day, Title: "a", Content: "b"})
	require.NoError(t, err)
	_, err = s.CreateDiaryEntry(ctx, model.DiaryEntry{UserID: "u", Date: day, Title: "c", Content: "d"})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.CreateDiaryEntry(ctx, model.DiaryEntry{UserID: "other", Date: day, Title: "c", Content: "d"})
	assert.NoError(t, err)

	got, err := s.ListDiaryEntries(ctx, "u", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
