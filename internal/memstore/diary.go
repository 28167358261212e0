package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/johndosdos/haven/internal/model"
)

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *Store) GetDiaryEntry(_ context.Context, userID string, date time.Time) (model.DiaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.diary {
		if e.UserID == userID && sameDay(e.Date, date) {
			return *e, nil
		}
	}
	return model.DiaryEntry{}, model.ErrNotFound
}

func (s *Store) GetDiaryEntryByID(_ context.Context, id int64) (model.DiaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.diary[id]
	if !ok {
		return model.DiaryEntry{}, model.ErrNotFound
	}
	return *e, nil
}

func (s *Store) CreateDiaryEntry(_ context.Context, e model.DiaryEntry) (model.DiaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.diary {
		if existing.UserID == e.UserID && sameDay(existing.Date, e.Date) {
			return model.DiaryEntry{}, model.ErrConflict
		}
	}
	s.nextDiaryID++
	e.ID = s.nextDiaryID
	s.diary[e.ID] = &e
	return e, nil
}

func (s *Store) UpdateDiaryEntry(_ context.Context, e model.DiaryEntry) (model.DiaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.diary[e.ID]
	if !ok {
		return model.DiaryEntry{}, model.ErrNotFound
	}
	current.Title = e.Title
	current.Content = e.Content
	current.Mood = e.Mood
	current.IsCompleted = e.IsCompleted
	current.UpdatedAt = e.UpdatedAt
	return *current, nil
}

func (s *Store) ListDiaryEntries(_ context.Context, userID string, from, to time.Time) ([]model.DiaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.DiaryEntry{}
	for _, e := range s.diary {
		if e.UserID == userID && !e.Date.Before(from) && e.Date.Before(to) {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b model.DiaryEntry) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *Store) ListCompletedDates(_ context.Context, userID string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []time.Time
	for _, e := range s.diary {
		if e.UserID == userID && e.IsCompleted {
			out = append(out, e.Date)
		}
	}
	return out, nil
}

func (s *Store) ListQuotes(_ context.Context) ([]model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, *q)
	}
	slices.SortFunc(out, func(a, b model.Quote) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *Store) GetQuote(_ context.Context, id int64) (model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[id]
	if !ok {
		return model.Quote{}, model.ErrNotFound
	}
	return *q, nil
}

func (s *Store) CreateQuote(_ context.Context, q model.Quote) (model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextQuoteID++
	q.ID = s.nextQuoteID
	s.quotes[q.ID] = &q
	return q, nil
}

func (s *Store) UpdateQuote(_ context.Context, q model.Quote) (model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.quotes[q.ID]
	if !ok {
		return model.Quote{}, model.ErrNotFound
	}
	current.Text = q.Text
	current.Author = q.Author
	current.Category = q.Category
	return *current, nil
}

func (s *Store) DeleteQuote(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quotes[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.quotes, id)
	return nil
}
