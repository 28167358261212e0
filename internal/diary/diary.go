// Package diary implements the daily diary: edit windows, streaks, the
// monthly calendar view and the quote of the day.
package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/moderation"
)

var (
	ErrDateLocked   = errors.New("diary date can no longer be edited")
	ErrInvalidEntry = errors.New("invalid diary entry")
	ErrInvalidDate  = errors.New("invalid date")
	ErrForbidden    = errors.New("diary entry belongs to another user")
)

type Service struct {
	entries   Store
	quotes    QuoteStore
	seen      SeenQuotes
	sanitizer *moderation.Sanitizer
	now       func() time.Time
}

func NewService(entries Store, quotes QuoteStore, seen SeenQuotes) *Service {
	return &Service{
		entries:   entries,
		quotes:    quotes,
		seen:      seen,
		sanitizer: moderation.NewSanitizer(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces time.Now. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) today() time.Time {
	return Day(s.now())
}

// ParseDate parses a YYYY-MM-DD path parameter.
func ParseDate(v string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expected YYYY-MM-DD", ErrInvalidDate)
	}
	return d, nil
}

func (s *Service) CanEdit(date time.Time) bool {
	return CanEdit(date, s.today())
}

// Entry returns model.ErrNotFound when there is no entry for the date.
func (s *Service) Entry(ctx context.Context, userID string, date time.Time) (model.DiaryEntry, error) {
	return s.entries.GetDiaryEntry(ctx, userID, Day(date))
}

// Create writes the entry for a date. A date that already has an entry is
// left untouched and its entry is returned with created == false.
func (s *Service) Create(ctx context.Context, userID string, date time.Time, title, content, mood string) (model.DiaryEntry, bool, error) {
	date = Day(date)
	if !s.CanEdit(date) {
		return model.DiaryEntry{}, false, ErrDateLocked
	}

	title = s.sanitizer.Sanitize(title)
	content = s.sanitizer.Sanitize(content)
	if title == "" || content == "" {
		return model.DiaryEntry{}, false, fmt.Errorf("%w: title and content are required", ErrInvalidEntry)
	}

	existing, err := s.entries.GetDiaryEntry(ctx, userID, date)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.DiaryEntry{}, false, err
	}

	now := s.now()
	entry, err := s.entries.CreateDiaryEntry(ctx, model.DiaryEntry{
		UserID:      userID,
		Date:        date,
		Title:       title,
		Content:     content,
		Mood:        strings.TrimSpace(mood),
		IsCompleted: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if errors.Is(err, model.ErrConflict) {
		existing, err := s.entries.GetDiaryEntry(ctx, userID, date)
		return existing, false, err
	}
	if err != nil {
		return model.DiaryEntry{}, false, fmt.Errorf("failed to create diary entry: %w", err)
	}

	slog.InfoContext(ctx, "diary entry created",
		"user_id", userID,
		"date", entry.DateString())
	return entry, true, nil
}

// Patch holds the fields an update may change. Nil fields are kept.
type Patch struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Mood    *string `json:"mood"`
}

func (s *Service) Update(ctx context.Context, id int64, userID string, p Patch) (model.DiaryEntry, error) {
	entry, err := s.entries.GetDiaryEntryByID(ctx, id)
	if err != nil {
		return model.DiaryEntry{}, err
	}
	if entry.UserID != userID {
		return model.DiaryEntry{}, ErrForbidden
	}
	if !s.CanEdit(entry.Date) {
		return model.DiaryEntry{}, ErrDateLocked
	}

	if p.Title != nil {
		entry.Title = s.sanitizer.Sanitize(*p.Title)
	}
	if p.Content != nil {
		entry.Content = s.sanitizer.Sanitize(*p.Content)
	}
	if p.Mood != nil {
		entry.Mood = strings.TrimSpace(*p.Mood)
	}
	if entry.Title == "" || entry.Content == "" {
		return model.DiaryEntry{}, fmt.Errorf("%w: title and content are required", ErrInvalidEntry)
	}
	entry.IsCompleted = true
	entry.UpdatedAt = s.now()

	return s.entries.UpdateDiaryEntry(ctx, entry)
}

func (s *Service) Streak(ctx context.Context, userID string) (int, error) {
	dates, err := s.entries.ListCompletedDates(ctx, userID)
	if err != nil {
		return 0, err
	}
	return Streak(dates, s.today()), nil
}

func (s *Service) StreakData(ctx context.Context, userID string, days int) ([]StreakDay, error) {
	if days <= 0 || days > 366 {
		days = StreakDays
	}
	dates, err := s.entries.ListCompletedDates(ctx, userID)
	if err != nil {
		return nil, err
	}
	return StreakData(dates, s.today(), days), nil
}

func monthRange(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: month must be 1-12", ErrInvalidDate)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

func (s *Service) Monthly(ctx context.Context, userID string, year, month int) ([]model.DiaryEntry, error) {
	from, to, err := monthRange(year, month)
	if err != nil {
		return nil, err
	}
	return s.entries.ListDiaryEntries(ctx, userID, from, to)
}

type CalendarView struct {
	Year         int                         `json:"year"`
	Month        int                         `json:"month"`
	DiaryEntries map[string]model.DiaryEntry `json:"diary_entries"`
	Streak       int                         `json:"streak"`
	StreakData   []StreakDay                 `json:"streak_data"`
	Quote        *model.Quote                `json:"quote"`
	TodayEntry   *model.DiaryEntry           `json:"today_entry"`
	CanEditToday bool                        `json:"can_edit_today"`
}

func (s *Service) CalendarView(ctx context.Context, userID string, year, month int) (CalendarView, error) {
	entries, err := s.Monthly(ctx, userID, year, month)
	if err != nil {
		return CalendarView{}, err
	}

	dates, err := s.entries.ListCompletedDates(ctx, userID)
	if err != nil {
		return CalendarView{}, err
	}

	today := s.today()
	view := CalendarView{
		Year:         year,
		Month:        month,
		DiaryEntries: make(map[string]model.DiaryEntry, len(entries)),
		Streak:       Streak(dates, today),
		StreakData:   StreakData(dates, today, StreakDays),
		CanEditToday: true,
	}
	for _, e := range entries {
		view.DiaryEntries[e.DateString()] = e
	}

	if e, err := s.entries.GetDiaryEntry(ctx, userID, today); err == nil {
		view.TodayEntry = &e
	} else if !errors.Is(err, model.ErrNotFound) {
		return CalendarView{}, err
	}

	view.Quote = s.quoteOrNil(ctx, userID)
	return view, nil
}

type DateInfo struct {
	Date       string            `json:"date"`
	DiaryEntry *model.DiaryEntry `json:"diary_entry"`
	CanEdit    bool              `json:"can_edit"`
	Quote      *model.Quote      `json:"quote"`
}

func (s *Service) DateInfo(ctx context.Context, userID string, date time.Time) (DateInfo, error) {
	date = Day(date)
	info := DateInfo{
		Date:    date.Format(model.DateLayout),
		CanEdit: s.CanEdit(date),
	}

	if e, err := s.entries.GetDiaryEntry(ctx, userID, date); err == nil {
		info.DiaryEntry = &e
	} else if !errors.Is(err, model.ErrNotFound) {
		return DateInfo{}, err
	}

	info.Quote = s.quoteOrNil(ctx, userID)
	return info, nil
}

// Today is DateInfo for the current day.
func (s *Service) Today(ctx context.Context, userID string) (DateInfo, error) {
	return s.DateInfo(ctx, userID, s.today())
}

func (s *Service) quoteOrNil(ctx context.Context, userID string) *model.Quote {
	q, err := s.RandomQuote(ctx, userID, nil)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			slog.WarnContext(ctx, "failed to pick quote", "error", err)
		}
		return nil
	}
	return &q
}

// RandomQuote picks a quote the user has not seen recently, skipping the
// explicitly excluded IDs. Once every quote was seen, the recent history is
// ignored. It returns model.ErrNotFound when no quote qualifies.
func (s *Service) RandomQuote(ctx context.Context, userID string, exclude []int64) (model.Quote, error) {
	quotes, err := s.quotes.ListQuotes(ctx)
	if err != nil {
		return model.Quote{}, err
	}
	quotes = slices.DeleteFunc(quotes, func(q model.Quote) bool { return slices.Contains(exclude, q.ID) })
	if len(quotes) == 0 {
		return model.Quote{}, model.ErrNotFound
	}

	candidates := quotes
	if userID != "" && s.seen != nil {
		recent, err := s.seen.Recent(ctx, userID)
		if err != nil {
			slog.WarnContext(ctx, "failed to load recently seen quotes", "error", err)
		}
		unseen := slices.DeleteFunc(slices.Clone(quotes), func(q model.Quote) bool { return slices.Contains(recent, q.ID) })
		if len(unseen) > 0 {
			candidates = unseen
		}
	}

	q := candidates[rand.IntN(len(candidates))]

	if userID != "" && s.seen != nil {
		if err := s.seen.Remember(ctx, userID, q.ID); err != nil {
			slog.WarnContext(ctx, "failed to remember quote", "error", err)
		}
	}
	return q, nil
}

func (s *Service) Quotes(ctx context.Context) ([]model.Quote, error) {
	return s.quotes.ListQuotes(ctx)
}

func (s *Service) Quote(ctx context.Context, id int64) (model.Quote, error) {
	return s.quotes.GetQuote(ctx, id)
}

func (s *Service) CreateQuote(ctx context.Context, q model.Quote) (model.Quote, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return model.Quote{}, fmt.Errorf("%w: quote text is required", ErrInvalidEntry)
	}
	q.CreatedAt = s.now()
	return s.quotes.CreateQuote(ctx, q)
}

// QuotePatch holds the quote fields an update may change.
type QuotePatch struct {
	Text     *string `json:"text"`
	Author   *string `json:"author"`
	Category *string `json:"category"`
}

func (s *Service) UpdateQuote(ctx context.Context, id int64, p QuotePatch) (model.Quote, error) {
	q, err := s.quotes.GetQuote(ctx, id)
	if err != nil {
		return model.Quote{}, err
	}
	if p.Text != nil {
		q.Text = strings.TrimSpace(*p.Text)
	}
	if p.Author != nil {
		q.Author = *p.Author
	}
	if p.Category != nil {
		q.Category = *p.Category
	}
	if q.Text == "" {
		return model.Quote{}, fmt.Errorf("%w: quote text is required", ErrInvalidEntry)
	}
	return s.quotes.UpdateQuote(ctx, q)
}

func (s *Service) DeleteQuote(ctx context.Context, id int64) error {
	return s.quotes.DeleteQuote(ctx, id)
}
