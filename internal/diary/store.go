package diary

import (
	"context"
	"time"

	"github.com/johndosdos/haven/internal/model"
)

type Store interface {
	// GetDiaryEntry returns model.ErrNotFound when the user wrote nothing on
	// that date.
	GetDiaryEntry(ctx context.Context, userID string, date time.Time) (model.DiaryEntry, error)
	GetDiaryEntryByID(ctx context.Context, id int64) (model.DiaryEntry, error)
	// CreateDiaryEntry returns model.ErrConflict when the user already has an
	// entry for that date.
	CreateDiaryEntry(ctx context.Context, e model.DiaryEntry) (model.DiaryEntry, error)
	UpdateDiaryEntry(ctx context.Context, e model.DiaryEntry) (model.DiaryEntry, error)
	// ListDiaryEntries returns entries with from <= date < to, ordered by date.
	ListDiaryEntries(ctx context.Context, userID string, from, to time.Time) ([]model.DiaryEntry, error)
	ListCompletedDates(ctx context.Context, userID string) ([]time.Time, error)
}

type QuoteStore interface {
	ListQuotes(ctx context.Context) ([]model.Quote, error)
	GetQuote(ctx context.Context, id int64) (model.Quote, error)
	CreateQuote(ctx context.Context, q model.Quote) (model.Quote, error)
	UpdateQuote(ctx context.Context, q model.Quote) (model.Quote, error)
	DeleteQuote(ctx context.Context, id int64) error
}

// SeenQuotes remembers which quotes a user was shown recently.
type SeenQuotes interface {
	Recent(ctx context.Context, userID string) ([]int64, error)
	Remember(ctx context.Context, userID string, quoteID int64) error
}
