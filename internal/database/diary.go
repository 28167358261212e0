package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/johndosdos/haven/internal/model"
)

const diaryColumns = `id, user_id, entry_date, title, content, mood, is_completed, created_at, updated_at`

func scanDiaryEntry(row pgx.Row) (model.DiaryEntry, error) {
	var e model.DiaryEntry
	err := row.Scan(&e.ID, &e.UserID, &e.Date, &e.Title, &e.Content, &e.Mood, &e.IsCompleted, &e.CreatedAt, &e.UpdatedAt)
	e.Date = e.Date.UTC()
	return e, err
}

const getDiaryEntry = `SELECT ` + diaryColumns + ` FROM diary_entries
WHERE user_id = $1 AND entry_date = $2`

func (q *Queries) GetDiaryEntry(ctx context.Context, userID string, date time.Time) (model.DiaryEntry, error) {
	e, err := scanDiaryEntry(q.db.QueryRow(ctx, getDiaryEntry, userID, date))
	return e, notFound(err)
}

const getDiaryEntryByID = `SELECT ` + diaryColumns + ` FROM diary_entries WHERE id = $1`

func (q *Queries) GetDiaryEntryByID(ctx context.Context, id int64) (model.DiaryEntry, error) {
	e, err := scanDiaryEntry(q.db.QueryRow(ctx, getDiaryEntryByID, id))
	return e, notFound(err)
}

const createDiaryEntry = `INSERT INTO diary_entries (user_id, entry_date, title, content, mood, is_completed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + diaryColumns

func (q *Queries) CreateDiaryEntry(ctx context.Context, e model.DiaryEntry) (model.DiaryEntry, error) {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	created, err := scanDiaryEntry(q.db.QueryRow(ctx, createDiaryEntry,
		e.UserID, e.Date, e.Title, e.Content, e.Mood, e.IsCompleted, e.CreatedAt, e.UpdatedAt))
	if err != nil {
		return model.DiaryEntry{}, conflict(err)
	}
	return created, nil
}

const updateDiaryEntry = `UPDATE diary_entries
SET title = $2, content = $3, mood = $4, is_completed = $5, updated_at = $6
WHERE id = $1
RETURNING ` + diaryColumns

func (q *Queries) UpdateDiaryEntry(ctx context.Context, e model.DiaryEntry) (model.DiaryEntry, error) {
	updated, err := scanDiaryEntry(q.db.QueryRow(ctx, updateDiaryEntry,
		e.ID, e.Title, e.Content, e.Mood, e.IsCompleted, e.UpdatedAt))
	return updated, notFound(err)
}

const listDiaryEntries = `SELECT ` + diaryColumns + ` FROM diary_entries
WHERE user_id = $1 AND entry_date >= $2 AND entry_date < $3
ORDER BY entry_date ASC`

func (q *Queries) ListDiaryEntries(ctx context.Context, userID string, from, to time.Time) ([]model.DiaryEntry, error) {
	rows, err := q.db.Query(ctx, listDiaryEntries, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.DiaryEntry{}
	for rows.Next() {
		e, err := scanDiaryEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const listCompletedDates = `SELECT entry_date FROM diary_entries
WHERE user_id = $1 AND is_completed
ORDER BY entry_date DESC`

func (q *Queries) ListCompletedDates(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := q.db.Query(ctx, listCompletedDates, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

const quoteColumns = `id, text, author, category, created_at`

func scanQuote(row pgx.Row) (model.Quote, error) {
	var qt model.Quote
	err := row.Scan(&qt.ID, &qt.Text, &qt.Author, &qt.Category, &qt.CreatedAt)
	return qt, err
}

const listQuotes = `SELECT ` + quoteColumns + ` FROM quotes ORDER BY id ASC`

func (q *Queries) ListQuotes(ctx context.Context) ([]model.Quote, error) {
	rows, err := q.db.Query(ctx, listQuotes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Quote{}
	for rows.Next() {
		qt, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qt)
	}
	return out, rows.Err()
}

const getQuote = `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`

func (q *Queries) GetQuote(ctx context.Context, id int64) (model.Quote, error) {
	qt, err := scanQuote(q.db.QueryRow(ctx, getQuote, id))
	return qt, notFound(err)
}

const createQuote = `INSERT INTO quotes (text, author, category, created_at)
VALUES ($1, $2, $3, $4)
RETURNING ` + quoteColumns

func (q *Queries) CreateQuote(ctx context.Context, qt model.Quote) (model.Quote, error) {
	if qt.CreatedAt.IsZero() {
		qt.CreatedAt = time.Now().UTC()
	}
	return scanQuote(q.db.QueryRow(ctx, createQuote, qt.Text, qt.Author, qt.Category, qt.CreatedAt))
}

const updateQuote = `UPDATE quotes SET text = $2, author = $3, category = $4
WHERE id = $1
RETURNING ` + quoteColumns

func (q *Queries) UpdateQuote(ctx context.Context, qt model.Quote) (model.Quote, error) {
	updated, err := scanQuote(q.db.QueryRow(ctx, updateQuote, qt.ID, qt.Text, qt.Author, qt.Category))
	return updated, notFound(err)
}

const deleteQuote = `DELETE FROM quotes WHERE id = $1`

func (q *Queries) DeleteQuote(ctx context.Context, id int64) error {
	return requireRow(q.db.Exec(ctx, deleteQuote, id))
}
