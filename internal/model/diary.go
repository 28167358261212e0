package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the ISO date format used for diary dates in URLs and JSON.
const DateLayout = "2006-01-02"

type DiaryEntry struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Date        time.Time `json:"-"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Mood        string    `json:"mood,omitempty"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DateString returns the entry date formatted as YYYY-MM-DD.
func (e DiaryEntry) DateString() string {
	return e.Date.Format(DateLayout)
}

type Quote struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON renders Date as YYYY-MM-DD instead of a full timestamp.
func (e DiaryEntry) MarshalJSON() ([]byte, error) {
	type entry DiaryEntry
	return json.Marshal(struct {
		entry
		Date string `json:"date"`
	}{entry: entry(e), Date: e.DateString()})
}
