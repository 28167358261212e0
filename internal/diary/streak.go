package diary

import (
	"time"

	"github.com/johndosdos/haven/internal/model"
)

// StreakDays is the length of the completion grid shown on the calendar.
const StreakDays = 35

type StreakDay struct {
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Day       int    `json:"day"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daySet(dates []time.Time) map[time.Time]bool {
	set := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		set[Day(d)] = true
	}
	return set
}

// Streak counts consecutive completed days ending today. A missing entry for
// today does not break the streak yet, so counting starts from yesterday.
func Streak(dates []time.Time, today time.Time) int {
	set := daySet(dates)
	check := Day(today)
	if !set[check] {
		check = check.AddDate(0, 0, -1)
	}

	streak := 0
	for set[check] {
		streak++
		check = check.AddDate(0, 0, -1)
	}
	return streak
}

// StreakData returns one cell per day for the days ending today, oldest
// first.
func StreakData(dates []time.Time, today time.Time, days int) []StreakDay {
	set := daySet(dates)
	start := Day(today).AddDate(0, 0, -(days - 1))

	out := make([]StreakDay, 0, days)
	for i := range days {
		d := start.AddDate(0, 0, i)
		out = append(out, StreakDay{
			Date:      d.Format(model.DateLayout),
			Completed: set[d],
			Year:      d.Year(),
			Month:     int(d.Month()),
			Day:       d.Day(),
		})
	}
	return out
}

// CanEdit reports whether an entry for date may be written: today and the
// two days before it are open, everything else is locked.
func CanEdit(date, today time.Time) bool {
	d, t := Day(date), Day(today)
	return !d.After(t) && !d.Before(t.AddDate(0, 0, -2))
}
