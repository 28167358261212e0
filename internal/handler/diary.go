package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/haven/internal/diary"
	"github.com/johndosdos/haven/internal/model"
)

// userDate reads the userRef and date path parameters and checks the caller
// may act for userRef.
func userDate(r *http.Request) (string, string, error) {
	ref := chi.URLParam(r, "userRef")
	if _, err := self(r, ref); err != nil {
		return "", "", err
	}
	return ref, chi.URLParam(r, "date"), nil
}

func yearMonth(r *http.Request) (int, int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid year", diary.ErrInvalidDate)
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid month", diary.ErrInvalidDate)
	}
	return year, month, nil
}

func CalendarView(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "userRef")
		if _, err := self(r, ref); err != nil {
			fail(w, r, err)
			return
		}
		year, month, err := yearMonth(r)
		if err != nil {
			fail(w, r, err)
			return
		}

		view, err := svc.CalendarView(r.Context(), ref, year, month)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func CalendarDate(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, raw, err := userDate(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		date, err := diary.ParseDate(raw)
		if err != nil {
			fail(w, r, err)
			return
		}

		info, err := svc.DateInfo(r.Context(), ref, date)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func CalendarToday(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "userRef")
		if _, err := self(r, ref); err != nil {
			fail(w, r, err)
			return
		}

		info, err := svc.Today(r.Context(), ref)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// DailyQuote picks a quote the user has not seen recently.
func DailyQuote(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "userRef")
		if _, err := self(r, ref); err != nil {
			fail(w, r, err)
			return
		}

		q, err := svc.RandomQuote(r.Context(), ref, nil)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func GetDiaryEntry(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, raw, err := userDate(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		date, err := diary.ParseDate(raw)
		if err != nil {
			fail(w, r, err)
			return
		}

		entry, err := svc.Entry(r.Context(), ref, date)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// CreateDiaryEntry answers 201 for a new entry and 200 when the date already
// had one, which is returned unchanged.
func CreateDiaryEntry(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, raw, err := userDate(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		date, err := diary.ParseDate(raw)
		if err != nil {
			fail(w, r, err)
			return
		}

		var body struct {
			Title   string `json:"title"`
			Content string `json:"content"`
			Mood    string `json:"mood"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}

		entry, created, err := svc.Create(r.Context(), ref, date, body.Title, body.Content, body.Mood)
		if err != nil {
			fail(w, r, err)
			return
		}
		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		writeJSON(w, code, entry)
	}
}

func UpdateDiaryEntry(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "entryID")
		if err != nil {
			fail(w, r, err)
			return
		}
		claims, err := claimsOf(r)
		if err != nil {
			fail(w, r, err)
			return
		}

		var body struct {
			UserID string `json:"user_id"`
			diary.Patch
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		if body.UserID == "" {
			body.UserID = claims.Subject
		}
		if _, err := self(r, body.UserID); err != nil {
			fail(w, r, err)
			return
		}

		entry, err := svc.Update(r.Context(), id, body.UserID, body.Patch)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func CanEditDate(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, raw, err := userDate(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		date, err := diary.ParseDate(raw)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"can_edit": svc.CanEdit(date)})
	}
}

func DiaryStreak(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "userRef")
		if _, err := self(r, ref); err != nil {
			fail(w, r, err)
			return
		}

		streak, err := svc.Streak(r.Context(), ref)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"streak": streak})
	}
}

func DiaryStreakData(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "userRef")
		if _, err := self(r, ref); err != nil {
			fail(w, r, err)
			return
		}
		days, err := strconv.Atoi(r.URL.Query().Get("days"))
		if err != nil || days <= 0 || days > 366 {
			days = diary.StreakDays
		}

		data, err := svc.StreakData(r.Context(), ref, days)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func MonthlyEntries(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "userRef")
		if _, err := self(r, ref); err != nil {
			fail(w, r, err)
			return
		}
		year, month, err := yearMonth(r)
		if err != nil {
			fail(w, r, err)
			return
		}

		entries, err := svc.Monthly(r.Context(), ref, year, month)
		if err != nil {
			fail(w, r, err)
			return
		}
		if entries == nil {
			entries = []model.DiaryEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func ListQuotes(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quotes, err := svc.Quotes(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, quotes)
	}
}

// RandomQuote honours exclude_ids, a comma separated list of quote IDs. A
// signed-in caller also skips quotes seen recently.
func RandomQuote(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var exclude []int64
		if raw := r.URL.Query().Get("exclude_ids"); raw != "" {
			for part := range strings.SplitSeq(raw, ",") {
				id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
				if err != nil {
					writeError(w, http.StatusBadRequest, "Invalid exclude_ids parameter")
					return
				}
				exclude = append(exclude, id)
			}
		}

		var userID string
		if claims, err := claimsOf(r); err == nil {
			userID = claims.Subject
		}

		q, err := svc.RandomQuote(r.Context(), userID, exclude)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func GetQuote(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "quoteID")
		if err != nil {
			fail(w, r, err)
			return
		}
		q, err := svc.Quote(r.Context(), id)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func CreateQuote(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body model.Quote
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}

		q, err := svc.CreateQuote(r.Context(), model.Quote{
			Text:     body.Text,
			Author:   body.Author,
			Category: body.Category,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

func UpdateQuote(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "quoteID")
		if err != nil {
			fail(w, r, err)
			return
		}

		var patch diary.QuotePatch
		if err := decodeJSON(w, r, &patch); err != nil {
			fail(w, r, err)
			return
		}
		if patch.Text == nil && patch.Author == nil && patch.Category == nil {
			writeError(w, http.StatusBadRequest, "At least one field (text, author, category) is required")
			return
		}

		q, err := svc.UpdateQuote(r.Context(), id, patch)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func DeleteQuote(svc *diary.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "quoteID")
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := svc.DeleteQuote(r.Context(), id); err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Quote deleted successfully"})
	}
}
