package handler

import (
	"net/http"
)

type supportOption struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

var supportOptions = []supportOption{
	{ID: 1, Name: "Anonymous Chatting", Emoji: "💬"},
	{ID: 2, Name: "Calendar/Diary", Emoji: "📅"},
	{ID: 3, Name: "Mental Therapy Request", Emoji: "🧠"},
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "OK",
			"message": "Server is running",
		})
	}
}

func SupportOptions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, supportOptions)
	}
}
