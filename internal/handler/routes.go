package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/haven/internal"
	"github.com/johndosdos/haven/internal/chat"
	"github.com/johndosdos/haven/internal/diary"
	"github.com/johndosdos/haven/internal/metrics"
	"github.com/johndosdos/haven/internal/model"
	ratelimiter "github.com/johndosdos/haven/internal/rate_limiter"
	"github.com/johndosdos/haven/internal/therapy"
	ws "github.com/johndosdos/haven/internal/websocket"
)

type Deps struct {
	Chat     *chat.Service
	Therapy  *therapy.Service
	Diary    *diary.Service
	Accounts AccountStore
	Hub      *ws.Hub
	Tokens   TokenConfig

	AllowedOrigin string
	// Limiter throttles requests per client IP. Nil disables it.
	Limiter *ratelimiter.IPRateLimiter
}

// NewRouter wires every route with its middleware stack.
func NewRouter(d Deps) http.Handler {
	authn := internal.Authenticate(d.Tokens.Secret)
	optional := internal.OptionalAuth(d.Tokens.Secret)
	staff := internal.RequireRole(model.RoleTherapist, model.RoleAdmin)
	admin := internal.RequireRole(model.RoleAdmin)

	var origins []string
	if d.AllowedOrigin != "" && d.AllowedOrigin != "*" {
		origins = []string{d.AllowedOrigin}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(internal.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(internal.CORS(d.AllowedOrigin))

	r.Handle("/metrics", metrics.Handler())
	r.With(optional).Get("/ws", ServeWs(d.Hub, origins))

	r.Route("/api", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}

		r.Get("/health", Health())
		r.Get("/support-options", SupportOptions())

		r.Route("/auth", func(r chi.Router) {
			r.Post("/callback", AuthCallback(d.Accounts, d.Tokens))
			r.Post("/staff/login", StaffLogin(d.Accounts, d.Tokens))
			r.With(authn).Get("/user", CurrentUser(d.Accounts))
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/session", CreateChatSession(d.Chat))
			r.Get("/status/{sessionID}", ChatStatus(d.Chat))
			r.Post("/group", JoinChatGroup(d.Hub))
			r.Post("/message", PostChatMessage(d.Hub))
			r.Post("/leave", LeaveChat(d.Hub))
			r.Post("/moderate", Moderate(d.Chat))
			r.Get("/messages/{groupID}", GroupMessages(d.Chat))

			r.Route("/admin", func(r chi.Router) {
				r.Use(authn, admin)
				r.Get("/flagged-users", FlaggedUsers(d.Chat))
				r.Get("/banned-users", BannedUsers(d.Chat))
				r.Post("/unban", UnbanUser(d.Chat))
			})
		})

		r.Route("/therapy", func(r chi.Router) {
			r.Use(authn)
			r.Post("/request", RequestTherapy(d.Therapy))
			r.With(staff).Get("/pending", PendingTherapy(d.Therapy))
			r.With(staff).Post("/accept/{sessionID}", AcceptTherapy(d.Therapy))
			r.With(staff).Post("/start/{sessionID}", StartTherapy(d.Therapy))
			r.Post("/end/{sessionID}", EndTherapy(d.Therapy))
			r.Get("/session/{sessionID}", GetTherapySession(d.Therapy))
			r.Get("/user/{userRef}", UserTherapySessions(d.Therapy))
			r.With(staff).Get("/therapist/{therapistID}", TherapistSessions(d.Therapy))
			r.Post("/message", SendTherapyMessage(d.Therapy))
			r.Get("/messages/{sessionID}", TherapyMessages(d.Therapy))
		})

		r.Route("/calendar", func(r chi.Router) {
			r.Use(authn)
			r.Get("/view/{userRef}/{year}/{month}", CalendarView(d.Diary))
			r.Get("/date/{userRef}/{date}", CalendarDate(d.Diary))
			r.Get("/today/{userRef}", CalendarToday(d.Diary))
			r.Get("/quote/{userRef}", DailyQuote(d.Diary))
		})

		r.Route("/diary", func(r chi.Router) {
			r.Use(authn)
			r.Get("/streak/{userRef}", DiaryStreak(d.Diary))
			r.Get("/streak-data/{userRef}", DiaryStreakData(d.Diary))
			r.Get("/monthly/{userRef}/{year}/{month}", MonthlyEntries(d.Diary))
			r.Get("/entry/{userRef}/{date}", GetDiaryEntry(d.Diary))
			r.Post("/entry/{userRef}/{date}", CreateDiaryEntry(d.Diary))
			r.Put("/entry/{entryID}", UpdateDiaryEntry(d.Diary))
			r.Get("/can-edit/{userRef}/{date}", CanEditDate(d.Diary))
		})

		r.Route("/quotes", func(r chi.Router) {
			r.Get("/", ListQuotes(d.Diary))
			r.With(optional).Get("/random", RandomQuote(d.Diary))
			r.Get("/{quoteID}", GetQuote(d.Diary))

			r.Group(func(r chi.Router) {
				r.Use(authn, admin)
				r.Post("/", CreateQuote(d.Diary))
				r.Put("/{quoteID}", UpdateQuote(d.Diary))
				r.Delete("/{quoteID}", DeleteQuote(d.Diary))
			})
		})
	})

	return r
}
