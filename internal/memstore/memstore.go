// Package memstore keeps every record in process memory. It backs the
// server when STORAGE_BACKEND=memory and the package tests; nothing survives
// a restart.
package memstore

import (
	"sync"
	"time"

	"github.com/johndosdos/haven/internal/model"
)

type Store struct {
	mu sync.RWMutex

	groups    map[int64]*model.ChatGroup
	messages  map[int64][]model.ChatMessage
	flags     map[string]*model.UserFlag
	banned    map[string]model.BannedUser
	therapy   map[int64]*model.TherapySession
	tmessages map[int64][]model.TherapyMessage
	diary     map[int64]*model.DiaryEntry
	quotes    map[int64]*model.Quote
	users     map[string]*model.User
	staff     map[string]*model.Staff

	nextGroupID          int64
	nextMessageID        int64
	nextTherapyID        int64
	nextTherapyMessageID int64
	nextDiaryID          int64
	nextQuoteID          int64
}

func New() *Store {
	return &Store{
		groups:    make(map[int64]*model.ChatGroup),
		messages:  make(map[int64][]model.ChatMessage),
		flags:     make(map[string]*model.UserFlag),
		banned:    make(map[string]model.BannedUser),
		therapy:   make(map[int64]*model.TherapySession),
		tmessages: make(map[int64][]model.TherapyMessage),
		diary:     make(map[int64]*model.DiaryEntry),
		quotes:    make(map[int64]*model.Quote),
		users:     make(map[string]*model.User),
		staff:     make(map[string]*model.Staff),
	}
}

// SeedQuotes adds the default quote collection.
func (s *Store) SeedQuotes() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range DefaultQuotes {
		s.nextQuoteID++
		q.ID = s.nextQuoteID
		q.CreatedAt = time.Now().UTC()
		s.quotes[q.ID] = &q
	}
}

// DefaultQuotes mirrors the seed rows of the quotes migration.
var DefaultQuotes = []model.Quote{
	{Text: "You don't have to control your thoughts. You just have to stop letting them control you.", Author: "Dan Millman", Category: "anxiety"},
	{Text: "There is hope, even when your brain tells you there isn't.", Author: "John Green", Category: "hope"},
	{Text: "Happiness can be found even in the darkest of times, if one only remembers to turn on the light.", Author: "J.K. Rowling", Category: "hope"},
	{Text: "What mental health needs is more sunlight, more candor, and more unashamed conversation.", Author: "Glenn Close", Category: "motivation"},
	{Text: "Self-care is how you take your power back.", Author: "Lalah Delia", Category: "self-care"},
	{Text: "It's okay to not be okay, as long as you don't give up.", Author: "Karen Salmansohn", Category: "motivation"},
	{Text: "Almost everything will work again if you unplug it for a few minutes, including you.", Author: "Anne Lamott", Category: "self-care"},
}
