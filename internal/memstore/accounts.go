package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/haven/internal/model"
)

// UpsertUser creates the user on first sign-in and refreshes the profile
// fields on later ones.
func (s *Store) UpsertUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.users[u.ID]; ok {
		current.Email = u.Email
		if u.Name != "" {
			current.Name = u.Name
		}
		return *current, nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = &u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return *u, nil
}

func (s *Store) CreateStaff(_ context.Context, st model.Staff) (model.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(st.Email)
	if _, ok := s.staff[key]; ok {
		return model.Staff{}, model.ErrConflict
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.CreatedAt = time.Now().UTC()
	s.staff[key] = &st
	return st, nil
}

func (s *Store) GetStaffByEmail(_ context.Context, email string) (model.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.staff[strings.ToLower(email)]
	if !ok {
		return model.Staff{}, model.ErrNotFound
	}
	return *st, nil
}
