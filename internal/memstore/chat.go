package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/johndosdos/haven/internal/model"
)

func (s *Store) CreateGroup(_ context.Context, code string, maxMembers int) (model.ChatGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextGroupID++
	g := &model.ChatGroup{
		ID:         s.nextGroupID,
		Code:       code,
		MaxMembers: maxMembers,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	s.groups[g.ID] = g
	return *g, nil
}

func (s *Store) DeactivateGroup(_ context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return model.ErrNotFound
	}
	g.Active = false
	return nil
}

func (s *Store) CreateMessage(_ context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[msg.GroupID]; !ok {
		return model.ChatMessage{}, model.ErrNotFound
	}

	s.nextMessageID++
	msg.ID = s.nextMessageID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Violations = slices.Clone(msg.Violations)
	s.messages[msg.GroupID] = append(s.messages[msg.GroupID], msg)
	return msg, nil
}

func (s *Store) ListRecentMessages(_ context.Context, groupID int64, limit int) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[groupID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]model.ChatMessage{}, msgs...), nil
}

func (s *Store) ListMessagesSince(_ context.Context, groupID, sinceID int64) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.ChatMessage{}
	for _, m := range s.messages[groupID] {
		if m.ID > sinceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) FlagSession(_ context.Context, sessionID, reason string, threshold int, at time.Time) (model.UserFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flags[sessionID]
	if !ok {
		f = &model.UserFlag{SessionID: sessionID}
		s.flags[sessionID] = f
	}
	f.FlagCount++
	flaggedAt := at
	f.LastFlaggedAt = &flaggedAt

	if f.FlagCount >= threshold && !f.Banned {
		f.Banned = true
		f.BannedAt = &flaggedAt
		f.BanReason = reason
		s.banned[sessionID] = model.BannedUser{
			SessionID: sessionID,
			Reason:    f.BanReason,
			BannedBy:  "System",
			BannedAt:  at,
		}
	}
	return *f, nil
}

func (s *Store) GetFlag(_ context.Context, sessionID string) (model.UserFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flags[sessionID]
	if !ok {
		return model.UserFlag{}, model.ErrNotFound
	}
	return *f, nil
}

func (s *Store) ListFlagged(_ context.Context) ([]model.UserFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.UserFlag{}
	for _, f := range s.flags {
		if f.FlagCount > 0 {
			out = append(out, *f)
		}
	}
	slices.SortFunc(out, func(a, b model.UserFlag) int { return b.FlagCount - a.FlagCount })
	return out, nil
}

func (s *Store) ListBanned(_ context.Context) ([]model.BannedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.BannedUser{}
	for _, b := range s.banned {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b model.BannedUser) int { return b.BannedAt.Compare(a.BannedAt) })
	return out, nil
}

func (s *Store) Unban(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flags[sessionID]
	if !ok {
		return model.ErrNotFound
	}
	f.Banned = false
	f.BannedAt = nil
	f.BanReason = ""
	f.FlagCount = 0
	delete(s.banned, sessionID)
	return nil
}
