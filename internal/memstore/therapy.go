package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/johndosdos/haven/internal/model"
)

func (s *Store) CreateTherapySession(_ context.Context, ts model.TherapySession) (model.TherapySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTherapyID++
	ts.ID = s.nextTherapyID
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = time.Now().UTC()
	}
	s.therapy[ts.ID] = &ts
	return ts, nil
}

func (s *Store) GetTherapySession(_ context.Context, id int64) (model.TherapySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.therapy[id]
	if !ok {
		return model.TherapySession{}, model.ErrNotFound
	}
	return *ts, nil
}

func (s *Store) listTherapy(match func(*model.TherapySession) bool, oldestFirst bool) []model.TherapySession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.TherapySession{}
	for _, ts := range s.therapy {
		if match(ts) {
			out = append(out, *ts)
		}
	}
	slices.SortFunc(out, func(a, b model.TherapySession) int {
		if oldestFirst {
			return int(a.ID - b.ID)
		}
		return int(b.ID - a.ID)
	})
	return out
}

func (s *Store) ListTherapySessionsByStatus(_ context.Context, status model.TherapyStatus) ([]model.TherapySession, error) {
	return s.listTherapy(func(ts *model.TherapySession) bool { return ts.Status == status }, true), nil
}

func (s *Store) ListUserTherapySessions(_ context.Context, userRef string) ([]model.TherapySession, error) {
	return s.listTherapy(func(ts *model.TherapySession) bool { return ts.UserRef == userRef }, false), nil
}

func (s *Store) ListTherapistSessions(_ context.Context, therapistID string) ([]model.TherapySession, error) {
	return s.listTherapy(func(ts *model.TherapySession) bool { return ts.TherapistID == therapistID }, false), nil
}

// update applies fn to the session when cond holds, under the write lock.
func (s *Store) update(id int64, cond func(*model.TherapySession) bool, fn func(*model.TherapySession)) (model.TherapySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.therapy[id]
	if !ok {
		return model.TherapySession{}, model.ErrNotFound
	}
	if !cond(ts) {
		return model.TherapySession{}, model.ErrConflict
	}
	fn(ts)
	return *ts, nil
}

func (s *Store) AcceptTherapySession(_ context.Context, id int64, therapistID string, at time.Time) (model.TherapySession, error) {
	return s.update(id,
		func(ts *model.TherapySession) bool { return ts.Status == model.TherapyRequested },
		func(ts *model.TherapySession) {
			ts.Status = model.TherapyAccepted
			ts.TherapistID = therapistID
			ts.AcceptedAt = &at
		})
}

func (s *Store) StartTherapySession(_ context.Context, id int64, therapistID string, at time.Time) (model.TherapySession, error) {
	return s.update(id,
		func(ts *model.TherapySession) bool {
			return ts.Status == model.TherapyAccepted && ts.TherapistID == therapistID
		},
		func(ts *model.TherapySession) {
			ts.Status = model.TherapyInProgress
			ts.StartedAt = &at
		})
}

func (s *Store) EndTherapySession(_ context.Context, id int64, at time.Time) (model.TherapySession, error) {
	return s.update(id,
		func(ts *model.TherapySession) bool { return ts.Status != model.TherapyEnded },
		func(ts *model.TherapySession) {
			ts.Status = model.TherapyEnded
			ts.EndedAt = &at
			if ts.StartedAt != nil {
				minutes := int(at.Sub(*ts.StartedAt) / time.Minute)
				ts.ActualDuration = &minutes
			}
		})
}

func (s *Store) CreateTherapyMessage(_ context.Context, msg model.TherapyMessage) (model.TherapyMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.therapy[msg.SessionID]
	if !ok {
		return model.TherapyMessage{}, model.ErrNotFound
	}
	if ts.Status == model.TherapyEnded {
		return model.TherapyMessage{}, model.ErrConflict
	}
	s.nextTherapyMessageID++
	msg.ID = s.nextTherapyMessageID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.tmessages[msg.SessionID] = append(s.tmessages[msg.SessionID], msg)
	return msg, nil
}

func (s *Store) ListTherapyMessages(_ context.Context, sessionID int64) ([]model.TherapyMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.TherapyMessage{}, s.tmessages[sessionID]...), nil
}
