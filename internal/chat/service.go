// Package chat implements anonymous peer chat: session registration, the
// group matcher that seats sessions into groups of MinGroupSize to
// MaxGroupSize participants, and the moderation ledger that flags and bans
// sessions posting inappropriate content.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/moderation"
)

var (
	ErrUnknownSession = errors.New("unknown chat session")
	ErrBanned         = errors.New("session is banned from chat")
	ErrNotInGroup     = errors.New("session is not in a chat group")
	ErrEmptyContent   = errors.New("message content is empty")
)

type Config struct {
	MaxGroupSize  int
	MinGroupSize  int
	FlagThreshold int
	HistoryLimit  int
	WaitTimeout   time.Duration
	// SessionTTL bounds how long an idle session (neither waiting nor seated)
	// stays registered.
	SessionTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxGroupSize:  5,
		MinGroupSize:  2,
		FlagThreshold: 3,
		HistoryLimit:  50,
		WaitTimeout:   10 * time.Minute,
		SessionTTL:    24 * time.Hour,
	}
}

type sanitizer interface {
	Sanitize(s string) string
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithUsernames replaces RandomUsername.
func WithUsernames(next func() string) Option {
	return func(s *Service) { s.newName = next }
}

type session struct {
	model.ChatSession
	waiting      bool
	waitingSince time.Time
	lastSeen     time.Time
}

type group struct {
	info    model.ChatGroup
	members []string
}

// Service is safe for concurrent use. All matching state is guarded by mu so
// a session can never be seated twice or be both waiting and seated.
type Service struct {
	store     Store
	moderator *moderation.Moderator
	sanitizer sanitizer
	cfg       Config
	now       func() time.Time
	newName   func() string

	mu       sync.Mutex
	sessions map[string]*session
	groups   map[int64]*group
	order    []int64
	waiting  []string
}

func NewService(store Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:     store,
		moderator: moderation.New(),
		sanitizer: moderation.NewSanitizer(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newName:   RandomUsername,
		sessions:  make(map[string]*session),
		groups:    make(map[int64]*group),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Placement reports a session that was seated into a group.
type Placement struct {
	SessionID string
	Username  string
	GroupID   int64
}

type JoinResult struct {
	Session    model.ChatSession
	Waiting    bool
	Resumed    bool
	IsNewGroup bool
	Group      *model.ChatGroup
	// Placed lists every session seated by this call, including the caller.
	Placed  []Placement
	History []model.ChatMessage
}

type LeaveResult struct {
	GroupID    int64
	Username   string
	WasWaiting bool
	// Placed lists waiting sessions moved into the vacated seat.
	Placed  []Placement
	Group   *model.ChatGroup
	History []model.ChatMessage
}

type SendResult struct {
	Message model.ChatMessage
	Banned  bool
	// Left is set when the message caused a ban and the session lost its seat.
	Left *LeaveResult
}

type Status struct {
	Banned  bool             `json:"banned"`
	BanInfo *model.UserFlag  `json:"ban_info"`
	InGroup bool             `json:"in_group"`
	Group   *model.ChatGroup `json:"group,omitempty"`
	Waiting bool             `json:"waiting"`
}

// CreateSession registers a new anonymous session.
func (s *Service) CreateSession(_ context.Context) (model.ChatSession, error) {
	now := s.now()
	sess := &session{
		ChatSession: model.ChatSession{
			ID:        uuid.NewString(),
			Username:  s.newName(),
			CreatedAt: now,
		},
		lastSeen: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess.ChatSession, nil
}

func (s *Service) checkBanned(ctx context.Context, sessionID string) error {
	flag, err := s.store.GetFlag(ctx, sessionID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check ban status: %w", err)
	}
	if flag.Banned {
		return ErrBanned
	}
	return nil
}

// Join seats a session into a group, or queues it when no group can be
// formed yet.
func (s *Service) Join(ctx context.Context, sessionID string) (JoinResult, error) {
	if sessionID == "" {
		return JoinResult{}, ErrUnknownSession
	}
	if err := s.checkBanned(ctx, sessionID); err != nil {
		return JoinResult{}, err
	}

	res, err := s.join(ctx, sessionID)
	if err != nil {
		return JoinResult{}, err
	}

	if res.Group != nil {
		res.History, err = s.store.ListRecentMessages(ctx, res.Group.ID, s.cfg.HistoryLimit)
		if err != nil {
			return res, fmt.Errorf("failed to load group history: %w", err)
		}
	}

	return res, nil
}

func (s *Service) join(ctx context.Context, sessionID string) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return JoinResult{}, ErrUnknownSession
	}
	sess.lastSeen = s.now()

	var res JoinResult

	if sess.GroupID != nil {
		if g, ok := s.groups[*sess.GroupID]; ok {
			info := g.info
			res.Session = sess.ChatSession
			res.Group = &info
			res.Resumed = true
			return res, nil
		}
		sess.GroupID = nil
	}

	if g := s.groupWithSpace(); g != nil {
		s.seat(g, sess)
		info := g.info
		res.Session = sess.ChatSession
		res.Group = &info
		res.Placed = []Placement{{SessionID: sess.ID, Username: sess.Username, GroupID: info.ID}}
		return res, nil
	}

	if !sess.waiting {
		sess.waiting = true
		sess.waitingSince = s.now()
		s.waiting = append(s.waiting, sess.ID)
	}

	if len(s.waiting) >= s.cfg.MinGroupSize {
		info, err := s.store.CreateGroup(ctx, uuid.NewString()[:8], s.cfg.MaxGroupSize)
		if err != nil {
			return JoinResult{}, fmt.Errorf("failed to create chat group: %w", err)
		}

		g := &group{info: info}
		s.groups[info.ID] = g
		s.order = append(s.order, info.ID)

		n := min(len(s.waiting), s.cfg.MaxGroupSize)
		for _, id := range s.waiting[:n] {
			member := s.sessions[id]
			s.seat(g, member)
			res.Placed = append(res.Placed, Placement{SessionID: id, Username: member.Username, GroupID: info.ID})
		}
		s.waiting = slices.Clone(s.waiting[n:])

		slog.InfoContext(ctx, "chat group formed",
			"group_id", info.ID,
			"members", n)

		if sess.GroupID != nil {
			res.Group = &info
			res.IsNewGroup = true
		}
	}

	res.Session = sess.ChatSession
	res.Waiting = res.Group == nil
	return res, nil
}

// groupWithSpace returns the oldest active group with a free seat. Callers
// must hold mu.
func (s *Service) groupWithSpace() *group {
	for _, id := range s.order {
		g := s.groups[id]
		if g != nil && len(g.members) < s.cfg.MaxGroupSize {
			return g
		}
	}
	return nil
}

// seat moves sess into g. Callers must hold mu.
func (s *Service) seat(g *group, sess *session) {
	if sess.waiting {
		s.waiting = slices.DeleteFunc(s.waiting, func(id string) bool { return id == sess.ID })
		sess.waiting = false
	}
	g.members = append(g.members, sess.ID)
	id := g.info.ID
	sess.GroupID = &id
}

// Leave removes a session from its group or from the waiting list. A group
// left empty is deactivated; otherwise its free seats are refilled from the
// waiting list.
func (s *Service) Leave(ctx context.Context, sessionID string) (LeaveResult, error) {
	res, deactivate, err := s.leave(sessionID)
	if err != nil {
		return res, err
	}

	if deactivate {
		if err := s.store.DeactivateGroup(ctx, res.GroupID); err != nil {
			slog.WarnContext(ctx, "failed to deactivate chat group",
				"group_id", res.GroupID,
				"error", err)
		}
	}

	if len(res.Placed) > 0 {
		res.History, err = s.store.ListRecentMessages(ctx, res.GroupID, s.cfg.HistoryLimit)
		if err != nil {
			return res, fmt.Errorf("failed to load group history: %w", err)
		}
	}

	return res, nil
}

func (s *Service) leave(sessionID string) (LeaveResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return LeaveResult{}, false, ErrUnknownSession
	}
	sess.lastSeen = s.now()

	res := LeaveResult{Username: sess.Username}

	if sess.waiting {
		s.waiting = slices.DeleteFunc(s.waiting, func(id string) bool { return id == sessionID })
		sess.waiting = false
		res.WasWaiting = true
		return res, false, nil
	}

	if sess.GroupID == nil {
		return res, false, ErrNotInGroup
	}

	gid := *sess.GroupID
	sess.GroupID = nil
	res.GroupID = gid

	g, ok := s.groups[gid]
	if !ok {
		return res, false, nil
	}
	g.members = slices.DeleteFunc(g.members, func(id string) bool { return id == sessionID })

	if len(g.members) == 0 {
		delete(s.groups, gid)
		s.order = slices.DeleteFunc(s.order, func(id int64) bool { return id == gid })
		return res, true, nil
	}

	free := s.cfg.MaxGroupSize - len(g.members)
	for free > 0 && len(s.waiting) > 0 {
		member := s.sessions[s.waiting[0]]
		s.seat(g, member)
		res.Placed = append(res.Placed, Placement{SessionID: member.ID, Username: member.Username, GroupID: gid})
		free--
	}
	if len(res.Placed) > 0 {
		info := g.info
		res.Group = &info
	}

	return res, false, nil
}

// Send moderates, stores and returns a message posted by a seated session.
// Content that violates policy is censored and counts as a flag against the
// session; reaching the flag threshold bans the session and unseats it.
func (s *Service) Send(ctx context.Context, sessionID, content string) (SendResult, error) {
	content = s.sanitizer.Sanitize(content)
	if content == "" {
		return SendResult{}, ErrEmptyContent
	}
	if err := s.checkBanned(ctx, sessionID); err != nil {
		return SendResult{}, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return SendResult{}, ErrUnknownSession
	}
	if sess.GroupID == nil {
		s.mu.Unlock()
		return SendResult{}, ErrNotInGroup
	}
	gid := *sess.GroupID
	username := sess.Username
	sess.lastSeen = s.now()
	s.mu.Unlock()

	verdict := s.moderator.Moderate(content)
	censored, _ := s.moderator.Censor(content)

	var res SendResult
	if !verdict.Appropriate {
		flag, err := s.store.FlagSession(ctx, sessionID, strings.Join(verdict.Violations, ", "), s.cfg.FlagThreshold, s.now())
		if err != nil {
			return SendResult{}, fmt.Errorf("failed to flag session: %w", err)
		}
		res.Banned = flag.Banned

		slog.InfoContext(ctx, "chat session flagged",
			"session_id", sessionID,
			"flag_count", flag.FlagCount,
			"violations", verdict.Violations,
			"banned", flag.Banned)
	}

	msg, err := s.store.CreateMessage(ctx, model.ChatMessage{
		GroupID:    gid,
		SessionID:  sessionID,
		Username:   username,
		Content:    censored,
		Flagged:    !verdict.Appropriate,
		Violations: verdict.Violations,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to store chat message: %w", err)
	}
	res.Message = msg

	if res.Banned {
		left, err := s.Leave(ctx, sessionID)
		if err == nil {
			res.Left = &left
		}
	}

	return res, nil
}

// Typing returns the group and username a typing indicator should be
// broadcast with.
func (s *Service) Typing(sessionID string) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, "", ErrUnknownSession
	}
	if sess.GroupID == nil {
		return 0, "", ErrNotInGroup
	}
	return *sess.GroupID, sess.Username, nil
}

// Status reports ban and seating information. Unknown sessions are reported
// as neither banned nor seated.
func (s *Service) Status(ctx context.Context, sessionID string) (Status, error) {
	var st Status

	flag, err := s.store.GetFlag(ctx, sessionID)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return st, fmt.Errorf("failed to load moderation record: %w", err)
	case flag.Banned:
		st.Banned = true
		st.BanInfo = &flag
		return st, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return st, nil
	}
	st.Waiting = sess.waiting
	if sess.GroupID != nil {
		if g, ok := s.groups[*sess.GroupID]; ok {
			info := g.info
			st.InGroup = true
			st.Group = &info
		}
	}
	return st, nil
}

// ExpireWaiting drops waiters that waited longer than WaitTimeout and forgets idle
// sessions older than SessionTTL. It returns the IDs of the dropped waiters.
func (s *Service) ExpireWaiting(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for _, id := range s.waiting {
		sess := s.sessions[id]
		if now.Sub(sess.waitingSince) >= s.cfg.WaitTimeout {
			expired = append(expired, id)
			sess.waiting = false
		}
	}
	if len(expired) > 0 {
		s.waiting = slices.DeleteFunc(s.waiting, func(id string) bool { return slices.Contains(expired, id) })
	}

	if s.cfg.SessionTTL > 0 {
		for id, sess := range s.sessions {
			if !sess.waiting && sess.GroupID == nil && now.Sub(sess.lastSeen) >= s.cfg.SessionTTL {
				delete(s.sessions, id)
			}
		}
	}

	return expired
}

// Members returns the session IDs seated in a group.
func (s *Service) Members(groupID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	return slices.Clone(g.members)
}

// Messages returns group history: the newest limit messages, or every
// message after sinceID when sinceID > 0.
func (s *Service) Messages(ctx context.Context, groupID int64, limit int, sinceID int64) ([]model.ChatMessage, error) {
	if sinceID > 0 {
		return s.store.ListMessagesSince(ctx, groupID, sinceID)
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.store.ListRecentMessages(ctx, groupID, limit)
}

// Moderate exposes the moderation verdict and censored text without posting.
func (s *Service) Moderate(content string) (moderation.Result, string, []string) {
	verdict := s.moderator.Moderate(content)
	censored, violations := s.moderator.Censor(content)
	return verdict, censored, violations
}

func (s *Service) Flagged(ctx context.Context) ([]model.UserFlag, error) {
	return s.store.ListFlagged(ctx)
}

func (s *Service) Banned(ctx context.Context) ([]model.BannedUser, error) {
	return s.store.ListBanned(ctx)
}

func (s *Service) Unban(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrUnknownSession
	}
	return s.store.Unban(ctx, sessionID)
}
