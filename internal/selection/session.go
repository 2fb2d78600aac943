package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"botdesk/internal/models"
)

// ErrUnknownBot is returned when selecting a bot that is not in the session's live list.
var ErrUnknownBot = errors.New("selection: bot is not part of the tenant's bots")

// Source is the bot-list collaborator: it returns a tenant's bots in natural order.
type Source interface {
	FetchBots(ctx context.Context, tenantID string) ([]models.Bot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, tenantID string) ([]models.Bot, error)

func (f SourceFunc) FetchBots(ctx context.Context, tenantID string) ([]models.Bot, error) {
	return f(ctx, tenantID)
}

// Snapshot is the read side of a session as rendered to the dashboard.
type Snapshot struct {
	SelectedBot *models.Bot  `json:"selected_bot"`
	Bots        []models.Bot `json:"bots"`
	IsLoading   bool         `json:"is_loading"`
}

// Session holds the active bot of one dashboard session of one tenant.
type Session struct {
	id       string
	tenantID string
	source   Source
	store    Store
	logger   *zap.Logger

	// fetchMu serializes Refetch calls of this session.
	fetchMu sync.Mutex
	// ready is closed once the first fetch has been applied or has failed.
	ready chan struct{}

	mu        sync.Mutex
	bots      []models.Bot
	selected  *models.Bot
	persisted string
	loading   bool
	lastUsed  time.Time
	unsub     func()
	// seq numbers fetches in the order they started; applied is the newest
	// one whose list is in bots. Older lists arriving late are dropped.
	seq     uint64
	applied uint64
}

func newSession(id, tenantID string, source Source, store Store, logger *zap.Logger) *Session {
	return &Session{
		id:       id,
		tenantID: tenantID,
		source:   source,
		store:    store,
		logger:   logger.With(zap.String("tenant_id", tenantID), zap.String("session_id", id)),
		ready:    make(chan struct{}),
		loading:  true,
		lastUsed: time.Now(),
	}
}

// start reads the persisted selection once and performs the first fetch.
func (s *Session) start(ctx context.Context) {
	defer close(s.ready)

	if v, ok := s.store.Get(ctx, Key(s.tenantID)); ok {
		s.mu.Lock()
		s.persisted = v
		s.mu.Unlock()
	}
	if err := s.Refetch(ctx); err != nil {
		s.logger.Warn("Initial bot fetch failed", zap.Error(err))
	}
}

// wait blocks until start has finished or ctx ends.
func (s *Session) wait(ctx context.Context) {
	select {
	case <-s.ready:
	case <-ctx.Done():
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) TenantID() string { return s.tenantID }

// SelectedBot returns a copy of the active bot, or nil when there is none.
func (s *Session) SelectedBot() *models.Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	b := *s.selected
	return &b
}

// Bots returns a copy of the live bot list.
func (s *Session) Bots() []models.Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Bot(nil), s.bots...)
}

// IsLoading reports whether a fetch is in flight.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Snapshot returns the selected bot, the bot list and the loading flag at one instant.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Bots:      append([]models.Bot{}, s.bots...),
		IsLoading: s.loading,
	}
	if s.selected != nil {
		b := *s.selected
		snap.SelectedBot = &b
	}
	return snap
}

// SetSelectedBot makes bot the active bot right away and persists the choice
// for the tenant's future sessions. A failed persistence write is logged and
// does not undo the in-memory selection.
func (s *Session) SetSelectedBot(ctx context.Context, bot models.Bot) error {
	s.mu.Lock()
	live := find(s.bots, bot.ID)
	if live == nil || live.TenantID != s.tenantID {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBot, bot.ID)
	}
	s.selected = live
	s.persisted = live.ID
	s.lastUsed = time.Now()
	s.mu.Unlock()

	if err := s.store.Set(ctx, Key(s.tenantID), live.ID); err != nil {
		s.logger.Warn("Failed to persist selected bot", zap.String("bot_id", live.ID), zap.Error(err))
	}
	return nil
}

// Refetch pulls the tenant's bots from the source and reconciles the selection.
// On failure the previous list and selection are kept.
func (s *Session) Refetch(ctx context.Context) error {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	ticket := s.beginFetch()
	bots, err := s.source.FetchBots(ctx, s.tenantID)
	if err != nil {
		s.fetchFailed()
		return fmt.Errorf("fetch bots for tenant %s: %w", s.tenantID, err)
	}

	s.apply(bots, ticket)
	return nil
}

// beginFetch marks a fetch as started and returns its ticket. The ticket must
// be taken before the source is read.
func (s *Session) beginFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.loading = true
	return s.seq
}

func (s *Session) fetchFailed() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

// replace applies a list fetched by someone else, e.g. a manager-wide refresh,
// under a ticket obtained from beginFetch.
func (s *Session) replace(bots []models.Bot, ticket uint64) {
	s.apply(bots, ticket)
}

func (s *Session) apply(bots []models.Bot, ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket < s.applied {
		s.logger.Debug("Dropped stale bot list", zap.Uint64("ticket", ticket), zap.Uint64("applied", s.applied))
		return
	}
	s.applied = ticket
	s.bots = bots
	s.loading = false

	if s.selected == nil {
		s.selected = Resolve(bots, s.persisted)
		return
	}

	prev := s.selected
	s.selected = Reconcile(prev, bots)
	if s.selected == nil || s.selected.ID != prev.ID {
		next := ""
		if s.selected != nil {
			next = s.selected.ID
		}
		s.logger.Info("Selected bot no longer available, fell back",
			zap.String("previous_bot_id", prev.ID), zap.String("bot_id", next))
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
