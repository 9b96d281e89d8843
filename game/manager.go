// Package game runs the guess-the-author game: archived messages are posted one at a time and
// players vote for the author with reactions.
package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/onnwee/staticord/telemetry"
)

// Manager starts sessions, at most one per channel and a bounded number overall, and routes
// live reactions to the rounds waiting for them.
type Manager struct {
	store    Store
	msgr     Messenger
	settings Settings
	router   *router
	sem      *semaphore.Weighted

	mu   sync.Mutex
	busy map[string]bool
	wg   sync.WaitGroup
}

// NewManager returns a Manager allowing maxSessions concurrent sessions.
func NewManager(store Store, msgr Messenger, settings Settings, maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &Manager{
		store:    store,
		msgr:     msgr,
		settings: settings,
		router:   newRouter(),
		sem:      semaphore.NewWeighted(int64(maxSessions)),
		busy:     make(map[string]bool),
	}
}

// HandleReaction delivers a reaction to the round waiting on its message, if any.
func (m *Manager) HandleReaction(re Reaction) { m.router.publish(re) }

// Start launches a session in the background. When the channel is busy or the session limit is
// reached nothing starts: the channel is told and ErrSessionRunning or ErrTooManySessions returned.
func (m *Manager) Start(ctx context.Context, guildID, channelID string) error {
	m.mu.Lock()
	if m.busy[channelID] {
		m.mu.Unlock()
		m.notice(ctx, channelID, "A game is already running in this channel.")
		return ErrSessionRunning
	}
	if !m.sem.TryAcquire(1) {
		m.mu.Unlock()
		m.notice(ctx, channelID, "Too many games are running right now, try again later.")
		return ErrTooManySessions
	}
	m.busy[channelID] = true
	m.mu.Unlock()

	telemetry.AddGameSessions(1)
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("guild_id", guildID), slog.String("channel_id", channelID), slog.String("component", "game"))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.busy, channelID)
			m.mu.Unlock()
			m.sem.Release(1)
			telemetry.AddGameSessions(-1)
		}()
		s := &session{
			guildID: guildID, channelID: channelID,
			store: m.store, msgr: m.msgr, router: m.router,
			settings: m.settings, logger: logger,
		}
		err := s.run(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("game session failed", slog.Any("err", err))
		m.notice(context.WithoutCancel(ctx), channelID, noticeFor(err))
	}()
	return nil
}

// Wait blocks until every started session has ended.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) notice(ctx context.Context, channelID, text string) {
	if _, err := m.msgr.Send(ctx, channelID, text); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("game notice failed", slog.String("channel_id", channelID), slog.Any("err", err), slog.String("component", "game"))
	}
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, ErrNoChoices):
		return "No member emojis are configured for this server, so there is nothing to vote with."
	case errors.Is(err, ErrNoQuestions):
		return "There are not enough archived messages to play yet."
	default:
		return "The game stopped because of an error."
	}
}
