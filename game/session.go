package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/staticord/telemetry"
)

const promptRule = "**-------------------------------------------**"

// session plays one game: a sequence of rounds in one channel.
type session struct {
	guildID   string
	channelID string
	store     Store
	msgr      Messenger
	router    *router
	settings  Settings
	logger    *slog.Logger
}

func (s *session) run(ctx context.Context) error {
	emojis, err := s.store.MemberEmojis(ctx, s.guildID)
	if err != nil {
		return fmt.Errorf("member emojis: %w", err)
	}
	if len(emojis) == 0 {
		return ErrNoChoices
	}
	questions, err := s.store.SampleMessages(ctx, s.guildID, s.settings.MinLength, s.settings.Questions)
	if err != nil {
		return fmt.Errorf("sample messages: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	s.logger.Info("game started", slog.Int("questions", len(questions)), slog.Int("choices", len(emojis)))

	won := 0
	for i, q := range questions {
		res, err := s.playRound(ctx, i+1, len(questions), q, emojis)
		if err != nil {
			return err
		}
		telemetry.IncGameRound(res.Outcome.String())
		if res.Outcome == OutcomeAborted {
			return ctx.Err()
		}
		if res.Outcome == OutcomeWon {
			won++
		}
		if _, err := s.msgr.Send(ctx, s.channelID, announcement(res, q)); err != nil {
			return err
		}
		if i < len(questions)-1 {
			if err := sleep(ctx, s.settings.Cooldown); err != nil {
				return err
			}
		}
	}
	s.logger.Info("game finished", slog.Int("rounds", len(questions)), slog.Int("won", won))
	return nil
}

func (s *session) playRound(ctx context.Context, n, total int, q Question, emojis []MemberEmoji) (Result, error) {
	id, err := s.msgr.Send(ctx, s.channelID, prompt(n, total, q.Content))
	if err != nil {
		return Result{}, fmt.Errorf("post question %d: %w", n, err)
	}
	reactions, unsubscribe := s.router.subscribe(id)
	defer unsubscribe()

	for _, e := range emojis {
		if err := s.msgr.React(ctx, s.guildID, s.channelID, id, e.Emoji); err != nil {
			s.logger.Warn("adding answer reaction failed", slog.String("emoji", e.Emoji), slog.Any("err", err))
		}
	}
	round := NewRound(id, q.Emoji)
	res := round.Wait(ctx, reactions, s.settings.RoundTimeout)
	s.logger.Debug("round resolved", slog.Int("round", n), slog.String("outcome", res.Outcome.String()),
		slog.String("winner_id", res.WinnerID), slog.Int("wrong_answers", len(res.Losers)))
	return res, nil
}

// escapeMentions keeps quoted messages from pinging anyone.
func escapeMentions(s string) string { return strings.ReplaceAll(s, "@", "@ ") }

func prompt(n, total int, content string) string {
	return fmt.Sprintf("**Who said it? (%d/%d)**\n%s\n\n%s\n\n%s", n, total, promptRule, escapeMentions(content), promptRule)
}

func announcement(res Result, q Question) string {
	if res.Outcome == OutcomeWon {
		return fmt.Sprintf("<@%s> wins!\n\n**The answer was** %s %s\n**---**", res.WinnerID, q.AuthorName, q.Emoji)
	}
	return fmt.Sprintf("**Time expired**\n\n**The answer was** %s %s\n**---**", q.AuthorName, q.Emoji)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
