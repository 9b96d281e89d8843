package game

import (
	"context"
	"time"
)

// Outcome is how a round ended.
type Outcome int

const (
	OutcomeWon Outcome = iota + 1
	OutcomeTimeout
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWon:
		return "won"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// RoundState is the position of a round in its lifecycle.
type RoundState int

const (
	AwaitingAnswer RoundState = iota
	Resolved
)

// Result describes a resolved round.
type Result struct {
	Outcome  Outcome
	WinnerID string
	// Losers are the users who answered wrong, in answer order.
	Losers []string
}

// Round is one question awaiting the author's emoji. The first reaction of a user counts as
// their answer; a wrong answer excludes the user for the rest of the round.
type Round struct {
	messageID string
	answer    string
	state     RoundState
	losers    map[string]bool
	result    Result
}

// NewRound starts a round for the prompt message whose correct reaction is answer.
func NewRound(messageID, answer string) *Round {
	return &Round{messageID: messageID, answer: answer, losers: make(map[string]bool)}
}

// State returns the current state.
func (r *Round) State() RoundState { return r.state }

// Result returns the outcome; meaningful once State is Resolved.
func (r *Round) Result() Result { return r.result }

// Observe applies a reaction and reports whether it resolved the round. Reactions on other
// messages, from bots or from users who already answered wrong are ignored.
func (r *Round) Observe(re Reaction) bool {
	if r.state == Resolved || re.MessageID != r.messageID || re.Bot || r.losers[re.UserID] {
		return false
	}
	if re.Emoji == r.answer {
		r.resolve(Result{Outcome: OutcomeWon, WinnerID: re.UserID})
		return true
	}
	r.losers[re.UserID] = true
	r.result.Losers = append(r.result.Losers, re.UserID)
	return false
}

// Expire resolves a pending round with no winner.
func (r *Round) Expire() {
	if r.state == AwaitingAnswer {
		r.resolve(Result{Outcome: OutcomeTimeout})
	}
}

func (r *Round) resolve(res Result) {
	res.Losers = r.result.Losers
	r.result = res
	r.state = Resolved
}

// Wait feeds reactions into the round until it resolves, timeout elapses or ctx is done.
func (r *Round) Wait(ctx context.Context, reactions <-chan Reaction, timeout time.Duration) Result {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for r.state == AwaitingAnswer {
		select {
		case <-ctx.Done():
			r.resolve(Result{Outcome: OutcomeAborted})
		case <-timer.C:
			r.Expire()
		case re, ok := <-reactions:
			if !ok {
				r.resolve(Result{Outcome: OutcomeAborted})
				continue
			}
			r.Observe(re)
		}
	}
	return r.result
}
