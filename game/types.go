package game

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionRunning is returned when the channel already has a game in progress.
	ErrSessionRunning = errors.New("game: a session is already running in this channel")
	// ErrTooManySessions is returned when the global session limit is reached.
	ErrTooManySessions = errors.New("game: too many sessions running")
	// ErrNoQuestions is returned when the archive has nothing to ask about.
	ErrNoQuestions = errors.New("game: no archived messages to play with")
	// ErrNoChoices is returned when no member has an answer emoji.
	ErrNoChoices = errors.New("game: no member emojis configured")
)

// MemberEmoji associates a member with the emoji used as their answer choice.
type MemberEmoji struct {
	MemberID string
	Emoji    string
}

// Question is one archived message paired with its author, the answer key.
type Question struct {
	Content    string
	AuthorID   string
	AuthorName string
	Emoji      string
}

// Store is the read side of the archive the game needs.
type Store interface {
	MemberEmojis(ctx context.Context, guildID string) ([]MemberEmoji, error)
	// SampleMessages returns up to count random messages of at least minLength characters
	// whose author has an emoji.
	SampleMessages(ctx context.Context, guildID string, minLength, count int) ([]Question, error)
}

// Messenger posts to and reacts in a channel.
type Messenger interface {
	// Send posts content and returns the new message id.
	Send(ctx context.Context, channelID, content string) (string, error)
	// React adds emoji to a message. Emoji is the member emoji identifier as stored.
	React(ctx context.Context, guildID, channelID, messageID, emoji string) error
}

// Reaction is a vote observed on a prompt message.
type Reaction struct {
	MessageID string
	UserID    string
	Bot       bool
	// Emoji is the reaction's name: the unicode character or the custom emoji name.
	Emoji string
}

// Settings tunes a session.
type Settings struct {
	Questions    int
	MinLength    int
	RoundTimeout time.Duration
	Cooldown     time.Duration
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{Questions: 40, MinLength: 50, RoundTimeout: 20 * time.Second, Cooldown: 10 * time.Second}
}
