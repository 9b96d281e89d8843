package archive

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrPermissionDenied is returned by a Source when the bot may not read a channel's history.
// Backfill treats it as a skip, not a failure.
var ErrPermissionDenied = errors.New("archive: missing permission to read history")

// Store is the persistence gateway. Upserts are idempotent by natural key; the two Insert
// methods are pure appends and rely on the caller's change detection.
// Last* methods return nil when nothing has been recorded yet.
//
// The backfill watermark is kept apart from the message rows: live messages land in the same
// table and must not move it, or a pass after a reconnect would skip the downtime.
type Store interface {
	UpsertGuild(ctx context.Context, g Guild) error
	UpsertMember(ctx context.Context, m Member) error
	UpsertMessage(ctx context.Context, m Message) error
	InsertNickname(ctx context.Context, r NicknameRecord) error
	InsertActivity(ctx context.Context, r ActivityRecord) error
	LastNickname(ctx context.Context, guildID, memberID string) (*Nickname, error)
	LastActivity(ctx context.Context, guildID, memberID string) (*Activity, error)
	// BackfillWatermark is the creation time of the last message a backfill pass wrote for the
	// channel; ok is false before the first pass.
	BackfillWatermark(ctx context.Context, channelID string) (t time.Time, ok bool, err error)
	// AdvanceBackfillWatermark moves the channel's watermark forward to at. It never moves back.
	AdvanceBackfillWatermark(ctx context.Context, channelID string, at time.Time) error
}

// Source is the chat platform as seen by reconciliation and backfill.
type Source interface {
	// GuildIDs lists the guilds the bot currently belongs to.
	GuildIDs(ctx context.Context) ([]string, error)
	Guild(ctx context.Context, guildID string) (Guild, error)
	Members(ctx context.Context, guildID string) ([]MemberState, error)
	TextChannels(ctx context.Context, guildID string) ([]Channel, error)
	// History yields the channel's messages created after the given time (zero means from the
	// beginning), oldest first. Messages sharing the boundary instant may be yielded again.
	// Iteration stops at the first error.
	History(ctx context.Context, ch Channel, after time.Time) iter.Seq2[Message, error]
}
