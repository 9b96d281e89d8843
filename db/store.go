package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/staticord/archive"
	"github.com/onnwee/staticord/game"
	"github.com/onnwee/staticord/telemetry"
)

// Store is the Postgres gateway behind archive.Store and game.Store. Upserts are keyed by
// natural key; nickname and activity inserts are appends clamped so they never backdate.
// Failures are logged and returned as *OpError.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

var (
	_ archive.Store = (*Store)(nil)
	_ game.Store    = (*Store)(nil)
)

func (s *Store) fail(ctx context.Context, op string, err error) error {
	telemetry.IncStoreError(op)
	telemetry.LoggerWithCorr(ctx).Warn("store operation failed", slog.String("op", op), slog.Any("err", err), slog.String("component", "db"))
	return &OpError{Op: op, Err: err}
}

// UpsertGuild inserts or renames a guild.
func (s *Store) UpsertGuild(ctx context.Context, g archive.Guild) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO staticord.guild (id, name, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()`, g.ID, g.Name)
	if err != nil {
		return s.fail(ctx, "upsert_guild", err)
	}
	return nil
}

// UpsertMember inserts or renames a member of a guild.
func (s *Store) UpsertMember(ctx context.Context, m archive.Member) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO staticord.member (id, guild, name, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id, guild) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()`, m.ID, m.GuildID, m.Name)
	if err != nil {
		return s.fail(ctx, "upsert_member", err)
	}
	return nil
}

// UpsertMessage inserts a message or overwrites it with the latest values.
func (s *Store) UpsertMessage(ctx context.Context, m archive.Message) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO staticord.message (id, guild, channel, user_id, content, datetime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET guild = EXCLUDED.guild, channel = EXCLUDED.channel,
			user_id = EXCLUDED.user_id, content = EXCLUDED.content, datetime = EXCLUDED.datetime`,
		m.ID, m.GuildID, m.ChannelID, m.AuthorID, m.Content, m.CreatedAt.UTC())
	if err != nil {
		return s.fail(ctx, "upsert_message", err)
	}
	return nil
}

// InsertNickname appends a nickname history row.
func (s *Store) InsertNickname(ctx context.Context, r archive.NicknameRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO staticord.nickname (guild, member, nickname, datetime)
		SELECT $1::text, $2::text, $3::text, GREATEST($4::timestamptz, COALESCE(MAX(datetime), $4::timestamptz))
		FROM staticord.nickname WHERE guild = $1 AND member = $2`,
		r.GuildID, r.MemberID, nullString(r.Nickname.Value, r.Nickname.Set), r.ObservedAt.UTC())
	if err != nil {
		return s.fail(ctx, "insert_nickname", err)
	}
	return nil
}

// InsertActivity appends an activity history row. Listening columns are only filled for
// listening snapshots.
func (s *Store) InsertActivity(ctx context.Context, r archive.ActivityRecord) error {
	a := r.Activity
	hasActivity := a.Kind != archive.ActivityNone
	listening := a.Kind == archive.ActivityListening
	_, err := s.db.ExecContext(ctx, `INSERT INTO staticord.activity (guild, member, status, type, name, start, "end",
			listening_title, listening_artist, listening_album, listening_track_id, listening_party, observed_at)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::timestamptz, $7::timestamptz,
			$8::text, $9::text, $10::text, $11::text, $12::text,
			GREATEST($13::timestamptz, COALESCE(MAX(observed_at), $13::timestamptz))
		FROM staticord.activity WHERE guild = $1 AND member = $2`,
		r.GuildID, r.MemberID, a.Status,
		nullString(a.Type, hasActivity), nullString(a.Name, hasActivity),
		nullTime(a.Start), nullTime(a.End),
		nullString(a.Listening.Title, listening), nullString(a.Listening.Artist, listening),
		nullString(a.Listening.Album, listening), nullString(a.Listening.TrackID, listening),
		nullString(a.Listening.PartyID, listening),
		r.ObservedAt.UTC())
	if err != nil {
		return s.fail(ctx, "insert_activity", err)
	}
	return nil
}

// LastNickname returns the most recently appended nickname, or nil when none was recorded.
func (s *Store) LastNickname(ctx context.Context, guildID, memberID string) (*archive.Nickname, error) {
	var nick sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT nickname FROM staticord.nickname WHERE guild = $1 AND member = $2
		ORDER BY datetime DESC, id DESC LIMIT 1`, guildID, memberID).Scan(&nick)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "last_nickname", err)
	}
	n := archive.Nickname{Value: nick.String, Set: nick.Valid}
	return &n, nil
}

// LastActivity returns the most recently appended activity snapshot, or nil when none was recorded.
func (s *Store) LastActivity(ctx context.Context, guildID, memberID string) (*archive.Activity, error) {
	var (
		a                                  archive.Activity
		typ, name                          sql.NullString
		start, end                         sql.NullTime
		title, artist, album, track, party sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT status, type, name, start, "end",
			listening_title, listening_artist, listening_album, listening_track_id, listening_party
		FROM staticord.activity WHERE guild = $1 AND member = $2
		ORDER BY observed_at DESC, id DESC LIMIT 1`, guildID, memberID).
		Scan(&a.Status, &typ, &name, &start, &end, &title, &artist, &album, &track, &party)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "last_activity", err)
	}
	switch {
	case !typ.Valid:
		a.Kind = archive.ActivityNone
	case title.Valid:
		a.Kind = archive.ActivityListening
		a.Listening = archive.Listening{Title: title.String, Artist: artist.String, Album: album.String, TrackID: track.String, PartyID: party.String}
	default:
		a.Kind = archive.ActivityPlain
	}
	a.Type, a.Name = typ.String, name.String
	if start.Valid {
		a.Start = start.Time
	}
	if end.Valid {
		a.End = end.Time
	}
	return &a, nil
}

// BackfillWatermark returns the creation time of the last message backfill wrote for a channel.
func (s *Store) BackfillWatermark(ctx context.Context, channelID string) (time.Time, bool, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT watermark FROM staticord.backfill_cursor WHERE channel = $1`, channelID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, s.fail(ctx, "backfill_watermark", err)
	}
	return t, true, nil
}

// AdvanceBackfillWatermark moves a channel's watermark forward; an older time is a no-op.
func (s *Store) AdvanceBackfillWatermark(ctx context.Context, channelID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO staticord.backfill_cursor (channel, watermark)
		VALUES ($1, $2)
		ON CONFLICT (channel) DO UPDATE SET
			watermark = GREATEST(staticord.backfill_cursor.watermark, EXCLUDED.watermark),
			updated_at = NOW()`, channelID, at)
	if err != nil {
		return s.fail(ctx, "advance_backfill_watermark", err)
	}
	return nil
}

// MemberEmojis lists the answer emoji mapping of a guild.
func (s *Store) MemberEmojis(ctx context.Context, guildID string) ([]game.MemberEmoji, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT member, emoji FROM staticord.member_emoji WHERE guild = $1 ORDER BY member`, guildID)
	if err != nil {
		return nil, s.fail(ctx, "member_emojis", err)
	}
	defer rows.Close()
	var out []game.MemberEmoji
	for rows.Next() {
		var me game.MemberEmoji
		if err := rows.Scan(&me.MemberID, &me.Emoji); err != nil {
			return nil, s.fail(ctx, "member_emojis", err)
		}
		out = append(out, me)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "member_emojis", err)
	}
	return out, nil
}

// SampleMessages picks count random messages of at least minLength characters written by
// members that have an answer emoji.
func (s *Store) SampleMessages(ctx context.Context, guildID string, minLength, count int) ([]game.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT m.content, m.user_id, mb.name, e.emoji
		FROM staticord.message m
		JOIN staticord.member mb ON mb.id = m.user_id AND mb.guild = m.guild
		JOIN staticord.member_emoji e ON e.member = m.user_id AND e.guild = m.guild
		WHERE m.guild = $1 AND char_length(m.content) >= $2
		ORDER BY random() LIMIT $3`, guildID, minLength, count)
	if err != nil {
		return nil, s.fail(ctx, "sample_messages", err)
	}
	defer rows.Close()
	var out []game.Question
	for rows.Next() {
		var q game.Question
		if err := rows.Scan(&q.Content, &q.AuthorID, &q.AuthorName, &q.Emoji); err != nil {
			return nil, s.fail(ctx, "sample_messages", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "sample_messages", err)
	}
	return out, nil
}

// Stats are archive row counts reported on /status.
type Stats struct {
	Guilds     int64 `json:"guilds"`
	Members    int64 `json:"members"`
	Messages   int64 `json:"messages"`
	Nicknames  int64 `json:"nicknames"`
	Activities int64 `json:"activities"`
}

// Stats counts the archive's rows.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM staticord.guild),
		(SELECT COUNT(*) FROM staticord.member),
		(SELECT COUNT(*) FROM staticord.message),
		(SELECT COUNT(*) FROM staticord.nickname),
		(SELECT COUNT(*) FROM staticord.activity)`).
		Scan(&st.Guilds, &st.Members, &st.Messages, &st.Nicknames, &st.Activities)
	if err != nil {
		return Stats{}, s.fail(ctx, "stats", err)
	}
	return st, nil
}

// Ping reports whether the pool can reach the database. It also refreshes the pool gauges.
func (s *Store) Ping(ctx context.Context) error {
	st := s.db.Stats()
	telemetry.UpdateDatabasePoolMetrics(st.OpenConnections, st.InUse)
	return s.db.PingContext(ctx)
}

func nullString(v string, valid bool) sql.NullString {
	return sql.NullString{String: v, Valid: valid}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
