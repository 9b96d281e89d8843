package archive

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/staticord/telemetry"
)

// Archiver writes platform observations through a Store. It is safe for concurrent use.
type Archiver struct {
	store       Store
	source      Source
	now         func() time.Time
	concurrency int

	// read-compare-append of one history kind must not interleave for a member across the
	// live and reconcile paths
	nickLocks     memberLocks
	activityLocks memberLocks
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides the clock used for observed_at stamps.
func WithClock(now func() time.Time) Option { return func(a *Archiver) { a.now = now } }

// WithConcurrency bounds how many guilds ReconcileAll processes at once (default 4).
func WithConcurrency(n int) Option {
	return func(a *Archiver) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// New returns an Archiver over the given store and source.
func New(store Store, source Source, opts ...Option) *Archiver {
	a := &Archiver{
		store:       store,
		source:      source,
		now:         func() time.Time { return time.Now().UTC() },
		concurrency: 4,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SaveMessage upserts one message.
func (a *Archiver) SaveMessage(ctx context.Context, m Message) error {
	if err := a.store.UpsertMessage(ctx, m); err != nil {
		return fmt.Errorf("upsert message %s: %w", m.ID, err)
	}
	telemetry.IncMessagesArchived()
	return nil
}

// SaveMember upserts the member row and appends nickname and activity rows when they differ
// from the last recorded ones. Bots are ignored. Each step runs even if an earlier one failed;
// the failures are joined.
func (a *Archiver) SaveMember(ctx context.Context, ms MemberState) error {
	if ms.Bot {
		return nil
	}
	var errs []error
	if err := a.store.UpsertMember(ctx, ms.Member); err != nil {
		errs = append(errs, fmt.Errorf("upsert member %s: %w", ms.ID, err))
	}

	if err := a.saveNickname(ctx, ms); err != nil {
		errs = append(errs, err)
	}
	if err := a.saveActivity(ctx, ms); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Archiver) saveNickname(ctx context.Context, ms MemberState) error {
	defer a.nickLocks.lock(ms.GuildID, ms.ID)()
	last, err := a.store.LastNickname(ctx, ms.GuildID, ms.ID)
	if err != nil {
		// unknown baseline: skip, the next observation retries
		return fmt.Errorf("last nickname of %s: %w", ms.ID, err)
	}
	if !Changed(last, ms.Nickname) {
		return nil
	}
	rec := NicknameRecord{GuildID: ms.GuildID, MemberID: ms.ID, Nickname: ms.Nickname, ObservedAt: a.now()}
	if err := a.store.InsertNickname(ctx, rec); err != nil {
		return fmt.Errorf("insert nickname of %s: %w", ms.ID, err)
	}
	telemetry.IncHistoryAppended("nickname")
	telemetry.LoggerWithCorr(ctx).Debug("nickname changed",
		slog.String("guild_id", ms.GuildID), slog.String("member_id", ms.ID),
		slog.String("nickname", ms.Nickname.String()), slog.String("component", "archive"))
	return nil
}

func (a *Archiver) saveActivity(ctx context.Context, ms MemberState) error {
	defer a.activityLocks.lock(ms.GuildID, ms.ID)()
	last, err := a.store.LastActivity(ctx, ms.GuildID, ms.ID)
	if err != nil {
		return fmt.Errorf("last activity of %s: %w", ms.ID, err)
	}
	if !Changed(last, ms.Activity) {
		return nil
	}
	rec := ActivityRecord{GuildID: ms.GuildID, MemberID: ms.ID, Activity: ms.Activity, ObservedAt: a.now()}
	if err := a.store.InsertActivity(ctx, rec); err != nil {
		return fmt.Errorf("insert activity of %s: %w", ms.ID, err)
	}
	telemetry.IncHistoryAppended("activity")
	telemetry.LoggerWithCorr(ctx).Debug("activity changed",
		slog.String("guild_id", ms.GuildID), slog.String("member_id", ms.ID),
		slog.String("status", ms.Activity.Status), slog.String("kind", ms.Activity.Kind.String()),
		slog.String("name", ms.Activity.Name), slog.String("component", "archive"))
	return nil
}

// memberLocks stripes (guild, member) keys over a fixed set of mutexes.
type memberLocks [256]sync.Mutex

func (l *memberLocks) lock(guildID, memberID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(guildID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(memberID))
	mu := &l[h.Sum32()%uint32(len(l))]
	mu.Lock()
	return mu.Unlock
}
