package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/staticord/telemetry"
)

// ReconcileGuild brings one guild's archive up to date: the guild row, every member's current
// state, then a backfill of every text channel. Members and channels are processed one at a
// time; a failure in one does not stop the others. The returned error summarizes what failed.
func (a *Archiver) ReconcileGuild(ctx context.Context, guildID string) error {
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	}
	ctx, span := telemetry.StartSpan(ctx, "archive", "reconcile_guild", attribute.String("guild_id", guildID))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("guild_id", guildID), slog.String("component", "archive_reconcile"))

	var (
		sum guildSummary
		err error
	)
	took := telemetry.TimeFunc(telemetry.ReconcileDuration, func() { sum, err = a.reconcileGuild(ctx, guildID, logger) })
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	logger.Info("guild reconciled",
		slog.String("guild", sum.name), slog.Int("members", sum.members), slog.Int("channels", sum.channels),
		slog.Int("messages_written", sum.written), slog.Int("failures", sum.failed),
		slog.Duration("took", took))
	if sum.failed > 0 {
		err := fmt.Errorf("reconcile guild %s: %d failures, first: %w", guildID, sum.failed, sum.first)
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

type guildSummary struct {
	name              string
	members, channels int
	written, failed   int
	first             error
}

// reconcileGuild runs the sequential steps of ReconcileGuild. A non-nil error means the guild
// could not be fetched or ctx ended; step failures are counted in the summary instead.
func (a *Archiver) reconcileGuild(ctx context.Context, guildID string, logger *slog.Logger) (guildSummary, error) {
	var sum guildSummary
	g, err := a.source.Guild(ctx, guildID)
	if err != nil {
		return sum, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	sum.name = g.Name
	logger = logger.With(slog.String("guild", g.Name))

	fail := func(err error) {
		sum.failed++
		if sum.first == nil {
			sum.first = err
		}
	}

	if err := a.store.UpsertGuild(ctx, g); err != nil {
		logger.Warn("guild upsert failed", slog.Any("err", err))
		fail(fmt.Errorf("upsert guild: %w", err))
	}

	members, err := a.source.Members(ctx, guildID)
	if err != nil {
		logger.Warn("listing members failed", slog.Any("err", err))
		fail(fmt.Errorf("list members: %w", err))
	}
	for _, m := range members {
		if ctx.Err() != nil {
			break
		}
		if err := a.SaveMember(ctx, m); err != nil {
			logger.Warn("member save failed", slog.String("member_id", m.ID), slog.Any("err", err))
			fail(err)
		}
	}

	channels, err := a.source.TextChannels(ctx, guildID)
	if err != nil {
		logger.Warn("listing channels failed", slog.Any("err", err))
		fail(fmt.Errorf("list channels: %w", err))
	}
	sum.members, sum.channels = len(members), len(channels)
	for _, ch := range channels {
		if ctx.Err() != nil {
			break
		}
		res, err := a.Backfill(ctx, ch)
		sum.written += res.Written
		if err != nil {
			logger.Warn("channel backfill failed", slog.String("channel_id", ch.ID), slog.Any("err", err))
			fail(err)
		}
	}

	return sum, ctx.Err()
}

// ReconcileAll reconciles every guild the bot belongs to, at most the configured number at a
// time. Guilds are isolated: one failing guild is logged and the others still complete.
func (a *Archiver) ReconcileAll(ctx context.Context) error {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "archive_reconcile"))

	ids, err := a.source.GuildIDs(ctx)
	if err != nil {
		return fmt.Errorf("list guilds: %w", err)
	}
	logger.Info("reconciling guilds", slog.Int("guilds", len(ids)), slog.Int("concurrency", a.concurrency))

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
	)
	g.SetLimit(a.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := a.ReconcileGuild(ctx, id); err != nil {
				logger.Error("guild reconcile failed", slog.String("guild_id", id), slog.Any("err", err))
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("reconcile: %d of %d guilds failed: %v", len(failed), len(ids), failed)
	}
	return nil
}

// StartResyncJob runs ReconcileAll every interval until ctx is cancelled. The first run happens
// one interval after start since startup reconciliation is driven by guild availability events.
// A non-positive interval disables the job.
func StartResyncJob(ctx context.Context, a *Archiver, interval time.Duration) {
	if interval <= 0 {
		slog.Info("resync job disabled")
		return
	}
	slog.Info("resync job starting", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("resync job stopped")
			return
		case <-ticker.C:
			if err := a.ReconcileAll(ctx); err != nil {
				slog.Warn("resync", slog.Any("err", err))
			}
		}
	}
}
