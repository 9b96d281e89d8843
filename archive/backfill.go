package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/staticord/telemetry"
)

// BackfillResult describes one channel backfill pass.
type BackfillResult struct {
	ChannelID string
	Written   int
	Skipped   bool
	// Watermark is the channel's backfill watermark after the pass.
	Watermark time.Time
}

// Backfill archives the channel's messages newer than its backfill watermark, oldest first and
// one at a time, advancing the watermark after each write. A failed write stops the pass with
// the watermark at the last message written, so the next pass resumes right after it. Messages
// archived by the live path do not count. Channels without history access are skipped.
func (a *Archiver) Backfill(ctx context.Context, ch Channel) (BackfillResult, error) {
	res := BackfillResult{ChannelID: ch.ID}
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("guild_id", ch.GuildID), slog.String("channel_id", ch.ID),
		slog.String("channel", ch.Name), slog.String("component", "archive_backfill"))

	if !ch.CanReadHistory {
		res.Skipped = true
		telemetry.IncBackfill("skipped")
		logger.Debug("no history permission; skipping channel")
		return res, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "archive", "backfill_channel", attribute.String("channel_id", ch.ID))
	defer span.End()

	after, ok, err := a.store.BackfillWatermark(ctx, ch.ID)
	if err != nil {
		// without a watermark we would refetch the full history; try again next pass
		telemetry.IncBackfill("failed")
		telemetry.RecordError(span, err)
		return res, fmt.Errorf("watermark of channel %s: %w", ch.ID, err)
	}
	if ok {
		res.Watermark = after
	}
	logger.Info("backfilling channel", slog.Time("after", after), slog.Bool("full", !ok))

	for msg, err := range a.source.History(ctx, ch, after) {
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				res.Skipped = true
				telemetry.IncBackfill("skipped")
				logger.Info("history access denied; skipping channel", slog.Int("written", res.Written))
				return res, nil
			}
			telemetry.IncBackfill("failed")
			telemetry.RecordError(span, err)
			return res, fmt.Errorf("history of channel %s: %w", ch.ID, err)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := a.SaveMessage(ctx, msg); err != nil {
			telemetry.IncBackfill("failed")
			telemetry.RecordError(span, err)
			logger.Warn("backfill stopped at write failure",
				slog.String("message_id", msg.ID), slog.Int("written", res.Written), slog.Any("err", err))
			return res, err
		}
		res.Written++
		if err := a.store.AdvanceBackfillWatermark(ctx, ch.ID, msg.CreatedAt); err != nil {
			// the message is stored; the next pass re-upserts it
			telemetry.IncBackfill("failed")
			telemetry.RecordError(span, err)
			return res, fmt.Errorf("advance watermark of channel %s: %w", ch.ID, err)
		}
		res.Watermark = msg.CreatedAt
	}

	telemetry.IncBackfill("completed")
	telemetry.SetSpanSuccess(span)
	if res.Written > 0 {
		logger.Info("channel backfilled", slog.Int("written", res.Written), slog.Time("watermark", res.Watermark))
	}
	return res, nil
}
