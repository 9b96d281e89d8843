package archive

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/onnwee/staticord/telemetry"
)

// EventKind identifies a live platform event.
type EventKind int

const (
	EventMessageReceived EventKind = iota + 1
	EventMemberJoined
	EventMemberUpdated
	EventGuildJoined
	EventGuildUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventMessageReceived:
		return "message_received"
	case EventMemberJoined:
		return "member_joined"
	case EventMemberUpdated:
		return "member_updated"
	case EventGuildJoined:
		return "guild_joined"
	case EventGuildUpdated:
		return "guild_updated"
	default:
		return "unknown"
	}
}

// Event is one live observation. Message is set for EventMessageReceived, Member for the member
// events; guild events only need GuildID.
type Event struct {
	Kind    EventKind
	GuildID string
	Message Message
	Member  MemberState
}

// Ingestor maps live events to archive operations. Every event runs in its own goroutine so a
// guild reconciliation never holds up message ingestion.
type Ingestor struct {
	archiver *Archiver
	handlers map[EventKind]func(context.Context, Event) error

	wg sync.WaitGroup

	mu      sync.Mutex
	running map[string]*guildRun
}

// guildRun coalesces guild events arriving while a reconciliation of that guild is running.
type guildRun struct {
	again bool
}

// NewIngestor returns an Ingestor writing through a.
func NewIngestor(a *Archiver) *Ingestor {
	in := &Ingestor{archiver: a, running: make(map[string]*guildRun)}
	in.handlers = map[EventKind]func(context.Context, Event) error{
		EventMessageReceived: in.onMessage,
		EventMemberJoined:    in.onMember,
		EventMemberUpdated:   in.onMember,
		EventGuildJoined:     in.onGuild,
		EventGuildUpdated:    in.onGuild,
	}
	return in
}

// Dispatch handles ev asynchronously. Errors are logged; they never reach the event source.
func (in *Ingestor) Dispatch(ctx context.Context, ev Event) {
	h, ok := in.handlers[ev.Kind]
	if !ok {
		slog.Warn("no handler for event", slog.Int("kind", int(ev.Kind)), slog.String("component", "archive_ingest"))
		return
	}
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		if err := h(ctx, ev); err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("event handling failed",
				slog.String("event", ev.Kind.String()), slog.String("guild_id", ev.GuildID),
				slog.Any("err", err), slog.String("component", "archive_ingest"))
		}
	}()
}

// Wait blocks until every dispatched event has been handled.
func (in *Ingestor) Wait() { in.wg.Wait() }

func (in *Ingestor) onMessage(ctx context.Context, ev Event) error {
	return in.archiver.SaveMessage(ctx, ev.Message)
}

func (in *Ingestor) onMember(ctx context.Context, ev Event) error {
	return in.archiver.SaveMember(ctx, ev.Member)
}

func (in *Ingestor) onGuild(ctx context.Context, ev Event) error {
	in.mu.Lock()
	if run, ok := in.running[ev.GuildID]; ok {
		run.again = true
		in.mu.Unlock()
		return nil
	}
	run := &guildRun{}
	in.running[ev.GuildID] = run
	in.mu.Unlock()

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	for {
		err := in.archiver.ReconcileGuild(ctx, ev.GuildID)
		in.mu.Lock()
		if !run.again || ctx.Err() != nil {
			delete(in.running, ev.GuildID)
			in.mu.Unlock()
			return err
		}
		run.again = false
		in.mu.Unlock()
		if err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("guild reconcile failed; rerunning for queued event",
				slog.String("guild_id", ev.GuildID), slog.Any("err", err), slog.String("component", "archive_ingest"))
		}
	}
}
