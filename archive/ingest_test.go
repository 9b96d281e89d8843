package archive

import (
	"context"
	"testing"
)

func TestIngestorDispatch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	in := NewIngestor(New(store, twoGuildSource()))

	in.Dispatch(ctx, Event{Kind: EventMessageReceived, GuildID: "g1", Message: msg("99", t0)})
	in.Dispatch(ctx, Event{Kind: EventMemberJoined, GuildID: "g1", Member: member("Alice")})
	in.Dispatch(ctx, Event{Kind: EventGuildJoined, GuildID: "gB"})
	in.Dispatch(ctx, Event{Kind: EventKind(42)})
	in.Wait()

	if _, ok := store.messages["99"]; !ok {
		t.Error("live message not archived")
	}
	if _, ok := store.members[[2]string{"g1", "u1"}]; !ok {
		t.Error("joined member not archived")
	}
	if _, ok := store.guilds["gB"]; !ok {
		t.Error("guild join did not reconcile")
	}
	if len(in.running) != 0 {
		t.Errorf("running guilds left behind: %v", in.running)
	}
}

func TestIngestorLiveAndReconcileAgree(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	src := twoGuildSource()
	a := New(store, src)
	in := NewIngestor(a)

	// live update carrying the same state reconciliation will see
	in.Dispatch(ctx, Event{Kind: EventMemberUpdated, GuildID: "gB", Member: src.members["gB"][0]})
	in.Wait()
	if err := a.ReconcileGuild(ctx, "gB"); err != nil {
		t.Fatal(err)
	}
	if len(store.nicknames) != 1 {
		t.Errorf("nickname rows = %d, want 1", len(store.nicknames))
	}
}

func TestEventKindString(t *testing.T) {
	if EventGuildUpdated.String() != "guild_updated" || EventKind(0).String() != "unknown" {
		t.Error("unexpected event kind names")
	}
}
