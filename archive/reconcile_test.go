package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/staticord/telemetry"
)

func twoGuildSource() *fakeSource {
	return &fakeSource{
		guilds: map[string]Guild{
			"gA": {ID: "gA", Name: "alpha"},
			"gB": {ID: "gB", Name: "beta"},
		},
		members: map[string][]MemberState{
			"gA": {{Member: Member{ID: "u1", GuildID: "gA", Name: "one"}}},
			"gB": {
				{Member: Member{ID: "u1", GuildID: "gB", Name: "one"}, Nickname: NewNickname("Uno")},
				{Member: Member{ID: "bot", GuildID: "gB", Name: "bot"}, Bot: true},
			},
		},
		channels: map[string][]Channel{
			"gB": {
				{ID: "b1", GuildID: "gB", CanReadHistory: true},
				{ID: "b2", GuildID: "gB", CanReadHistory: false},
			},
		},
		history: map[string][]Message{
			"b1": {
				{ID: "10", GuildID: "gB", ChannelID: "b1", CreatedAt: t0},
				{ID: "11", GuildID: "gB", ChannelID: "b1", CreatedAt: t0.Add(time.Second)},
			},
			"b2": {{ID: "20", GuildID: "gB", ChannelID: "b2", CreatedAt: t0}},
		},
		channelsErr: map[string]error{"gA": errFake},
	}
}

func TestReconcileAllIsolatesGuilds(t *testing.T) {
	store := newMemStore()
	a := New(store, twoGuildSource(), WithConcurrency(2))

	err := a.ReconcileAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "gA") {
		t.Fatalf("err = %v, want guild gA reported", err)
	}
	if _, ok := store.guilds["gB"]; !ok {
		t.Error("guild gB not upserted")
	}
	if got := store.messageIDs("b1"); len(got) != 2 {
		t.Errorf("gB channel b1 messages = %v, want 2", got)
	}
	if got := store.messageIDs("b2"); len(got) != 0 {
		t.Errorf("unreadable channel archived: %v", got)
	}
	// gA still saved its guild row and members before the channel listing failed
	if _, ok := store.members[[2]string{"gA", "u1"}]; !ok {
		t.Error("gA member not saved")
	}
	if _, ok := store.members[[2]string{"gB", "bot"}]; ok {
		t.Error("bot member archived")
	}
}

func TestReconcileGuildTwiceAddsNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := New(store, twoGuildSource())

	for range 2 {
		if err := a.ReconcileGuild(ctx, "gB"); err != nil {
			t.Fatalf("ReconcileGuild: %v", err)
		}
	}
	if len(store.nicknames) != 1 || len(store.activities) != 1 {
		t.Errorf("history rows nick=%d act=%d, want 1 each", len(store.nicknames), len(store.activities))
	}
	for id, n := range store.upserts {
		if n != 1 {
			t.Errorf("message %s upserted %d times", id, n)
		}
	}
}

func TestReconcileGuildObservesDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_reconcile_seconds", Help: "test"})
	prev := telemetry.ReconcileDuration
	telemetry.ReconcileDuration = h
	t.Cleanup(func() { telemetry.ReconcileDuration = prev })

	a := New(newMemStore(), twoGuildSource())
	if err := a.ReconcileGuild(context.Background(), "gB"); err != nil {
		t.Fatal(err)
	}
	m := &dto.Metric{}
	if err := h.Write(m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("reconcile observations = %d, want 1", got)
	}
}

func TestReconcileGuildUnknownGuild(t *testing.T) {
	a := New(newMemStore(), twoGuildSource())
	if err := a.ReconcileGuild(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown guild")
	}
}

func TestStartResyncJobStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newMemStore()
	a := New(store, twoGuildSource())

	done := make(chan struct{})
	go func() {
		StartResyncJob(ctx, a, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(store.messageIDs("b1")) == 0 {
		select {
		case <-deadline:
			t.Fatal("resync job never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resync job did not stop")
	}
}
