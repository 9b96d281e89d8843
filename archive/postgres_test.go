package archive_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/onnwee/staticord/archive"
	"github.com/onnwee/staticord/db"
	"github.com/onnwee/staticord/testutil"
)

// pagedSource serves a fixed guild. History fails once after failAfter messages when set.
type pagedSource struct {
	members   []archive.MemberState
	channel   archive.Channel
	messages  []archive.Message
	failAfter int
}

func (s *pagedSource) GuildIDs(context.Context) ([]string, error) { return []string{"g1"}, nil }

func (s *pagedSource) Guild(_ context.Context, id string) (archive.Guild, error) {
	return archive.Guild{ID: id, Name: "Guild One"}, nil
}

func (s *pagedSource) Members(context.Context, string) ([]archive.MemberState, error) {
	return s.members, nil
}

func (s *pagedSource) TextChannels(context.Context, string) ([]archive.Channel, error) {
	return []archive.Channel{s.channel}, nil
}

func (s *pagedSource) History(_ context.Context, _ archive.Channel, after time.Time) iter.Seq2[archive.Message, error] {
	return func(yield func(archive.Message, error) bool) {
		n := 0
		for _, m := range s.messages {
			if !after.IsZero() && m.CreatedAt.Before(after) {
				continue
			}
			if s.failAfter > 0 && n == s.failAfter {
				s.failAfter = 0
				yield(archive.Message{}, errors.New("gateway timeout"))
				return
			}
			n++
			if !yield(m, nil) {
				return
			}
		}
	}
}

func TestReconcileAgainstPostgres(t *testing.T) {
	store := db.NewStore(testutil.SetupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	src := &pagedSource{
		members: []archive.MemberState{
			{Member: archive.Member{ID: "u1", GuildID: "g1", Name: "alice#0001"}, Nickname: archive.NewNickname("Al"),
				Activity: archive.Activity{Status: "online", Kind: archive.ActivityPlain, Type: "playing", Name: "Go"}},
			{Member: archive.Member{ID: "b1", GuildID: "g1", Name: "bot#0000"}, Bot: true},
		},
		channel:   archive.Channel{ID: "c1", GuildID: "g1", Name: "general", CanReadHistory: true},
		failAfter: 2,
	}
	for i := range 4 {
		src.messages = append(src.messages, archive.Message{
			ID: string(rune('1' + i)), GuildID: "g1", ChannelID: "c1", AuthorID: "u1",
			Content: "message", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	a := archive.New(store, src, archive.WithClock(func() time.Time { return base.Add(time.Hour) }))
	if err := a.ReconcileGuild(ctx, "g1"); err == nil {
		t.Fatal("expected the interrupted history to fail the first pass")
	}
	last, ok, err := store.BackfillWatermark(ctx, "c1")
	if err != nil || !ok || !last.Equal(base.Add(time.Minute)) {
		t.Fatalf("watermark after interruption = %v %v %v", last, ok, err)
	}

	if err := a.ReconcileGuild(ctx, "g1"); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := db.Stats{Guilds: 1, Members: 1, Messages: 4, Nicknames: 1, Activities: 1}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
}
