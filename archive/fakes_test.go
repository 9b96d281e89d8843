package archive

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"
)

var errFake = errors.New("fake failure")

// memStore is an in-memory Store with per-operation failure hooks.
type memStore struct {
	mu         sync.Mutex
	guilds     map[string]Guild
	members    map[[2]string]Member
	messages   map[string]Message
	upserts    map[string]int
	nicknames  []NicknameRecord
	activities []ActivityRecord
	watermarks map[string]time.Time

	failMessage  func(Message) error
	failLastNick error
	failGuild    error
}

func newMemStore() *memStore {
	return &memStore{
		guilds:     map[string]Guild{},
		members:    map[[2]string]Member{},
		messages:   map[string]Message{},
		upserts:    map[string]int{},
		watermarks: map[string]time.Time{},
	}
}

func (s *memStore) UpsertGuild(_ context.Context, g Guild) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGuild != nil {
		return s.failGuild
	}
	s.guilds[g.ID] = g
	return nil
}

func (s *memStore) UpsertMember(_ context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[[2]string{m.GuildID, m.ID}] = m
	return nil
}

func (s *memStore) UpsertMessage(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMessage != nil {
		if err := s.failMessage(m); err != nil {
			return err
		}
	}
	s.messages[m.ID] = m
	s.upserts[m.ID]++
	return nil
}

func (s *memStore) InsertNickname(_ context.Context, r NicknameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nicknames = append(s.nicknames, r)
	return nil
}

func (s *memStore) InsertActivity(_ context.Context, r ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, r)
	return nil
}

func (s *memStore) LastNickname(_ context.Context, guildID, memberID string) (*Nickname, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLastNick != nil {
		return nil, s.failLastNick
	}
	for i := len(s.nicknames) - 1; i >= 0; i-- {
		if r := s.nicknames[i]; r.GuildID == guildID && r.MemberID == memberID {
			n := r.Nickname
			return &n, nil
		}
	}
	return nil, nil
}

func (s *memStore) LastActivity(_ context.Context, guildID, memberID string) (*Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.activities) - 1; i >= 0; i-- {
		if r := s.activities[i]; r.GuildID == guildID && r.MemberID == memberID {
			a := r.Activity
			return &a, nil
		}
	}
	return nil, nil
}

func (s *memStore) BackfillWatermark(_ context.Context, channelID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.watermarks[channelID]
	return t, ok, nil
}

func (s *memStore) AdvanceBackfillWatermark(_ context.Context, channelID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.watermarks[channelID]; !ok || at.After(cur) {
		s.watermarks[channelID] = at
	}
	return nil
}

func (s *memStore) messageIDs(channelID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, m := range s.messages {
		if m.ChannelID == channelID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// fakeSource serves fixed guild contents.
type fakeSource struct {
	guilds      map[string]Guild
	members     map[string][]MemberState
	channels    map[string][]Channel
	history     map[string][]Message
	channelsErr map[string]error
	denied      map[string]bool
}

func (f *fakeSource) GuildIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.guilds))
	for id := range f.guilds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeSource) Guild(_ context.Context, id string) (Guild, error) {
	g, ok := f.guilds[id]
	if !ok {
		return Guild{}, errFake
	}
	return g, nil
}

func (f *fakeSource) Members(_ context.Context, guildID string) ([]MemberState, error) {
	return f.members[guildID], nil
}

func (f *fakeSource) TextChannels(_ context.Context, guildID string) ([]Channel, error) {
	if err := f.channelsErr[guildID]; err != nil {
		return nil, err
	}
	return f.channels[guildID], nil
}

func (f *fakeSource) History(_ context.Context, ch Channel, after time.Time) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		if f.denied[ch.ID] {
			yield(Message{}, ErrPermissionDenied)
			return
		}
		for _, m := range f.history[ch.ID] {
			if !m.CreatedAt.After(after) {
				continue
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// stepClock returns a clock advancing by one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}
