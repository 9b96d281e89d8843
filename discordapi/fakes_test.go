package discordapi

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/staticord/archive"
	"github.com/onnwee/staticord/game"
)

var errNotFound = errors.New("not found")

// fakeREST serves a fixed channel history, newest first like the real API.
type fakeREST struct {
	messages map[string][]*discordgo.Message // ascending by id
	members  []*discordgo.Member
	channels []*discordgo.Channel
	perms    map[string]int64
	denied   map[string]bool
	calls    []string // afterID of each ChannelMessages call
}

func (f *fakeREST) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	return &discordgo.Guild{ID: guildID, Name: "rest-" + guildID}, nil
}

func (f *fakeREST) GuildMembers(_ string, after string, limit int, _ ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	var out []*discordgo.Member
	for _, m := range f.members {
		if after != "" && !snowflakeLess(after, m.User.ID) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeREST) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return f.channels, nil
}

func (f *fakeREST) ChannelMessages(channelID string, limit int, _, afterID, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.calls = append(f.calls, afterID)
	if f.denied[channelID] {
		return nil, &discordgo.RESTError{
			Response: &http.Response{StatusCode: http.StatusForbidden},
			Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingAccess, Message: "Missing Access"},
		}
	}
	var page []*discordgo.Message
	for _, m := range f.messages[channelID] {
		if snowflakeLess(afterID, m.ID) && len(page) < limit {
			page = append(page, m)
		}
	}
	slices.Reverse(page)
	return page, nil
}

func (f *fakeREST) UserChannelPermissions(_, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	p, ok := f.perms[channelID]
	if !ok {
		return 0, errNotFound
	}
	return p, nil
}

type fakeState struct {
	guilds    []string
	botID     string
	presences map[string]*discordgo.Presence
	members   map[string]*discordgo.Member
	emojis    []*discordgo.Emoji
}

func (f *fakeState) GuildIDs() []string { return f.guilds }
func (f *fakeState) BotID() string      { return f.botID }

func (f *fakeState) Presence(_, userID string) (*discordgo.Presence, error) {
	if p, ok := f.presences[userID]; ok {
		return p, nil
	}
	return nil, errNotFound
}

func (f *fakeState) Member(_, userID string) (*discordgo.Member, error) {
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return nil, errNotFound
}

func (f *fakeState) Guild(string) (*discordgo.Guild, error) { return nil, errNotFound }

func (f *fakeState) Emojis(string) []*discordgo.Emoji { return f.emojis }

// snowflakeMsg builds a message whose id encodes at.
func snowflakeMsg(channelID string, at time.Time, seq int64) *discordgo.Message {
	id, _ := strconv.ParseInt(snowflakeAt(at), 10, 64)
	return &discordgo.Message{
		ID:        strconv.FormatInt(id+seq, 10),
		ChannelID: channelID,
		Content:   "msg",
		Timestamp: at,
		Author:    &discordgo.User{ID: "u1"},
	}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []archive.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev archive.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

type recordingGames struct {
	starts    []string
	reactions []game.Reaction
	startErr  error
}

func (g *recordingGames) Start(_ context.Context, _, channelID string) error {
	g.starts = append(g.starts, channelID)
	return g.startErr
}

func (g *recordingGames) HandleReaction(re game.Reaction) { g.reactions = append(g.reactions, re) }
