// Package discordapi adapts the Discord gateway and REST client to the archive and game packages.
package discordapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/staticord/archive"
)

// discordEpoch is the first millisecond of 2015, the origin of snowflake timestamps.
const discordEpoch = 1420070400000

// snowflakeAt returns the smallest snowflake created at t. The zero time maps to "0" so a
// history request starts from the channel's first message.
func snowflakeAt(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		return "0"
	}
	return strconv.FormatInt(ms<<22, 10)
}

// snowflakeLess orders decimal snowflake ids numerically.
func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func toMessage(m *discordgo.Message, guildID string) archive.Message {
	out := archive.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		CreatedAt: m.Timestamp.UTC(),
	}
	if out.GuildID == "" {
		out.GuildID = guildID
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
	}
	if out.CreatedAt.IsZero() {
		if t, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
			out.CreatedAt = t.UTC()
		}
	}
	return out
}

func toMemberState(guildID string, m *discordgo.Member, p *discordgo.Presence) archive.MemberState {
	ms := archive.MemberState{
		Member:   archive.Member{GuildID: guildID, ID: m.User.ID, Name: m.User.String()},
		Bot:      m.User.Bot,
		Nickname: archive.NewNickname(m.Nick),
		Activity: toActivity(p),
	}
	if m.GuildID != "" {
		ms.GuildID = m.GuildID
	}
	return ms
}

var activityTypeNames = map[discordgo.ActivityType]string{
	discordgo.ActivityTypeGame:      "playing",
	discordgo.ActivityTypeStreaming: "streaming",
	discordgo.ActivityTypeListening: "listening",
	discordgo.ActivityTypeWatching:  "watching",
	discordgo.ActivityTypeCustom:    "custom",
	discordgo.ActivityTypeCompeting: "competing",
}

// toActivity composes the status with the member's primary (first) activity. A missing
// presence reads as offline.
func toActivity(p *discordgo.Presence) archive.Activity {
	if p == nil {
		return archive.Activity{Status: string(discordgo.StatusOffline)}
	}
	a := archive.Activity{Status: string(p.Status)}
	if a.Status == "" {
		a.Status = string(discordgo.StatusOffline)
	}
	if len(p.Activities) == 0 || p.Activities[0] == nil {
		return a
	}
	act := p.Activities[0]
	a.Kind = archive.ActivityPlain
	a.Type = activityTypeNames[act.Type]
	if a.Type == "" {
		a.Type = strconv.Itoa(int(act.Type))
	}
	a.Name = act.Name
	a.Start = fromMillis(act.Timestamps.StartTimestamp)
	a.End = fromMillis(act.Timestamps.EndTimestamp)
	if act.Type == discordgo.ActivityTypeListening {
		a.Kind = archive.ActivityListening
		a.Listening = archive.Listening{
			Title:   act.Details,
			Artist:  act.State,
			Album:   act.Assets.LargeText,
			PartyID: act.Party.ID,
		}
	}
	return a
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// permissionDenied reports whether err is Discord refusing access to a resource.
func permissionDenied(err error) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.Message != nil {
		switch rerr.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return true
		}
	}
	return rerr.Response != nil && rerr.Response.StatusCode == http.StatusForbidden
}
