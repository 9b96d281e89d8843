package discordapi

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/staticord/archive"
)

const (
	historyPageSize = 100
	memberPageSize  = 1000
)

// restClient is the subset of *discordgo.Session the source calls.
type restClient interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	UserChannelPermissions(userID, channelID string, options ...discordgo.RequestOption) (int64, error)
}

// stateView is the cached gateway state the source reads.
type stateView interface {
	GuildIDs() []string
	BotID() string
	Presence(guildID, userID string) (*discordgo.Presence, error)
	Member(guildID, userID string) (*discordgo.Member, error)
	Guild(guildID string) (*discordgo.Guild, error)
}

// sessionState exposes a session's State through stateView.
type sessionState struct{ s *discordgo.Session }

func (v sessionState) GuildIDs() []string {
	v.s.State.RLock()
	defer v.s.State.RUnlock()
	ids := make([]string, 0, len(v.s.State.Guilds))
	for _, g := range v.s.State.Guilds {
		if !g.Unavailable {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

func (v sessionState) BotID() string {
	v.s.State.RLock()
	defer v.s.State.RUnlock()
	if v.s.State.User == nil {
		return ""
	}
	return v.s.State.User.ID
}

func (v sessionState) Presence(guildID, userID string) (*discordgo.Presence, error) {
	return v.s.State.Presence(guildID, userID)
}

func (v sessionState) Member(guildID, userID string) (*discordgo.Member, error) {
	return v.s.State.Member(guildID, userID)
}

func (v sessionState) Guild(guildID string) (*discordgo.Guild, error) {
	return v.s.State.Guild(guildID)
}

// Source implements archive.Source over a Discord session.
type Source struct {
	api   restClient
	state stateView
}

var _ archive.Source = (*Source)(nil)

// NewSource returns a Source backed by s. The session's state must be enabled.
func NewSource(s *discordgo.Session) *Source {
	return &Source{api: s, state: sessionState{s: s}}
}

// GuildIDs lists the available guilds from the gateway state.
func (src *Source) GuildIDs(context.Context) ([]string, error) {
	return src.state.GuildIDs(), nil
}

// Guild fetches the guild's current name.
func (src *Source) Guild(ctx context.Context, guildID string) (archive.Guild, error) {
	if g, err := src.state.Guild(guildID); err == nil && g.Name != "" {
		return archive.Guild{ID: g.ID, Name: g.Name}, nil
	}
	g, err := src.api.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return archive.Guild{}, fmt.Errorf("guild %s: %w", guildID, err)
	}
	return archive.Guild{ID: g.ID, Name: g.Name}, nil
}

// Members pages through the guild's member list and joins each member with its cached presence.
func (src *Source) Members(ctx context.Context, guildID string) ([]archive.MemberState, error) {
	var (
		out   []archive.MemberState
		after string
	)
	for {
		page, err := src.api.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return out, fmt.Errorf("members of guild %s: %w", guildID, err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			p, _ := src.state.Presence(guildID, m.User.ID)
			out = append(out, toMemberState(guildID, m, p))
			after = m.User.ID
		}
		if len(page) < memberPageSize {
			return out, nil
		}
	}
}

// TextChannels lists the guild's text and announcement channels with the bot's history access.
func (src *Source) TextChannels(ctx context.Context, guildID string) ([]archive.Channel, error) {
	chans, err := src.api.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("channels of guild %s: %w", guildID, err)
	}
	botID := src.state.BotID()
	var out []archive.Channel
	for _, c := range chans {
		if c.Type != discordgo.ChannelTypeGuildText && c.Type != discordgo.ChannelTypeGuildNews {
			continue
		}
		ch := archive.Channel{ID: c.ID, GuildID: guildID, Name: c.Name}
		perms, err := src.api.UserChannelPermissions(botID, c.ID, discordgo.WithContext(ctx))
		if err != nil {
			slog.Debug("channel permissions unavailable", slog.String("channel_id", c.ID), slog.Any("err", err), slog.String("component", "discord"))
		} else {
			ch.CanReadHistory = canReadHistory(perms)
		}
		out = append(out, ch)
	}
	return out, nil
}

func canReadHistory(perms int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	const need = discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory
	return perms&need == need
}

// History pages forward from the snowflake of after, yielding each page oldest first.
func (src *Source) History(ctx context.Context, ch archive.Channel, after time.Time) iter.Seq2[archive.Message, error] {
	return func(yield func(archive.Message, error) bool) {
		cursor := snowflakeAt(after)
		for {
			if err := ctx.Err(); err != nil {
				yield(archive.Message{}, err)
				return
			}
			page, err := src.api.ChannelMessages(ch.ID, historyPageSize, "", cursor, "", discordgo.WithContext(ctx))
			if err != nil {
				if permissionDenied(err) {
					err = fmt.Errorf("%w: %w", archive.ErrPermissionDenied, err)
				}
				yield(archive.Message{}, err)
				return
			}
			// pages arrive newest first
			slices.SortFunc(page, func(a, b *discordgo.Message) int {
				switch {
				case snowflakeLess(a.ID, b.ID):
					return -1
				case snowflakeLess(b.ID, a.ID):
					return 1
				}
				return 0
			})
			for _, m := range page {
				if !yield(toMessage(m, ch.GuildID), nil) {
					return
				}
				cursor = m.ID
			}
			if len(page) < historyPageSize {
				return
			}
		}
	}
}
