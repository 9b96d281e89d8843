package discordapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/staticord/archive"
	"github.com/onnwee/staticord/game"
)

// Dispatcher receives archive events. *archive.Ingestor implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev archive.Event)
}

// Games receives game commands and reactions. *game.Manager implements it.
type Games interface {
	Start(ctx context.Context, guildID, channelID string) error
	HandleReaction(re game.Reaction)
}

// Handlers translates gateway events into archive events, game commands and votes.
type Handlers struct {
	ctx     context.Context
	ingest  Dispatcher
	games   Games
	state   stateView
	command string
}

// NewHandlers builds handlers for the "<prefix><command>" game trigger. ctx bounds the work
// started by events.
func NewHandlers(ctx context.Context, s *discordgo.Session, ingest Dispatcher, games Games, prefix, command string) *Handlers {
	return &Handlers{ctx: ctx, ingest: ingest, games: games, state: sessionState{s: s}, command: prefix + command}
}

// Register adds every handler to s and returns a function removing them.
func (h *Handlers) Register(s *discordgo.Session) func() {
	removers := []func(){
		s.AddHandler(h.onReady),
		s.AddHandler(h.onConnect),
		s.AddHandler(h.onDisconnect),
		s.AddHandler(h.onResumed),
		s.AddHandler(h.onGuildCreate),
		s.AddHandler(h.onGuildUpdate),
		s.AddHandler(h.onMemberAdd),
		s.AddHandler(h.onMemberUpdate),
		s.AddHandler(h.onPresenceUpdate),
		s.AddHandler(h.onMessageCreate),
		s.AddHandler(h.onReactionAdd),
	}
	return func() {
		for _, rm := range removers {
			rm()
		}
	}
}

// Intents are the gateway intents the handlers rely on.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

func (h *Handlers) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	user := ""
	if r.User != nil {
		user = r.User.String()
	}
	slog.Info("discord ready", slog.String("user", user), slog.Int("guilds", len(r.Guilds)), slog.String("component", "discord"))
}

func (h *Handlers) onConnect(_ *discordgo.Session, _ *discordgo.Connect) {
	slog.Info("discord gateway connected", slog.String("component", "discord"))
}

func (h *Handlers) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	slog.Warn("discord gateway disconnected", slog.String("component", "discord"))
}

func (h *Handlers) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	slog.Info("discord gateway resumed", slog.String("component", "discord"))
}

// onGuildCreate fires for every guild once it becomes available after connecting, and when
// the bot joins a new guild.
func (h *Handlers) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	h.ingest.Dispatch(h.ctx, archive.Event{Kind: archive.EventGuildJoined, GuildID: g.ID})
}

func (h *Handlers) onGuildUpdate(_ *discordgo.Session, g *discordgo.GuildUpdate) {
	if g.Guild == nil {
		return
	}
	h.ingest.Dispatch(h.ctx, archive.Event{Kind: archive.EventGuildUpdated, GuildID: g.ID})
}

func (h *Handlers) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	h.dispatchMember(archive.EventMemberJoined, m.Member)
}

func (h *Handlers) onMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	h.dispatchMember(archive.EventMemberUpdated, m.Member)
}

func (h *Handlers) dispatchMember(kind archive.EventKind, m *discordgo.Member) {
	if m == nil || m.User == nil {
		return
	}
	p, _ := h.state.Presence(m.GuildID, m.User.ID)
	ms := toMemberState(m.GuildID, m, p)
	h.ingest.Dispatch(h.ctx, archive.Event{Kind: kind, GuildID: m.GuildID, Member: ms})
}

// onPresenceUpdate records status and activity changes. The member itself comes from the
// gateway state since presence payloads only carry the user id.
func (h *Handlers) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil || p.GuildID == "" {
		return
	}
	m, err := h.state.Member(p.GuildID, p.User.ID)
	if err != nil || m.User == nil {
		slog.Debug("presence for unknown member", slog.String("guild_id", p.GuildID), slog.String("user_id", p.User.ID), slog.String("component", "discord"))
		return
	}
	ms := toMemberState(p.GuildID, m, &p.Presence)
	h.ingest.Dispatch(h.ctx, archive.Event{Kind: archive.EventMemberUpdated, GuildID: p.GuildID, Member: ms})
}

func (h *Handlers) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.GuildID == "" {
		return
	}
	h.ingest.Dispatch(h.ctx, archive.Event{Kind: archive.EventMessageReceived, GuildID: m.GuildID, Message: toMessage(m.Message, m.GuildID)})

	if m.Author == nil || m.Author.Bot {
		return
	}
	fields := strings.Fields(m.Content)
	if len(fields) == 0 || fields[0] != h.command {
		return
	}
	slog.Info("game requested", slog.String("guild_id", m.GuildID), slog.String("channel_id", m.ChannelID),
		slog.String("user_id", m.Author.ID), slog.String("component", "discord"))
	if err := h.games.Start(h.ctx, m.GuildID, m.ChannelID); err != nil &&
		!errors.Is(err, game.ErrSessionRunning) && !errors.Is(err, game.ErrTooManySessions) {
		slog.Warn("game start failed", slog.Any("err", err), slog.String("component", "discord"))
	}
}

func (h *Handlers) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	bot := r.UserID == h.state.BotID()
	if r.Member != nil && r.Member.User != nil {
		bot = bot || r.Member.User.Bot
	}
	h.games.HandleReaction(game.Reaction{
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Bot:       bot,
		Emoji:     r.Emoji.Name,
	})
}
