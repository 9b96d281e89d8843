package discordapi

import (
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/staticord/game"
)

type messageAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
}

type emojiSource interface {
	Emojis(guildID string) []*discordgo.Emoji
}

func (v sessionState) Emojis(guildID string) []*discordgo.Emoji {
	g, err := v.s.State.Guild(guildID)
	if err != nil {
		return nil
	}
	v.s.State.RLock()
	defer v.s.State.RUnlock()
	return slices.Clone(g.Emojis)
}

// Messenger implements game.Messenger with REST calls.
type Messenger struct {
	api    messageAPI
	emojis emojiSource
}

var _ game.Messenger = (*Messenger)(nil)

// NewMessenger returns a Messenger for s.
func NewMessenger(s *discordgo.Session) *Messenger {
	return &Messenger{api: s, emojis: sessionState{s: s}}
}

// Send posts content to a channel.
func (m *Messenger) Send(ctx context.Context, channelID, content string) (string, error) {
	msg, err := m.api.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// React adds emoji to a message. A guild custom emoji with the same name takes precedence;
// otherwise emoji is sent as is (a unicode emoji).
func (m *Messenger) React(ctx context.Context, guildID, channelID, messageID, emoji string) error {
	if err := m.api.MessageReactionAdd(channelID, messageID, m.resolveEmoji(guildID, emoji), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("react %s on %s: %w", emoji, messageID, err)
	}
	return nil
}

func (m *Messenger) resolveEmoji(guildID, name string) string {
	for _, e := range m.emojis.Emojis(guildID) {
		if e != nil && e.Name == name {
			return e.APIName()
		}
	}
	return name
}
