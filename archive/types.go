package archive

import "time"

// Guild is a community server. ID is stable; Name may change.
type Guild struct {
	ID   string
	Name string
}

// Member is a user as seen in one guild. Identity is (ID, GuildID).
type Member struct {
	ID      string
	GuildID string
	Name    string
}

// Message is an archived chat message. The platform encodes creation time in ID.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// Channel is a text channel eligible for backfill.
type Channel struct {
	ID             string
	GuildID        string
	Name           string
	CanReadHistory bool
}

// MemberState is a live observation of a member: identity plus the mutable attributes that
// are tracked in history tables.
type MemberState struct {
	Member
	Bot      bool
	Nickname Nickname
	Activity Activity
}

// NicknameRecord is one row of the nickname change log.
type NicknameRecord struct {
	GuildID    string
	MemberID   string
	Nickname   Nickname
	ObservedAt time.Time
}

// ActivityRecord is one row of the activity change log.
type ActivityRecord struct {
	GuildID    string
	MemberID   string
	Activity   Activity
	ObservedAt time.Time
}
