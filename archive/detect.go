package archive

import "time"

// Nickname is a guild-specific display name. Set is false when the member has no custom
// nickname, which is a value in its own right and is recorded as NULL.
type Nickname struct {
	Value string
	Set   bool
}

// NewNickname returns a set nickname, or an unset one for the empty string.
func NewNickname(s string) Nickname {
	if s == "" {
		return Nickname{}
	}
	return Nickname{Value: s, Set: true}
}

func (n Nickname) Equal(o Nickname) bool {
	if n.Set != o.Set {
		return false
	}
	return !n.Set || n.Value == o.Value
}

func (n Nickname) String() string {
	if !n.Set {
		return "<none>"
	}
	return n.Value
}

// ActivityKind tags the shape of an Activity.
type ActivityKind int

const (
	// ActivityNone: only a presence status, no activity.
	ActivityNone ActivityKind = iota
	// ActivityPlain: playing, streaming, watching, custom status...
	ActivityPlain
	// ActivityListening: music listening with track details.
	ActivityListening
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityPlain:
		return "plain"
	case ActivityListening:
		return "listening"
	default:
		return "none"
	}
}

// Listening is the track sub-record carried by ActivityListening snapshots.
type Listening struct {
	Title   string
	Artist  string
	Album   string
	TrackID string
	PartyID string
}

// Activity is a composed presence snapshot: status plus the member's primary activity.
// Start and End are the activity's own bounds; zero means unknown (Start) or ongoing (End).
type Activity struct {
	Status    string
	Kind      ActivityKind
	Type      string
	Name      string
	Start     time.Time
	End       time.Time
	Listening Listening
}

// Equal is full structural equality over the snapshot, including status, both bounds and the
// listening sub-record.
func (a Activity) Equal(o Activity) bool {
	return a.Status == o.Status &&
		a.Kind == o.Kind &&
		a.Type == o.Type &&
		a.Name == o.Name &&
		a.Start.Equal(o.Start) &&
		a.End.Equal(o.End) &&
		a.Listening == o.Listening
}

// Changed reports whether cur warrants a new history row given the last persisted snapshot.
// A nil prev (nothing recorded yet) always counts as changed.
func Changed[T interface{ Equal(T) bool }](prev *T, cur T) bool {
	if prev == nil {
		return true
	}
	return !(*prev).Equal(cur)
}
