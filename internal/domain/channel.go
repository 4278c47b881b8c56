package domain

type (
	OrgID     string
	ChannelID string
)

type ChannelKind string

const (
	ChannelText  ChannelKind = "text"
	ChannelVoice ChannelKind = "voice"
)

type Channel struct {
	ID    ChannelID
	OrgID OrgID
	Name  string
	Kind  ChannelKind
}

// Participant is a roster entry: the display summary of one user
// currently present in a voice room.
type Participant struct {
	UserID   UserID `json:"userId"`
	Username string `json:"username"`
}
