package protocol

import (
	"encoding/json"

	"github.com/wavechat/wave/internal/domain"
)

// Outbound event names.
const (
	OutPong          = "pong"
	OutPresence      = "presence.changed"
	OutVoiceRoster   = "voice.roster"
	OutVoiceCount    = "voice.count"
	OutVoiceSignal   = "voice.signal"
	OutMusicState    = "music.state"
	OutMusicError    = "music.error"
	OutDirectMessage = "dm.new"
)

type Pong struct {
	Type string `json:"type"`
}

type PresenceChanged struct {
	Type   string                `json:"type"`
	UserID domain.UserID         `json:"userId"`
	Status domain.PresenceStatus `json:"status"`
}

type VoiceRoster struct {
	Type         string               `json:"type"`
	ChannelID    domain.ChannelID     `json:"channelId"`
	Participants []domain.Participant `json:"participants"`
}

// VoiceCount is the count-only roster variant for sidebar badges,
// broadcast to the owning organization's group.
type VoiceCount struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	Count     int              `json:"count"`
}

type VoiceSignalOut struct {
	Type       string           `json:"type"`
	ChannelID  domain.ChannelID `json:"channelId"`
	FromUserID domain.UserID    `json:"fromUserId"`
	Payload    json.RawMessage  `json:"payload"`
}

// MusicState is the full snapshot broadcast after every accepted
// playback mutation. ServerNow lets receivers compute local drift.
type MusicState struct {
	Type            string           `json:"type"`
	ChannelID       domain.ChannelID `json:"channelId"`
	Queue           []domain.Track   `json:"queue"`
	CurrentIndex    int              `json:"currentIndex"` // -1 when none
	Current         *domain.Track    `json:"current,omitempty"`
	PlaybackState   string           `json:"playbackState"`
	PositionSeconds float64          `json:"positionSeconds"`
	ServerNow       int64            `json:"serverNow"` // unix millis
	LastMutator     domain.UserID    `json:"lastMutator,omitempty"`
}

type MusicError struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	Message   string           `json:"message"`
}

type DirectMessageOut struct {
	Type       string        `json:"type"`
	ID         string        `json:"id"`
	From       domain.UserID `json:"from"`
	To         domain.UserID `json:"to"`
	Content    string        `json:"content"`
	SentAt     int64         `json:"sentAt"` // unix millis
	WasPending bool          `json:"wasPending,omitempty"`
}
