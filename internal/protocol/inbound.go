// Package protocol defines the event types exchanged with clients.
// One typed variant per event name; payloads are validated here before
// any core state is touched.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
)

// Inbound event names.
const (
	InPing          = "ping"
	InSubscribe     = "subscribe"
	InUnsubscribe   = "unsubscribe"
	InVoiceJoin     = "voice.join"
	InVoiceLeave    = "voice.leave"
	InVoiceState    = "voice.requestState"
	InVoiceSignal   = "voice.signal"
	InMusicEnqueue  = "music.enqueue"
	InMusicPlay     = "music.play"
	InMusicPause    = "music.pause"
	InMusicSeek     = "music.seek"
	InMusicNext     = "music.next"
	InMusicPrevious = "music.previous"
	InMusicSet      = "music.setCurrent"
	InMusicRemove   = "music.remove"
	InMusicClear    = "music.clear"
	InMusicDuration = "music.reportDuration"
	InMusicTrackEnd = "music.trackEnded"
	InDirectMessage = "dm.send"
)

// Envelope carries the event name; the rest of the payload is decoded
// into the matching variant.
type Envelope struct {
	Type string `json:"type"`
}

type Subscribe struct {
	OrgID domain.OrgID `json:"orgId"`
}

func (p Subscribe) Validate() error {
	if p.OrgID == "" {
		return fmt.Errorf("%w: orgId required", core.ErrValidation)
	}
	return nil
}

type VoiceJoin struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

func (p VoiceJoin) Validate() error {
	if p.ChannelID == "" {
		return fmt.Errorf("%w: channelId required", core.ErrValidation)
	}
	return nil
}

type VoiceState struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

func (p VoiceState) Validate() error {
	if p.ChannelID == "" {
		return fmt.Errorf("%w: channelId required", core.ErrValidation)
	}
	return nil
}

// VoiceSignal relays an opaque negotiation payload. The payload is
// never decoded server-side.
type VoiceSignal struct {
	ChannelID    domain.ChannelID `json:"channelId"`
	TargetUserID domain.UserID    `json:"targetUserId"`
	Payload      json.RawMessage  `json:"payload"`
}

func (p VoiceSignal) Validate() error {
	if p.ChannelID == "" || p.TargetUserID == "" || len(p.Payload) == 0 {
		return fmt.Errorf("%w: channelId, targetUserId and payload required", core.ErrValidation)
	}
	return nil
}

type MusicEnqueue struct {
	ChannelID       domain.ChannelID `json:"channelId"`
	URL             string           `json:"url"`
	Title           string           `json:"title,omitempty"`
	CoverURL        string           `json:"coverUrl,omitempty"`
	DurationSeconds float64          `json:"durationSeconds,omitempty"`
}

func (p MusicEnqueue) Validate() error {
	if p.ChannelID == "" || p.URL == "" {
		return fmt.Errorf("%w: channelId and url required", core.ErrValidation)
	}
	return nil
}

// MusicControl covers play/pause/next/previous/clear: channel only.
type MusicControl struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

func (p MusicControl) Validate() error {
	if p.ChannelID == "" {
		return fmt.Errorf("%w: channelId required", core.ErrValidation)
	}
	return nil
}

type MusicSeek struct {
	ChannelID       domain.ChannelID `json:"channelId"`
	PositionSeconds float64          `json:"positionSeconds"`
}

func (p MusicSeek) Validate() error {
	if p.ChannelID == "" {
		return fmt.Errorf("%w: channelId required", core.ErrValidation)
	}
	if p.PositionSeconds < 0 {
		return fmt.Errorf("%w: positionSeconds must be >= 0", core.ErrValidation)
	}
	return nil
}

// MusicTrack covers setCurrent/remove/trackEnded: channel + track.
type MusicTrack struct {
	ChannelID domain.ChannelID `json:"channelId"`
	TrackID   domain.TrackID   `json:"trackId"`
}

func (p MusicTrack) Validate() error {
	if p.ChannelID == "" || p.TrackID == "" {
		return fmt.Errorf("%w: channelId and trackId required", core.ErrValidation)
	}
	return nil
}

type MusicDuration struct {
	ChannelID domain.ChannelID `json:"channelId"`
	TrackID   domain.TrackID   `json:"trackId"`
	Seconds   float64          `json:"seconds"`
}

func (p MusicDuration) Validate() error {
	if p.ChannelID == "" || p.TrackID == "" {
		return fmt.Errorf("%w: channelId and trackId required", core.ErrValidation)
	}
	if p.Seconds <= 0 {
		return fmt.Errorf("%w: seconds must be > 0", core.ErrValidation)
	}
	return nil
}

type DirectMessage struct {
	RecipientID domain.UserID `json:"recipientId"`
	Content     string        `json:"content"`
}

func (p DirectMessage) Validate() error {
	if p.RecipientID == "" {
		return fmt.Errorf("%w: recipientId required", core.ErrValidation)
	}
	if p.Content == "" {
		return fmt.Errorf("%w: content empty", core.ErrValidation)
	}
	return nil
}
