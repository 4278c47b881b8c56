package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/app"
	"github.com/wavechat/wave/internal/protocol"
)

// decode unmarshals and validates one payload variant. Malformed
// payloads are dropped; the client retries user-visible actions.
func decode[T interface{ Validate() error }](data []byte, sid string) (T, bool) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "ws").Str("sid", sid).Msg("bad payload")
		return p, false
	}
	if err := p.Validate(); err != nil {
		log.Debug().Err(err).Str("module", "ws").Str("sid", sid).Msg("invalid payload")
		return p, false
	}
	return p, true
}

func (ctl *Controller) dispatch(ctx context.Context, client *app.Client, c *wsConn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "ws").Str("sid", string(client.SID)).Msg("bad json envelope")
		return
	}
	sid := string(client.SID)

	switch env.Type {
	case protocol.InPing:
		b, _ := json.Marshal(protocol.Pong{Type: protocol.OutPong})
		_ = c.TrySend(b)

	case protocol.InSubscribe:
		if p, ok := decode[protocol.Subscribe](data, sid); ok {
			ctl.Coord.Subscribe(ctx, client, p.OrgID)
		}
	case protocol.InUnsubscribe:
		if p, ok := decode[protocol.Subscribe](data, sid); ok {
			ctl.Coord.Unsubscribe(client, p.OrgID)
		}

	case protocol.InVoiceJoin:
		if p, ok := decode[protocol.VoiceJoin](data, sid); ok {
			ctl.Coord.JoinVoice(ctx, client, p.ChannelID)
		}
	case protocol.InVoiceLeave:
		ctl.Coord.LeaveVoice(client)
	case protocol.InVoiceState:
		if p, ok := decode[protocol.VoiceState](data, sid); ok {
			ctl.Coord.RequestVoiceState(ctx, client, p.ChannelID)
		}
	case protocol.InVoiceSignal:
		if p, ok := decode[protocol.VoiceSignal](data, sid); ok {
			ctl.Coord.RelaySignal(client, p)
		}

	case protocol.InMusicEnqueue:
		if p, ok := decode[protocol.MusicEnqueue](data, sid); ok {
			ctl.Coord.EnqueueTrack(ctx, client, p)
		}
	case protocol.InMusicPlay:
		if p, ok := decode[protocol.MusicControl](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.Play(client.User.ID)
			})
		}
	case protocol.InMusicPause:
		if p, ok := decode[protocol.MusicControl](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.Pause(client.User.ID)
			})
		}
	case protocol.InMusicSeek:
		if p, ok := decode[protocol.MusicSeek](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.Seek(p.PositionSeconds, client.User.ID)
			})
		}
	case protocol.InMusicNext:
		if p, ok := decode[protocol.MusicControl](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.Next(client.User.ID)
			})
		}
	case protocol.InMusicPrevious:
		if p, ok := decode[protocol.MusicControl](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.Previous(client.User.ID)
			})
		}
	case protocol.InMusicSet:
		if p, ok := decode[protocol.MusicTrack](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.SetCurrent(p.TrackID, client.User.ID)
			})
		}
	case protocol.InMusicRemove:
		if p, ok := decode[protocol.MusicTrack](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.Remove(p.TrackID, client.User.ID)
			})
		}
	case protocol.InMusicClear:
		if p, ok := decode[protocol.MusicControl](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.Clear(client.User.ID)
			})
		}
	case protocol.InMusicDuration:
		if p, ok := decode[protocol.MusicDuration](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.ReportDuration(p.TrackID, p.Seconds, client.User.ID)
			})
		}
	case protocol.InMusicTrackEnd:
		if p, ok := decode[protocol.MusicTrack](data, sid); ok {
			ctl.Coord.MusicOp(ctx, client, p.ChannelID, func(s *app.Session) (bool, error) {
				return s.TrackEnded(p.TrackID, client.User.ID)
			})
		}

	case protocol.InDirectMessage:
		if p, ok := decode[protocol.DirectMessage](data, sid); ok {
			ctl.Coord.SendDM(client, p)
		}

	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown event")
	}
}
