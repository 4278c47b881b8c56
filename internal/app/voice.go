package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/domain"
	"github.com/wavechat/wave/internal/protocol"
)

// JoinVoice validates the target channel and moves the connection into
// its room. Invalid requests are dropped without an answer; a re-join
// to the occupied room re-emits current state without side effects.
func (c *Coordinator) JoinVoice(ctx context.Context, client *Client, channelID domain.ChannelID) {
	// Authorization completes before any mutation.
	ch, err := c.Directory.ChannelByID(ctx, channelID)
	if err != nil || ch == nil || ch.Kind != domain.ChannelVoice {
		log.Debug().Str("module", "app.voice").Str("channel", string(channelID)).Msg("join dropped: no such voice channel")
		return
	}
	member, err := c.Directory.IsMember(ctx, client.User.ID, ch.OrgID)
	if err != nil || !member {
		log.Debug().Str("module", "app.voice").Str("user", string(client.User.ID)).Str("channel", string(channelID)).Msg("join dropped: not a member")
		return
	}

	if current, ok := c.Rooms.RoomOf(client.SID); ok {
		if current.channel.ID == channelID {
			c.sendVoiceState(client, current)
			return
		}
		c.LeaveVoice(client)
	}

	c.Rooms.bind(client.SID, ch.ID)
	c.Registry.JoinGroup(ChannelGroup(ch.ID), client)

	for {
		room := c.Rooms.GetOrCreate(ch)
		room.mu.Lock()
		if room.closed {
			// Raced the teardown of a previous incarnation; a closed
			// room is already out of the manager's map.
			room.mu.Unlock()
			continue
		}
		room.addConn(client.SID, client.User)
		c.broadcastRosterLocked(room)
		c.emitMusicStateLocked(client, room)
		room.mu.Unlock()
		return
	}
}

// LeaveVoice removes the connection from its room, if any. The last
// roster entry leaving destroys the room after a final empty-state
// broadcast.
func (c *Coordinator) LeaveVoice(client *Client) {
	room, ok := c.Rooms.RoomOf(client.SID)
	if !ok {
		c.Rooms.unbind(client.SID)
		return
	}
	c.Rooms.unbind(client.SID)
	c.Registry.LeaveGroup(ChannelGroup(room.channel.ID), client.SID)

	room.mu.Lock()
	rosterChanged, empty := room.removeConn(client.SID)
	if empty {
		c.broadcastRosterLocked(room)
		room.mu.Unlock()
		c.Rooms.Destroy(room.channel.ID)
		return
	}
	if rosterChanged {
		c.broadcastRosterLocked(room)
	}
	room.mu.Unlock()
}

// RequestVoiceState re-emits roster and playback snapshot to the
// requester only.
func (c *Coordinator) RequestVoiceState(ctx context.Context, client *Client, channelID domain.ChannelID) {
	ch, err := c.Directory.ChannelByID(ctx, channelID)
	if err != nil || ch == nil {
		return
	}
	member, err := c.Directory.IsMember(ctx, client.User.ID, ch.OrgID)
	if err != nil || !member {
		return
	}
	room, ok := c.Rooms.Get(channelID)
	if !ok {
		c.emit(client.Conn, protocol.VoiceRoster{Type: protocol.OutVoiceRoster, ChannelID: channelID, Participants: []domain.Participant{}})
		return
	}
	c.sendVoiceState(client, room)
}

func (c *Coordinator) sendVoiceState(client *Client, room *Room) {
	room.mu.Lock()
	defer room.mu.Unlock()
	c.emit(client.Conn, protocol.VoiceRoster{
		Type:         protocol.OutVoiceRoster,
		ChannelID:    room.channel.ID,
		Participants: room.participants(),
	})
	c.emitMusicStateLocked(client, room)
}

// broadcastRosterLocked sends the full roster to the room's group and
// the count-only variant to the organization's group. Caller holds
// room.mu.
func (c *Coordinator) broadcastRosterLocked(room *Room) {
	participants := room.participants()
	c.broadcast(ChannelGroup(room.channel.ID), protocol.VoiceRoster{
		Type:         protocol.OutVoiceRoster,
		ChannelID:    room.channel.ID,
		Participants: participants,
	})
	c.broadcast(OrgGroup(room.channel.OrgID), protocol.VoiceCount{
		Type:      protocol.OutVoiceCount,
		ChannelID: room.channel.ID,
		Count:     len(participants),
	})
}

// RelaySignal forwards an opaque negotiation payload to one authorized,
// currently-present target, or not at all. The payload is never
// inspected.
func (c *Coordinator) RelaySignal(client *Client, p protocol.VoiceSignal) {
	room, ok := c.Rooms.RoomOf(client.SID)
	if !ok || room.channel.ID != p.ChannelID {
		log.Debug().Str("module", "app.voice").Str("sid", string(client.SID)).Msg("signal dropped: sender not in room")
		return
	}
	if p.TargetUserID == client.User.ID {
		return
	}
	room.mu.Lock()
	present := room.hasUser(p.TargetUserID)
	room.mu.Unlock()
	if !present {
		log.Debug().Str("module", "app.voice").Str("target", string(p.TargetUserID)).Msg("signal dropped: target not in room")
		return
	}
	c.broadcast(UserGroup(p.TargetUserID), protocol.VoiceSignalOut{
		Type:       protocol.OutVoiceSignal,
		ChannelID:  p.ChannelID,
		FromUserID: client.User.ID,
		Payload:    p.Payload,
	})
}
