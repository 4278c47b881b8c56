package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
	"github.com/wavechat/wave/internal/protocol"
)

// musicRoom gates a playback mutation: the acting user must be present
// in the room, or be the owner of the organization the channel belongs
// to. The owner check is the only suspension point and runs before any
// state is touched.
func (c *Coordinator) musicRoom(ctx context.Context, client *Client, channelID domain.ChannelID) (*Room, error) {
	room, ok := c.Rooms.Get(channelID)
	if !ok {
		return nil, fmt.Errorf("%w: no active voice room", core.ErrNotFound)
	}
	room.mu.Lock()
	present := room.hasUser(client.User.ID)
	room.mu.Unlock()
	if present {
		return room, nil
	}
	owner, err := c.Directory.IsOwner(ctx, client.User.ID, room.channel.OrgID)
	if err != nil || !owner {
		return nil, core.ErrUnauthorized
	}
	return room, nil
}

// MusicOp applies one playback mutation under the room's lock and, when
// it changed state, broadcasts a snapshot inside the same critical
// section. Errors go to the requester only.
func (c *Coordinator) MusicOp(ctx context.Context, client *Client, channelID domain.ChannelID, op func(*Session) (bool, error)) {
	room, err := c.musicRoom(ctx, client, channelID)
	if err != nil {
		c.musicError(client, channelID, err)
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	changed, err := op(room.session)
	if err != nil {
		c.musicError(client, channelID, err)
		return
	}
	if !changed {
		return
	}
	c.broadcastMusicStateLocked(room)
}

// EnqueueTrack normalizes the URL before any gating or mutation.
func (c *Coordinator) EnqueueTrack(ctx context.Context, client *Client, p protocol.MusicEnqueue) {
	track, err := domain.NewTrack(p.URL, p.Title, p.CoverURL, p.DurationSeconds, client.User, c.now())
	if err != nil {
		c.musicError(client, p.ChannelID, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	c.MusicOp(ctx, client, p.ChannelID, func(s *Session) (bool, error) {
		return s.Enqueue(track, client.User.ID)
	})
}

func (c *Coordinator) musicError(client *Client, channelID domain.ChannelID, err error) {
	log.Debug().Err(err).Str("module", "app.music").Str("user", string(client.User.ID)).Str("channel", string(channelID)).Msg("music mutation rejected")
	c.emit(client.Conn, protocol.MusicError{
		Type:      protocol.OutMusicError,
		ChannelID: channelID,
		Message:   err.Error(),
	})
}

func (c *Coordinator) musicState(room *Room, snap Snapshot) protocol.MusicState {
	return protocol.MusicState{
		Type:            protocol.OutMusicState,
		ChannelID:       room.channel.ID,
		Queue:           snap.Queue,
		CurrentIndex:    snap.CurrentIndex,
		Current:         snap.Current,
		PlaybackState:   string(snap.State),
		PositionSeconds: snap.PositionSeconds,
		ServerNow:       c.now().UnixMilli(),
		LastMutator:     snap.LastMutatedBy,
	}
}

// broadcastMusicStateLocked snapshots and fans out to the room's group.
// Caller holds room.mu, so broadcasts leave in mutation order.
func (c *Coordinator) broadcastMusicStateLocked(room *Room) {
	c.broadcast(ChannelGroup(room.channel.ID), c.musicState(room, room.session.Snapshot()))
}

// emitMusicStateLocked sends the snapshot to one requester only.
// Caller holds room.mu.
func (c *Coordinator) emitMusicStateLocked(client *Client, room *Room) {
	c.emit(client.Conn, c.musicState(room, room.session.Snapshot()))
}
