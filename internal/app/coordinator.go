package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
	"github.com/wavechat/wave/internal/protocol"
)

// Coordinator owns all real-time state and is injected into the
// transport adapters. Directory lookups complete before any in-memory
// mutation begins; room mutations and the broadcasts they trigger run
// under the room's lock, so every member observes them in application
// order.
type Coordinator struct {
	Registry  *Registry
	Rooms     *RoomManager
	Directory core.Directory
	Pending   core.PendingStore

	now func() time.Time
}

func NewCoordinator(dir core.Directory, pending core.PendingStore) *Coordinator {
	return NewCoordinatorWithClock(dir, pending, time.Now)
}

// NewCoordinatorWithClock injects the wall clock; tests freeze it.
func NewCoordinatorWithClock(dir core.Directory, pending core.PendingStore, now func() time.Time) *Coordinator {
	return &Coordinator{
		Registry:  NewRegistry(),
		Rooms:     NewRoomManager(now),
		Directory: dir,
		Pending:   pending,
		now:       now,
	}
}

func (c *Coordinator) emit(conn core.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("emit marshal")
		return
	}
	_ = conn.TrySend(b)
}

func (c *Coordinator) broadcast(gid string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("broadcast marshal")
		return
	}
	c.Registry.Broadcast(gid, b)
}

// Connect registers an authenticated connection: indexes it, joins the
// personal and organization groups, fires the presence transition and
// flushes pending direct messages.
func (c *Coordinator) Connect(ctx context.Context, conn core.Conn, claims core.Claims) (*Client, error) {
	user, err := domain.NewUser(claims.UserID, claims.Username)
	if err != nil {
		return nil, err
	}
	orgs, err := c.Directory.OrgsOf(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	client := &Client{
		SID:  core.SessionID(uuid.NewString()),
		User: user,
		Conn: conn,
		Orgs: orgs,
	}
	wentOnline := c.Registry.Add(client)
	c.Registry.JoinGroup(UserGroup(user.ID), client)
	for _, org := range orgs {
		c.Registry.JoinGroup(OrgGroup(org), client)
	}
	if wentOnline {
		c.broadcastPresence(client, domain.PresenceOnline)
	}
	c.flushPending(client)
	return client, nil
}

// Disconnect is the unconditional cleanup path: leave any occupied
// voice room, then deregister and fire the presence transition.
func (c *Coordinator) Disconnect(client *Client) {
	c.LeaveVoice(client)
	_, wentOffline := c.Registry.Remove(client.SID)
	if wentOffline {
		c.broadcastPresence(client, domain.PresenceOffline)
	}
}

func (c *Coordinator) broadcastPresence(client *Client, status domain.PresenceStatus) {
	ev := protocol.PresenceChanged{Type: protocol.OutPresence, UserID: client.User.ID, Status: status}
	for _, org := range client.Orgs {
		c.broadcast(OrgGroup(org), ev)
	}
}

// Subscribe joins an organization's group. An unauthorized request is
// silently ignored.
func (c *Coordinator) Subscribe(ctx context.Context, client *Client, orgID domain.OrgID) {
	ok, err := c.Directory.IsMember(ctx, client.User.ID, orgID)
	if err != nil || !ok {
		log.Debug().Str("module", "app.coordinator").Str("user", string(client.User.ID)).Str("org", string(orgID)).Msg("subscribe ignored")
		return
	}
	c.Registry.JoinGroup(OrgGroup(orgID), client)
}

func (c *Coordinator) Unsubscribe(client *Client, orgID domain.OrgID) {
	c.Registry.LeaveGroup(OrgGroup(orgID), client.SID)
}
