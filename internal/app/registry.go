// Package app is the coordination core: connection registry, interest
// groups, voice room membership, the shared playback session and the
// offline direct-message fallback. All mutable state lives on the
// Coordinator's fields; there is no package-level state.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
)

// Client is one authenticated connection. A user may own several.
type Client struct {
	SID  core.SessionID
	User *domain.User
	Conn core.Conn
	Orgs []domain.OrgID
}

// Group name helpers. Interest groups are string-keyed multicast sets.
func UserGroup(id domain.UserID) string       { return "user:" + string(id) }
func OrgGroup(id domain.OrgID) string         { return "org:" + string(id) }
func ChannelGroup(id domain.ChannelID) string { return "channel:" + string(id) }

// Registry tracks live connections, the per-user connection sets that
// drive presence transitions, and interest-group membership.
type Registry struct {
	mu      sync.RWMutex
	clients map[core.SessionID]*Client
	byUser  map[domain.UserID]map[core.SessionID]*Client
	groups  map[string]map[core.SessionID]core.Conn
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[core.SessionID]*Client),
		byUser:  make(map[domain.UserID]map[core.SessionID]*Client),
		groups:  make(map[string]map[core.SessionID]core.Conn),
	}
}

// Add indexes the client and reports whether the user's connection set
// went from empty to non-empty (the offline-to-online transition).
func (r *Registry) Add(c *Client) (wentOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.SID] = c
	set, ok := r.byUser[c.User.ID]
	if !ok {
		set = make(map[core.SessionID]*Client)
		r.byUser[c.User.ID] = set
	}
	wentOnline = len(set) == 0
	set[c.SID] = c
	log.Info().Str("module", "app.registry").Str("sid", string(c.SID)).Str("user", string(c.User.ID)).Bool("went_online", wentOnline).Msg("client added")
	return wentOnline
}

// Remove drops the client from every group and reports whether the
// user's connection set became empty (the online-to-offline transition).
func (r *Registry) Remove(sid core.SessionID) (c *Client, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[sid]
	if !ok {
		return nil, false
	}
	delete(r.clients, sid)
	if set, ok := r.byUser[c.User.ID]; ok {
		delete(set, sid)
		if len(set) == 0 {
			delete(r.byUser, c.User.ID)
			wentOffline = true
		}
	}
	for gid, members := range r.groups {
		delete(members, sid)
		if len(members) == 0 {
			delete(r.groups, gid)
		}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(c.User.ID)).Bool("went_offline", wentOffline).Msg("client removed")
	return c, wentOffline
}

func (r *Registry) Get(sid core.SessionID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[sid]
	return c, ok
}

// Online reports whether the user has at least one open connection.
func (r *Registry) Online(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[uid]) > 0
}

func (r *Registry) JoinGroup(gid string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.groups[gid]
	if !ok {
		members = make(map[core.SessionID]core.Conn)
		r.groups[gid] = members
	}
	members[c.SID] = c.Conn
}

func (r *Registry) LeaveGroup(gid string, sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.groups[gid]; ok {
		delete(members, sid)
		if len(members) == 0 {
			delete(r.groups, gid)
		}
	}
}

// Broadcast fans one frame out to every member of a group. Slow
// consumers are skipped, never waited on.
func (r *Registry) Broadcast(gid string, f core.Frame) (sent, dropped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.groups[gid] {
		if err := conn.TrySend(f); err != nil {
			dropped++
			continue
		}
		sent++
	}
	if dropped > 0 {
		log.Warn().Str("module", "app.registry").Str("group", gid).Int("dropped", dropped).Msg("broadcast dropped frames")
	}
	return sent, dropped
}
