package app

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
)

// Room is one live voice room: the roster of present users, the
// connections inside it and the shared playback session. mu is the
// per-room exclusive lock; every roster or session mutation and the
// broadcast it triggers happen under it, so members observe state
// changes in application order.
type Room struct {
	mu      sync.Mutex
	channel *domain.Channel
	roster  map[domain.UserID]domain.Participant
	conns   map[core.SessionID]domain.UserID
	session *Session
	closed  bool // set by Destroy; a closed room is never re-populated
}

func newRoom(ch *domain.Channel, now func() time.Time) *Room {
	return &Room{
		channel: ch,
		roster:  make(map[domain.UserID]domain.Participant),
		conns:   make(map[core.SessionID]domain.UserID),
		session: NewSession(now),
	}
}

// Channel is immutable after construction; no lock needed.
func (r *Room) Channel() *domain.Channel { return r.channel }

// Participants is the locked roster accessor for read-only surfaces.
func (r *Room) Participants() []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants()
}

// addConn registers a connection; the roster gains the user unless
// another of their connections is already present. Caller holds mu.
func (r *Room) addConn(sid core.SessionID, u *domain.User) (rosterChanged bool) {
	r.conns[sid] = u.ID
	if _, ok := r.roster[u.ID]; !ok {
		r.roster[u.ID] = domain.Participant{UserID: u.ID, Username: u.Username}
		rosterChanged = true
	}
	return rosterChanged
}

// removeConn drops a connection; the user leaves the roster only when
// none of their connections remain in the room. Caller holds mu.
func (r *Room) removeConn(sid core.SessionID) (rosterChanged, empty bool) {
	uid, ok := r.conns[sid]
	if !ok {
		return false, len(r.roster) == 0
	}
	delete(r.conns, sid)
	for _, other := range r.conns {
		if other == uid {
			return false, false
		}
	}
	delete(r.roster, uid)
	return true, len(r.roster) == 0
}

// hasUser reports roster presence. Caller holds mu.
func (r *Room) hasUser(uid domain.UserID) bool {
	_, ok := r.roster[uid]
	return ok
}

// participants returns the roster sorted by username for stable
// payloads. Caller holds mu.
func (r *Room) participants() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.roster))
	for _, p := range r.roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

type RoomInfo struct {
	ChannelID domain.ChannelID `json:"channelId"`
	Name      string           `json:"name"`
	Count     int              `json:"count"`
}

// RoomManager owns the room set and the reverse index from connection
// to the single room it occupies.
type RoomManager struct {
	mu        sync.RWMutex
	rooms     map[domain.ChannelID]*Room
	bySession map[core.SessionID]domain.ChannelID
	now       func() time.Time
}

func NewRoomManager(now func() time.Time) *RoomManager {
	if now == nil {
		now = time.Now
	}
	return &RoomManager{
		rooms:     make(map[domain.ChannelID]*Room),
		bySession: make(map[core.SessionID]domain.ChannelID),
		now:       now,
	}
}

func (m *RoomManager) GetOrCreate(ch *domain.Channel) *Room {
	m.mu.RLock()
	room, ok := m.rooms[ch.ID]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[ch.ID]; ok {
		return room
	}
	room = newRoom(ch, m.now)
	m.rooms[ch.ID] = room
	log.Info().Str("module", "app.rooms").Str("channel", string(ch.ID)).Msg("room created")
	return room
}

func (m *RoomManager) Get(id domain.ChannelID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// RoomOf resolves the room a connection currently occupies, if any.
func (m *RoomManager) RoomOf(sid core.SessionID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySession[sid]
	if !ok {
		return nil, false
	}
	room, ok := m.rooms[id]
	return room, ok
}

func (m *RoomManager) bind(sid core.SessionID, id domain.ChannelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySession[sid] = id
}

func (m *RoomManager) unbind(sid core.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bySession, sid)
}

// Destroy tears the room down, unless a join repopulated the roster
// since the emptying leave released the room lock. The emptiness
// re-check runs under both locks, so a destroyed room is empty and a
// surviving room keeps its joiners.
func (m *RoomManager) Destroy(id domain.ChannelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return
	}
	room.mu.Lock()
	if len(room.roster) > 0 {
		room.mu.Unlock()
		return
	}
	room.closed = true
	room.mu.Unlock()
	delete(m.rooms, id)
	log.Info().Str("module", "app.rooms").Str("channel", string(id)).Msg("room destroyed")
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, room := range m.rooms {
		room.mu.Lock()
		out = append(out, RoomInfo{ChannelID: id, Name: room.channel.Name, Count: len(room.roster)})
		room.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}
