package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
	"github.com/wavechat/wave/internal/protocol"
)

// fakeDirectory answers membership lookups from in-memory tables.
type fakeDirectory struct {
	members  map[string]bool // "org/user"
	owners   map[string]bool
	channels map[domain.ChannelID]*domain.Channel
	orgs     map[domain.UserID][]domain.OrgID
}

func (d *fakeDirectory) key(u domain.UserID, o domain.OrgID) string {
	return string(o) + "/" + string(u)
}

func (d *fakeDirectory) IsMember(_ context.Context, u domain.UserID, o domain.OrgID) (bool, error) {
	return d.members[d.key(u, o)], nil
}

func (d *fakeDirectory) IsOwner(_ context.Context, u domain.UserID, o domain.OrgID) (bool, error) {
	return d.owners[d.key(u, o)], nil
}

func (d *fakeDirectory) ChannelByID(_ context.Context, id domain.ChannelID) (*domain.Channel, error) {
	ch, ok := d.channels[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return ch, nil
}

func (d *fakeDirectory) OrgsOf(_ context.Context, u domain.UserID) ([]domain.OrgID, error) {
	return d.orgs[u], nil
}

// memPending is an in-memory core.PendingStore.
type memPending struct {
	mu   sync.Mutex
	msgs map[string]domain.PendingMessage
}

func newMemPending() *memPending {
	return &memPending{msgs: make(map[string]domain.PendingMessage)}
}

func (s *memPending) InsertIfAbsent(m domain.PendingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.msgs[m.ID]; !ok {
		s.msgs[m.ID] = m
	}
	return nil
}

func (s *memPending) ListNonExpiredFor(uid domain.UserID, now time.Time) ([]domain.PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PendingMessage
	for _, m := range s.msgs {
		if m.To == uid && !m.Expired(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memPending) DeleteFor(uid domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.msgs {
		if m.To == uid {
			delete(s.msgs, id)
		}
	}
	return nil
}

func (s *memPending) DeleteExpired(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.msgs {
		if m.Expired(now) {
			delete(s.msgs, id)
		}
	}
	return nil
}

func (s *memPending) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

const (
	orgAcme  = domain.OrgID("acme")
	chLounge = domain.ChannelID("lounge")
	chStudio = domain.ChannelID("studio")
)

func testDirectory() *fakeDirectory {
	d := &fakeDirectory{
		members:  make(map[string]bool),
		owners:   make(map[string]bool),
		channels: make(map[domain.ChannelID]*domain.Channel),
		orgs:     make(map[domain.UserID][]domain.OrgID),
	}
	d.channels[chLounge] = &domain.Channel{ID: chLounge, OrgID: orgAcme, Name: "Lounge", Kind: domain.ChannelVoice}
	d.channels[chStudio] = &domain.Channel{ID: chStudio, OrgID: orgAcme, Name: "Studio", Kind: domain.ChannelVoice}
	d.channels["general"] = &domain.Channel{ID: "general", OrgID: orgAcme, Name: "General", Kind: domain.ChannelText}
	for _, u := range []string{"alice", "bob", "carol"} {
		d.members[d.key(domain.UserID(u), orgAcme)] = true
		d.orgs[domain.UserID(u)] = []domain.OrgID{orgAcme}
	}
	return d
}

type fixture struct {
	coord *Coordinator
	dir   *fakeDirectory
	store *memPending
	clk   *fakeClock
}

func newFixture() *fixture {
	clk := newFakeClock()
	dir := testDirectory()
	store := newMemPending()
	return &fixture{
		coord: NewCoordinatorWithClock(dir, store, clk.now),
		dir:   dir,
		store: store,
		clk:   clk,
	}
}

func (f *fixture) connect(t *testing.T, uid string) (*Client, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	client, err := f.coord.Connect(context.Background(), conn, core.Claims{UserID: domain.UserID(uid), Username: uid})
	require.NoError(t, err)
	return client, conn
}

// eventsOf decodes the frames a connection received, filtered by type.
func eventsOf(t *testing.T, conn *fakeConn, eventType string) []map[string]any {
	t.Helper()
	conn.mu.Lock()
	defer conn.mu.Unlock()
	var out []map[string]any
	for _, f := range conn.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		if m["type"] == eventType {
			out = append(out, m)
		}
	}
	return out
}

func TestRoomExclusivity(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")

	f.coord.JoinVoice(context.Background(), alice, chLounge)
	lounge, ok := f.coord.Rooms.Get(chLounge)
	require.True(t, ok)
	assert.Len(t, lounge.Participants(), 1)

	f.coord.JoinVoice(context.Background(), alice, chStudio)
	studio, ok := f.coord.Rooms.Get(chStudio)
	require.True(t, ok)
	assert.Len(t, studio.Participants(), 1)

	_, ok = f.coord.Rooms.Get(chLounge)
	assert.False(t, ok, "emptied room must be destroyed")
}

func TestJoinRejectedForTextChannel(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	f.coord.JoinVoice(context.Background(), alice, "general")
	_, ok := f.coord.Rooms.Get("general")
	assert.False(t, ok)
}

func TestJoinRejectedForNonMember(t *testing.T) {
	f := newFixture()
	mallory, conn := f.connect(t, "mallory") // not in acme
	f.coord.JoinVoice(context.Background(), mallory, chLounge)
	_, ok := f.coord.Rooms.Get(chLounge)
	assert.False(t, ok)
	assert.Empty(t, eventsOf(t, conn, protocol.OutVoiceRoster))
}

func TestIdempotentRejoin(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	bob, bobConn := f.connect(t, "bob")
	f.coord.JoinVoice(context.Background(), alice, chLounge)
	f.coord.JoinVoice(context.Background(), bob, chLounge)

	before := len(eventsOf(t, bobConn, protocol.OutVoiceRoster))
	f.coord.JoinVoice(context.Background(), alice, chLounge)
	after := len(eventsOf(t, bobConn, protocol.OutVoiceRoster))
	assert.Equal(t, before, after, "re-join must not re-broadcast the roster")

	room, ok := f.coord.Rooms.Get(chLounge)
	require.True(t, ok)
	assert.Len(t, room.Participants(), 2)
}

func TestMultiDeviceRoster(t *testing.T) {
	f := newFixture()
	a1, _ := f.connect(t, "alice")
	a2, _ := f.connect(t, "alice")
	f.coord.JoinVoice(context.Background(), a1, chLounge)
	f.coord.JoinVoice(context.Background(), a2, chLounge)

	room, ok := f.coord.Rooms.Get(chLounge)
	require.True(t, ok)
	assert.Len(t, room.Participants(), 1, "one roster entry per user")

	f.coord.LeaveVoice(a1)
	room, ok = f.coord.Rooms.Get(chLounge)
	require.True(t, ok, "room survives while a device remains")
	assert.Len(t, room.Participants(), 1)

	f.coord.LeaveVoice(a2)
	_, ok = f.coord.Rooms.Get(chLounge)
	assert.False(t, ok)
}

func TestPresenceBroadcastOncePerTransition(t *testing.T) {
	f := newFixture()
	_, bobConn := f.connect(t, "bob")

	a1, _ := f.connect(t, "alice")
	a2, _ := f.connect(t, "alice")
	online := eventsOf(t, bobConn, protocol.OutPresence)
	require.Len(t, online, 1, "multi-device connect must announce once")
	assert.Equal(t, "alice", online[0]["userId"])
	assert.Equal(t, "online", online[0]["status"])

	f.coord.Disconnect(a1)
	assert.Len(t, eventsOf(t, bobConn, protocol.OutPresence), 1, "user still online on another device")

	f.coord.Disconnect(a2)
	presence := eventsOf(t, bobConn, protocol.OutPresence)
	require.Len(t, presence, 2)
	assert.Equal(t, "offline", presence[1]["status"])
}

func TestSignalRelayedToAuthorizedTarget(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	bob, bobConn := f.connect(t, "bob")
	f.coord.JoinVoice(context.Background(), alice, chLounge)
	f.coord.JoinVoice(context.Background(), bob, chLounge)

	f.coord.RelaySignal(alice, protocol.VoiceSignal{
		ChannelID:    chLounge,
		TargetUserID: "bob",
		Payload:      json.RawMessage(`{"sdp":"offer"}`),
	})

	signals := eventsOf(t, bobConn, protocol.OutVoiceSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, "alice", signals[0]["fromUserId"])
}

func TestSignalDroppedWhenTargetAbsent(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	_, carolConn := f.connect(t, "carol") // online but not in the room
	f.coord.JoinVoice(context.Background(), alice, chLounge)

	f.coord.RelaySignal(alice, protocol.VoiceSignal{
		ChannelID:    chLounge,
		TargetUserID: "carol",
		Payload:      json.RawMessage(`{}`),
	})
	assert.Empty(t, eventsOf(t, carolConn, protocol.OutVoiceSignal))
}

func TestSignalDroppedWhenSenderOutsideRoom(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	bob, bobConn := f.connect(t, "bob")
	f.coord.JoinVoice(context.Background(), bob, chLounge)

	f.coord.RelaySignal(alice, protocol.VoiceSignal{
		ChannelID:    chLounge,
		TargetUserID: "bob",
		Payload:      json.RawMessage(`{}`),
	})
	assert.Empty(t, eventsOf(t, bobConn, protocol.OutVoiceSignal))
}

func TestSignalToSelfDropped(t *testing.T) {
	f := newFixture()
	alice, aliceConn := f.connect(t, "alice")
	f.coord.JoinVoice(context.Background(), alice, chLounge)

	f.coord.RelaySignal(alice, protocol.VoiceSignal{
		ChannelID:    chLounge,
		TargetUserID: "alice",
		Payload:      json.RawMessage(`{}`),
	})
	assert.Empty(t, eventsOf(t, aliceConn, protocol.OutVoiceSignal))
}

func TestMusicNoopDoesNotBroadcast(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	bob, bobConn := f.connect(t, "bob")
	ctx := context.Background()
	f.coord.JoinVoice(ctx, alice, chLounge)
	f.coord.JoinVoice(ctx, bob, chLounge)

	f.coord.EnqueueTrack(ctx, alice, protocol.MusicEnqueue{ChannelID: chLounge, URL: "https://youtu.be/dQw4w9WgXcQ"})
	play := func(s *Session) (bool, error) { return s.Play(alice.User.ID) }
	f.coord.MusicOp(ctx, alice, chLounge, play)
	states := len(eventsOf(t, bobConn, protocol.OutMusicState))

	f.coord.MusicOp(ctx, alice, chLounge, play)
	assert.Equal(t, states, len(eventsOf(t, bobConn, protocol.OutMusicState)), "no-op play must not broadcast")
}

func TestMusicRejectedForOutsider(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	carol, carolConn := f.connect(t, "carol") // member, but not listening
	ctx := context.Background()
	f.coord.JoinVoice(ctx, alice, chLounge)
	f.coord.EnqueueTrack(ctx, alice, protocol.MusicEnqueue{ChannelID: chLounge, URL: "https://youtu.be/dQw4w9WgXcQ"})

	f.coord.MusicOp(ctx, carol, chLounge, func(s *Session) (bool, error) {
		return s.Play(carol.User.ID)
	})
	assert.NotEmpty(t, eventsOf(t, carolConn, protocol.OutMusicError), "requester-only error expected")

	room, ok := f.coord.Rooms.Get(chLounge)
	require.True(t, ok)
	room.mu.Lock()
	state := room.session.state
	room.mu.Unlock()
	assert.Equal(t, StatePaused, state, "outsider must not mutate the session")
}

func TestMusicAllowedForOrgOwnerOutsideRoom(t *testing.T) {
	f := newFixture()
	f.dir.owners[f.dir.key("carol", orgAcme)] = true
	alice, _ := f.connect(t, "alice")
	carol, _ := f.connect(t, "carol")
	ctx := context.Background()
	f.coord.JoinVoice(ctx, alice, chLounge)
	f.coord.EnqueueTrack(ctx, alice, protocol.MusicEnqueue{ChannelID: chLounge, URL: "https://youtu.be/dQw4w9WgXcQ"})

	f.coord.MusicOp(ctx, carol, chLounge, func(s *Session) (bool, error) {
		return s.Play(carol.User.ID)
	})
	room, ok := f.coord.Rooms.Get(chLounge)
	require.True(t, ok)
	room.mu.Lock()
	state := room.session.state
	room.mu.Unlock()
	assert.Equal(t, StatePlaying, state)
}

func TestMusicStateCarriesDerivedPosition(t *testing.T) {
	f := newFixture()
	alice, aliceConn := f.connect(t, "alice")
	ctx := context.Background()
	f.coord.JoinVoice(ctx, alice, chLounge)
	f.coord.EnqueueTrack(ctx, alice, protocol.MusicEnqueue{ChannelID: chLounge, URL: "https://youtu.be/dQw4w9WgXcQ"})
	f.coord.MusicOp(ctx, alice, chLounge, func(s *Session) (bool, error) { return s.Play(alice.User.ID) })

	f.clk.advance(7 * time.Second)
	f.coord.MusicOp(ctx, alice, chLounge, func(s *Session) (bool, error) { return s.Pause(alice.User.ID) })

	states := eventsOf(t, aliceConn, protocol.OutMusicState)
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.InDelta(t, 7.0, last["positionSeconds"].(float64), 0.001)
	assert.Equal(t, "paused", last["playbackState"])
	assert.EqualValues(t, f.clk.now().UnixMilli(), int64(last["serverNow"].(float64)))
	assert.Equal(t, "alice", last["lastMutator"])
}

func TestOfflineDMRoundTrip(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")

	f.coord.SendDM(alice, protocol.DirectMessage{RecipientID: "bob", Content: "hey"})
	require.Equal(t, 1, f.store.count(), "offline recipient persists one record")
	for _, m := range f.store.msgs {
		assert.Equal(t, f.clk.now().Add(domain.PendingTTL), m.ExpiresAt)
	}

	_, bobConn := f.connect(t, "bob")
	delivered := eventsOf(t, bobConn, protocol.OutDirectMessage)
	require.Len(t, delivered, 1)
	assert.Equal(t, "hey", delivered[0]["content"])
	assert.Equal(t, true, delivered[0]["wasPending"])
	assert.Zero(t, f.store.count(), "store is empty after delivery")
}

func TestOnlineDMNotPersisted(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	_, bobConn := f.connect(t, "bob")

	f.coord.SendDM(alice, protocol.DirectMessage{RecipientID: "bob", Content: "hi"})
	delivered := eventsOf(t, bobConn, protocol.OutDirectMessage)
	require.Len(t, delivered, 1)
	_, hasPending := delivered[0]["wasPending"]
	assert.False(t, hasPending)
	assert.Zero(t, f.store.count())
}

func TestExpiredDMNotDelivered(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	f.coord.SendDM(alice, protocol.DirectMessage{RecipientID: "bob", Content: "stale"})

	f.clk.advance(domain.PendingTTL + time.Hour)
	_, bobConn := f.connect(t, "bob")
	assert.Empty(t, eventsOf(t, bobConn, protocol.OutDirectMessage))
	assert.Zero(t, f.store.count(), "expired records swept on connect")
}

func TestDisconnectCleansRoom(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	f.coord.JoinVoice(context.Background(), alice, chLounge)

	f.coord.Disconnect(alice)
	_, ok := f.coord.Rooms.Get(chLounge)
	assert.False(t, ok)
	assert.False(t, f.coord.Registry.Online("alice"))
}

func TestStaleDestroyDoesNotOrphanJoiner(t *testing.T) {
	f := newFixture()
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	ctx := context.Background()
	f.coord.JoinVoice(ctx, alice, chLounge)
	f.coord.JoinVoice(ctx, bob, chLounge)
	f.coord.LeaveVoice(alice)

	// A teardown triggered by an emptying leave can land after another
	// join already repopulated the roster; it must not win.
	f.coord.Rooms.Destroy(chLounge)

	room, ok := f.coord.Rooms.Get(chLounge)
	require.True(t, ok)
	assert.Len(t, room.Participants(), 1)
	bound, ok := f.coord.Rooms.RoomOf(bob.SID)
	require.True(t, ok, "the joiner must still reach the room")
	assert.Same(t, room, bound)
}

func TestUnauthorizedSubscribeIgnored(t *testing.T) {
	f := newFixture()
	mallory, malloryConn := f.connect(t, "mallory")
	f.coord.Subscribe(context.Background(), mallory, orgAcme)

	// An org broadcast must not reach the unauthorized subscriber.
	alice, _ := f.connect(t, "alice")
	f.coord.JoinVoice(context.Background(), alice, chLounge)
	assert.Empty(t, eventsOf(t, malloryConn, protocol.OutVoiceCount))
}
