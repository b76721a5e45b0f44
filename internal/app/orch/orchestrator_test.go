package orch_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/watchparty/internal/app/orch"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestScenario_ChatThenStreamerDisconnects(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	// Given alice creates r1 and bob joins it
	a := connect(o, "sa")
	b := connect(o, "sb")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("r1")))
	req.NoError(o.Join(ctx, "sb", user("bob"), join("r1")))

	snap := b.lastSnapshot(t)
	req.Equal([]domain.UserID{"alice", "bob"}, memberIDs(snap))
	req.NotNil(snap.Streamer)
	req.Equal(domain.UserID("alice"), *snap.Streamer)
	req.Equal(snap, a.lastSnapshot(t))

	// When bob chats
	msg, err := o.Chat(ctx, "sb", "r1", "  hello  ")
	req.NoError(err)
	req.Equal("hello", msg.Content)
	req.NotEmpty(msg.ID)

	// Then both connections get the same message, sender included
	for _, c := range []*fakeConn{a, b} {
		chats := c.ofType(t, orch.TypeChatMessage)
		req.Len(chats, 1)
		req.Equal(msg.ID, chats[0].Message.ID)
		req.Equal(domain.UserID("bob"), chats[0].Message.Sender.ID)
	}

	// When alice drops
	o.OnDisconnect("sa")

	// Then bob streams and is the only member, live and persisted
	snap = b.lastSnapshot(t)
	req.Equal([]domain.UserID{"bob"}, memberIDs(snap))
	req.NotNil(snap.Streamer)
	req.Equal(domain.UserID("bob"), *snap.Streamer)

	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.True(rec.Room.StreamerIs("bob"))
	req.Len(rec.Users, 1)
	req.Equal(domain.UserID("bob"), rec.Users[0].ID)

	_, ok := o.Registry.Lookup("sa")
	req.False(ok)
}

func TestScenario_RejoinWithinGraceWindowKeepsRoom(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{GraceWindow: 60 * time.Millisecond})

	connect(o, "s1")
	req.NoError(o.Join(ctx, "s1", user("alice"), join("r1")))
	o.OnDisconnect("s1")
	req.True(o.Reclaimer.Pending("r1"))

	// When alice reconnects before the window ends
	connect(o, "s2")
	req.NoError(o.Join(ctx, "s2", user("alice"), join("r1")))
	req.False(o.Reclaimer.Pending("r1"))

	// Then the room survives the window
	time.Sleep(150 * time.Millisecond)
	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.True(rec.Room.StreamerIs("alice"))
	req.Len(rec.Users, 1)
}

func TestScenario_EmptyRoomIsReclaimed(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{GraceWindow: 20 * time.Millisecond})

	connect(o, "s1")
	req.NoError(o.Join(ctx, "s1", user("alice"), join("r1")))
	req.NoError(o.Leave(ctx, "s1"))

	req.Eventually(func() bool {
		_, err := st.GetRoom(ctx, "r1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
	_, err := st.GetRoom(ctx, "r1")
	req.ErrorIs(err, core.ErrNotFound)
}

func TestScenario_ReservedRoomIsNeverReclaimed(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{GraceWindow: 10 * time.Millisecond, ReservedRooms: []string{"Lobby"}})

	connect(o, "s1")
	req.NoError(o.Join(ctx, "s1", user("alice"), join("lobby")))
	o.OnDisconnect("s1")
	req.False(o.Reclaimer.Pending("lobby"))

	time.Sleep(60 * time.Millisecond)
	rec, err := st.GetRoom(ctx, "lobby")
	req.NoError(err)
	req.Empty(rec.Users)
	req.Nil(rec.Room.Streamer)
}

func TestScenario_JoinAfterEmptyElectsJoiner(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	connect(o, "s1")
	req.NoError(o.Join(ctx, "s1", user("alice"), join("r1")))
	o.OnDisconnect("s1")

	b := connect(o, "s2")
	req.NoError(o.Join(ctx, "s2", user("bob"), join("r1")))

	snap := b.lastSnapshot(t)
	req.NotNil(snap.Streamer)
	req.Equal(domain.UserID("bob"), *snap.Streamer)
	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.True(rec.Room.StreamerIs("bob"))
}

func TestOnDisconnect_RunsOnce(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, _ := newStoreOrch(t, orch.Options{})

	connect(o, "sa")
	b := connect(o, "sb")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("r1")))
	req.NoError(o.Join(ctx, "sb", user("bob"), join("r1")))
	before := len(b.ofType(t, orch.TypeRoomUpdate))

	// When the close fires twice, after an explicit leave
	req.NoError(o.Leave(ctx, "sa"))
	o.OnDisconnect("sa")
	o.OnDisconnect("sa")

	// Then bob sees exactly one departure
	req.Len(b.ofType(t, orch.TypeRoomUpdate), before+1)
	req.Equal([]domain.UserID{"bob"}, memberIDs(b.lastSnapshot(t)))

	// Unknown connections are ignored
	o.OnDisconnect("unknown")
}

func TestChat_Rejections(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, _ := newStoreOrch(t, orch.Options{ChatMaxLength: 5})

	a := connect(o, "sa")
	connect(o, "sx")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("r1")))
	before := len(a.decoded(t))

	_, err := o.Chat(ctx, "sx", "r1", "hi")
	req.ErrorIs(err, orch.ErrNotBound)
	_, err = o.Chat(ctx, "sa", "r2", "hi")
	req.ErrorIs(err, orch.ErrRoomMismatch)
	_, err = o.Chat(ctx, "sa", "r1", "   ")
	req.ErrorIs(err, domain.ErrContentEmpty)
	_, err = o.Chat(ctx, "sa", "r1", "too long")
	req.ErrorIs(err, domain.ErrContentTooLong)

	// Nothing reached the room
	req.Len(a.decoded(t), before)
}

func TestSetStreamer(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	a := connect(o, "sa")
	b := connect(o, "sb")
	connect(o, "sx")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("r1")))
	req.NoError(o.Join(ctx, "sb", user("bob"), join("r1")))
	before := len(b.decoded(t))

	// Rejected transitions change nothing
	req.ErrorIs(o.SetStreamer(ctx, "sa", "r1", "carol"), orch.ErrNotMember)
	req.ErrorIs(o.SetStreamer(ctx, "sx", "r1", "bob"), orch.ErrNotBound)
	req.ErrorIs(o.SetStreamer(ctx, "sa", "r2", "bob"), orch.ErrRoomMismatch)
	req.Len(b.decoded(t), before)
	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.True(rec.Room.StreamerIs("alice"))

	// A member can be handed the role by anyone in the room
	req.NoError(o.SetStreamer(ctx, "sb", "r1", "bob"))
	for _, c := range []*fakeConn{a, b} {
		snap := c.lastSnapshot(t)
		req.NotNil(snap.Streamer)
		req.Equal(domain.UserID("bob"), *snap.Streamer)
	}
	rec, err = st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.True(rec.Room.StreamerIs("bob"))
}

func TestJoin_SameUserElsewhereVacatesPreviousRoom(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	first := connect(o, "s1")
	connect(o, "s2")
	req.NoError(o.Join(ctx, "s1", user("alice"), join("r1")))

	// When alice joins r2 from another tab
	req.NoError(o.Join(ctx, "s2", user("alice"), join("r2")))

	// Then the first tab is told it left r1
	left := first.ofType(t, orch.TypeLeft)
	req.Len(left, 1)
	req.Equal("joined_elsewhere", left[0].Reason)
	req.JSONEq(`"r1"`, string(left[0].Room))
	_, ok := o.Registry.Lookup("s1")
	req.False(ok)

	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.Empty(rec.Users)
	rec, err = st.GetRoom(ctx, "r2")
	req.NoError(err)
	req.Len(rec.Users, 1)
	req.True(o.Reclaimer.Pending("r1"))
}

func TestJoin_RebindSameConnection(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, _ := newStoreOrch(t, orch.Options{})

	connect(o, "s1")
	req.NoError(o.Join(ctx, "s1", user("alice"), join("r1")))
	req.NoError(o.Join(ctx, "s1", user("alice"), join("r2")))

	b, ok := o.Registry.Lookup("s1")
	req.True(ok)
	req.Equal(domain.RoomID("r2"), b.RoomID)
	req.Empty(o.Registry.MembersOf("r1"))
	req.Len(o.Registry.MembersOf("r2"), 1)
}

func TestJoin_SameRoomEchoesSnapshot(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, _ := newStoreOrch(t, orch.Options{})

	a := connect(o, "sa")
	b := connect(o, "sb")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("r1")))
	req.NoError(o.Join(ctx, "sb", user("bob"), join("r1")))
	aBefore := len(a.decoded(t))
	bBefore := len(b.decoded(t))

	req.NoError(o.Join(ctx, "sb", user("bob"), join("r1")))

	req.Len(b.decoded(t), bBefore+1)
	req.Len(a.decoded(t), aBefore)
	req.Equal([]domain.UserID{"alice", "bob"}, memberIDs(b.lastSnapshot(t)))
}

func TestJoin_RoomMetadataOnCreate(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	a := connect(o, "sa")
	req.NoError(o.Join(ctx, "sa", user("alice"), orch.JoinRequest{
		RoomID:      "r1",
		Name:        "Friday movie",
		Description: "bring snacks",
		Image:       "banner.png",
	}))

	snap := a.lastSnapshot(t)
	req.Equal(domain.RoomName("Friday movie"), snap.Name)
	req.Equal("bring snacks", snap.Description)
	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.Equal("banner.png", rec.Room.Image)
}

func TestJoin_InvalidInput(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, _ := newStoreOrch(t, orch.Options{})
	connect(o, "s1")

	req.ErrorIs(o.Join(ctx, "s1", domain.User{}, join("r1")), domain.ErrUserIDEmpty)
	req.ErrorIs(o.Join(ctx, "s1", user("alice"), join("")), domain.ErrRoomIDEmpty)
	_, ok := o.Registry.Lookup("s1")
	req.False(ok)
}

func TestJoin_MultipleConnectionsOfOneUser(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	connect(o, "s1")
	connect(o, "s2")
	b := connect(o, "sb")
	req.NoError(o.Join(ctx, "s1", user("alice"), join("r1")))
	req.NoError(o.Join(ctx, "s2", user("alice"), join("r1")))
	req.NoError(o.Join(ctx, "sb", user("bob"), join("r1")))
	req.Equal([]domain.UserID{"alice", "bob"}, memberIDs(b.lastSnapshot(t)))

	// One tab closing keeps alice in the room
	o.OnDisconnect("s1")
	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.Len(rec.Users, 2)
	req.Equal([]domain.UserID{"alice", "bob"}, memberIDs(b.lastSnapshot(t)))

	// The last one removes her and hands the role over
	o.OnDisconnect("s2")
	rec, err = st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.Len(rec.Users, 1)
	req.True(rec.Room.StreamerIs("bob"))
}

func TestJoin_ClosedConnectionIsCompensated(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	// Given a connection whose close is already being processed
	connect(o, "s1")
	req.True(o.Registry.Deregister("s1"))

	// When its JOIN is applied
	err := o.Join(ctx, "s1", user("alice"), join("r1"))

	// Then nothing stays bound or persisted
	req.ErrorIs(err, core.ErrConnClosed)
	_, ok := o.Registry.Lookup("s1")
	req.False(ok)
	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.Empty(rec.Users)
	req.Empty(o.ListRooms())
}

func TestJoin_RacingDisconnectLeavesNoBinding(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	for i := 0; i < 20; i++ {
		sid := core.SessionID(fmt.Sprintf("s%d", i))
		connect(o, sid)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = o.Join(ctx, sid, user("alice"), join("r1"))
		}()
		go func() {
			defer wg.Done()
			o.OnDisconnect(sid)
		}()
		wg.Wait()

		_, ok := o.Registry.Lookup(sid)
		req.False(ok)
		req.Empty(o.Registry.MembersOf("r1"))
		rec, err := st.GetRoom(ctx, "r1")
		if err == nil {
			req.Empty(rec.Users)
		}
	}
}

func TestJoin_ConcurrentJoinsOneStreamer(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		sid := core.SessionID(fmt.Sprintf("s%d", i))
		connect(o, sid)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- o.Join(ctx, sid, user(fmt.Sprintf("u%d", i)), join("r1"))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	snap, err := o.RoomSnapshot(ctx, "r1")
	req.NoError(err)
	req.Len(snap.Members, n)
	req.NotNil(snap.Streamer)
	// The creator is the earliest member
	req.Equal(snap.Members[0].ID, *snap.Streamer)

	rec, err := st.GetRoom(ctx, "r1")
	req.NoError(err)
	req.Len(rec.Users, n)
	req.True(rec.Room.StreamerIs(*snap.Streamer))
}

func TestBroadcast_SlowPeerIsKicked(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, _ := newStoreOrch(t, orch.Options{})

	a := connect(o, "sa")
	b := connect(o, "sb")
	connect(o, "sc")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("r1")))
	req.NoError(o.Join(ctx, "sb", user("bob"), join("r1")))

	// When alice stops draining her buffer
	a.setFull()
	req.NoError(o.Join(ctx, "sc", user("carol"), join("r1")))

	// Then she is disconnected and bob takes over
	req.Eventually(func() bool {
		_, ok := o.Registry.Lookup("sa")
		return !ok
	}, time.Second, 5*time.Millisecond)
	req.True(a.isClosed())
	req.Eventually(func() bool {
		s := b.lastSnapshot(t)
		return s.Streamer != nil && *s.Streamer == "bob" && len(s.Members) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcast_TolerantPolicyKeepsSlowPeer(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, _ := newStoreOrch(t, orch.Options{Policy: tolerant{}})

	a := connect(o, "sa")
	connect(o, "sb")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("r1")))
	a.setFull()
	req.NoError(o.Join(ctx, "sb", user("bob"), join("r1")))

	time.Sleep(20 * time.Millisecond)
	_, ok := o.Registry.Lookup("sa")
	req.True(ok)
	req.False(a.isClosed())
}

func TestRoomSnapshot_FallsBackToGateway(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, _ := newStoreOrch(t, orch.Options{})

	connect(o, "s1")
	req.NoError(o.Join(ctx, "s1", user("alice"), orch.JoinRequest{RoomID: "r1", Name: "Movies"}))
	list := o.ListRooms()
	req.Len(list, 1)
	req.Equal(1, list[0].MemberCount)

	req.NoError(o.Leave(ctx, "s1"))
	req.Empty(o.ListRooms())

	snap, err := o.RoomSnapshot(ctx, "r1")
	req.NoError(err)
	req.Equal(domain.RoomName("Movies"), snap.Name)
	req.Empty(snap.Members)

	_, err = o.RoomSnapshot(ctx, "missing")
	req.ErrorIs(err, core.ErrNotFound)
}

func TestShutdown_DisconnectsEveryone(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newStoreOrch(t, orch.Options{})

	a := connect(o, "sa")
	b := connect(o, "sb")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("lobby")))
	req.NoError(o.Join(ctx, "sb", user("bob"), join("lobby")))

	req.NoError(o.Shutdown(ctx))

	req.True(a.isClosed())
	req.True(b.isClosed())
	req.Empty(o.Registry.Sessions())
	rec, err := st.GetRoom(ctx, "lobby")
	req.NoError(err)
	req.Empty(rec.Users)
}
