package orch_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/watchparty/internal/adapters/store"
	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/app/orch"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeConn records frames; full makes TrySend fail like a saturated buffer.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, append([]byte(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) setFull() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type frame struct {
	Type    string             `json:"type"`
	Room    json.RawMessage    `json:"room"`
	Reason  string             `json:"reason"`
	Message domain.ChatMessage `json:"message"`
}

func (c *fakeConn) decoded(t *testing.T) []frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ string) []frame {
	t.Helper()
	var out []frame
	for _, f := range c.decoded(t) {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// lastSnapshot returns the most recent ROOM_UPDATE payload.
func (c *fakeConn) lastSnapshot(t *testing.T) core.RoomSnapshot {
	t.Helper()
	updates := c.ofType(t, orch.TypeRoomUpdate)
	require.NotEmpty(t, updates)
	var snap core.RoomSnapshot
	require.NoError(t, json.Unmarshal(updates[len(updates)-1].Room, &snap))
	return snap
}

func memberIDs(s core.RoomSnapshot) []domain.UserID {
	out := make([]domain.UserID, 0, len(s.Members))
	for _, m := range s.Members {
		out = append(out, m.ID)
	}
	return out
}

func newStoreOrch(t *testing.T, opts orch.Options) (*orch.Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	opts.Gateway = st
	if opts.GraceWindow == 0 {
		opts.GraceWindow = time.Hour
	}
	o := orch.New(opts)
	t.Cleanup(func() {
		o.Reclaimer.Stop()
		_ = st.Close()
	})
	return o, st
}

// slowStore holds AddMember long enough for concurrent joins to overlap.
type slowStore struct {
	*store.Store
	delay time.Duration
}

func (s slowStore) AddMember(ctx context.Context, roomID domain.RoomID, u domain.User) (*domain.Membership, error) {
	time.Sleep(s.delay)
	return s.Store.AddMember(ctx, roomID, u)
}

// gatedStore parks RemoveMember until gate is closed.
type gatedStore struct {
	*store.Store
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (s *gatedStore) RemoveMember(ctx context.Context, roomID domain.RoomID, uid domain.UserID) error {
	s.once.Do(func() { close(s.entered) })
	<-s.gate
	return s.Store.RemoveMember(ctx, roomID, uid)
}

// newWrappedOrch runs the coordinator on a sqlite store seen through wrap.
func newWrappedOrch(t *testing.T, wrap func(*store.Store) core.Gateway) (*orch.Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	o := orch.New(orch.Options{Gateway: wrap(st), GraceWindow: time.Hour})
	t.Cleanup(func() {
		o.Reclaimer.Stop()
		_ = st.Close()
	})
	return o, st
}

// roomsHolding lists the live rooms whose state has uid as a member.
func roomsHolding(o *orch.Orchestrator, uid domain.UserID, rooms ...domain.RoomID) []domain.RoomID {
	var out []domain.RoomID
	for _, id := range rooms {
		if state, ok := o.Rooms.Get(id); ok && state.HasMember(uid) {
			out = append(out, id)
		}
	}
	return out
}

func connect(o *orch.Orchestrator, sid core.SessionID) *fakeConn {
	c := &fakeConn{}
	o.Registry.Register(sid, c, nil)
	return c
}

func user(id string) domain.User {
	return domain.User{ID: domain.UserID(id), Name: "name-" + id}
}

func join(roomID string) orch.JoinRequest {
	return orch.JoinRequest{RoomID: domain.RoomID(roomID)}
}

type tolerant struct{}

func (tolerant) OnBackPressure(*core.RoomState, app.Peer, error) app.BackpressureAction {
	return app.DropFrame
}
