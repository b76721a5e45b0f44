package orch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/watchparty/internal/adapters/store"
	"github.com/dkeye/watchparty/internal/app/orch"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/stretchr/testify/require"
)

func slow(st *store.Store) core.Gateway {
	return slowStore{Store: st, delay: 50 * time.Millisecond}
}

func joinConcurrently(calls ...func() error) []error {
	var wg sync.WaitGroup
	errs := make([]error, len(calls))
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = call()
		}()
	}
	wg.Wait()
	return errs
}

func TestJoin_SameConnectionTwoRoomsAtOnce(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newWrappedOrch(t, slow)
	connect(o, "s1")
	alice := user("alice")

	// When one connection sends JOIN r1 and JOIN r2 back to back
	errs := joinConcurrently(
		func() error { return o.Join(ctx, "s1", alice, join("r1")) },
		func() error { return o.Join(ctx, "s1", alice, join("r2")) },
	)
	req.NoError(errs[0])
	req.NoError(errs[1])

	// Then the connection is bound once and only that room lists alice
	b, ok := o.Registry.Lookup("s1")
	req.True(ok)
	req.Equal([]domain.RoomID{b.RoomID}, roomsHolding(o, "alice", "r1", "r2"))
	req.Len(o.Registry.MembersOf(b.RoomID), 1)

	// And the store agrees
	rec, err := st.GetRoom(ctx, b.RoomID)
	req.NoError(err)
	req.Len(rec.Users, 1)
	req.Equal(domain.UserID("alice"), rec.Users[0].ID)
}

func TestJoin_SameUserTwoConnectionsTwoRoomsAtOnce(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	o, st := newWrappedOrch(t, slow)
	c1 := connect(o, "s1")
	c2 := connect(o, "s2")
	alice := user("alice")

	// When two tabs of alice join different rooms at the same time
	errs := joinConcurrently(
		func() error { return o.Join(ctx, "s1", alice, join("r1")) },
		func() error { return o.Join(ctx, "s2", alice, join("r2")) },
	)
	req.NoError(errs[0])
	req.NoError(errs[1])

	// Then alice is bound in exactly one room
	bindings := o.Registry.BindingsOfUser("alice")
	req.Len(bindings, 1)
	room := bindings[0].RoomID
	req.Equal([]domain.RoomID{room}, roomsHolding(o, "alice", "r1", "r2"))

	// And the tab that lost was told it left
	loser := c1
	if bindings[0].SID == "s1" {
		loser = c2
	}
	left := loser.ofType(t, orch.TypeLeft)
	req.Len(left, 1)
	req.Equal("joined_elsewhere", left[0].Reason)

	// And the store holds the same membership
	rec, err := st.GetRoom(ctx, room)
	req.NoError(err)
	req.Len(rec.Users, 1)
	other := domain.RoomID("r1")
	if room == "r1" {
		other = "r2"
	}
	if rec, err := st.GetRoom(ctx, other); err == nil {
		req.Empty(rec.Users)
	}
}

func TestShutdown_WaitsForTransportDisconnects(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	gs := &gatedStore{entered: make(chan struct{}), gate: make(chan struct{})}
	o, st := newWrappedOrch(t, func(st *store.Store) core.Gateway {
		gs.Store = st
		return gs
	})
	connect(o, "sa")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("lobby")))

	// Given a transport close already inside its leave
	go o.OnDisconnect("sa")
	<-gs.entered

	// When shutdown starts
	done := make(chan error, 1)
	go func() { done <- o.Shutdown(ctx) }()

	// Then it does not return while that leave is running
	select {
	case err := <-done:
		req.Failf("shutdown returned early", "err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gs.gate)
	req.NoError(<-done)
	rec, err := st.GetRoom(ctx, "lobby")
	req.NoError(err)
	req.Empty(rec.Users)
}

func TestShutdown_GivesUpAtDeadline(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	gs := &gatedStore{entered: make(chan struct{}), gate: make(chan struct{})}
	o, _ := newWrappedOrch(t, func(st *store.Store) core.Gateway {
		gs.Store = st
		return gs
	})
	defer close(gs.gate)
	connect(o, "sa")
	req.NoError(o.Join(ctx, "sa", user("alice"), join("lobby")))

	go o.OnDisconnect("sa")
	<-gs.entered

	sctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	req.ErrorIs(o.Shutdown(sctx), context.DeadlineExceeded)
}
