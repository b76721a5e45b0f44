package app

import (
	"sync"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomSlot struct {
	mu    sync.Mutex
	refs  int
	state *core.RoomState
}

// RoomManagerImpl keeps one state per room and serializes its writers.
// Empty rooms are dropped once nobody holds or waits for them.
type RoomManagerImpl struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*roomSlot
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{rooms: make(map[domain.RoomID]*roomSlot)}
}

var _ core.RoomManager = (*RoomManagerImpl)(nil)

func (f *RoomManagerImpl) Acquire(id domain.RoomID) (*core.RoomState, func()) {
	f.mu.Lock()
	slot, ok := f.rooms[id]
	if !ok {
		slot = &roomSlot{state: core.NewRoomState(id)}
		f.rooms[id] = slot
	}
	slot.refs++
	f.mu.Unlock()

	slot.mu.Lock()
	var once sync.Once
	release := func() {
		once.Do(func() {
			slot.mu.Unlock()
			f.mu.Lock()
			defer f.mu.Unlock()
			slot.refs--
			if slot.refs == 0 && slot.state.Empty() {
				delete(f.rooms, id)
				log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room state dropped")
			}
		})
	}
	return slot.state, release
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (*core.RoomState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.rooms[id]
	if !ok {
		return nil, false
	}
	return slot.state, true
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.Lock()
	slots := make([]*roomSlot, 0, len(f.rooms))
	for _, s := range f.rooms {
		slots = append(slots, s)
	}
	f.mu.Unlock()

	out := make([]core.RoomInfo, 0, len(slots))
	for _, s := range slots {
		if s.state.Empty() {
			continue
		}
		out = append(out, s.state.Info())
	}
	return out
}
