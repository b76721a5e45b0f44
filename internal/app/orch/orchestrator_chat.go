package orch

import (
	"context"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
)

// Chat fans a message out to every connection of the room, sender included.
// Nothing is persisted.
func (o *Orchestrator) Chat(_ context.Context, sid core.SessionID, roomID domain.RoomID, content string) (*domain.ChatMessage, error) {
	b, ok := o.Registry.Lookup(sid)
	if !ok {
		return nil, ErrNotBound
	}
	if b.RoomID != roomID {
		return nil, ErrRoomMismatch
	}
	text, err := domain.NormalizeContent(content, o.chatMaxLen)
	if err != nil {
		return nil, err
	}

	state, release := o.Rooms.Acquire(roomID)
	defer release()
	if cur, ok := o.Registry.Lookup(sid); !ok || cur.RoomID != roomID {
		return nil, ErrNotBound
	}

	msg := domain.ChatMessage{
		ID:        o.newID(),
		Content:   text,
		Sender:    b.User,
		Timestamp: o.now(),
	}
	res := o.broadcast(state, ChatBroadcast{Type: TypeChatMessage, Message: msg})
	log.Debug().Str("module", "orch").Str("room", string(roomID)).Str("sid", string(sid)).Int("sent_to", res.SendTo).Msg("chat message")
	return &msg, nil
}
