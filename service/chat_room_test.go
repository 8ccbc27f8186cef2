package service

import (
	"context"
	"testing"

	"safimatch/model"
	"safimatch/realtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatStore struct {
	history   []model.Message
	markReads int
	seen      []uuid.UUID
}

func (f *fakeChatStore) Messages(ctx context.Context, ident model.Identity, matchID uuid.UUID, page, perPage int) ([]model.Message, error) {
	return f.history, nil
}

func (f *fakeChatStore) MarkRead(ctx context.Context, ident model.Identity, matchID, fromUserID uuid.UUID) error {
	f.markReads++
	return nil
}

func (f *fakeChatStore) MarkViewOnceSeen(ctx context.Context, ident model.Identity, messageID uuid.UUID) error {
	f.seen = append(f.seen, messageID)
	return nil
}

func textMessage(from uuid.UUID, content string) model.Message {
	return model.Message{
		ID:       uuid.New(),
		DeUserID: from,
		Conteudo: &content,
		Tipo:     model.MessageTypeText,
	}
}

func TestChatRoomAppendDeduplicates(t *testing.T) {
	me := testIdentity()
	other := uuid.New()
	existing := textMessage(other, "oi")
	store := &fakeChatStore{history: []model.Message{existing}}

	room := NewChatRoom(store, me, uuid.New(), other)
	msgs, err := room.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.False(t, room.Append(existing))
	assert.Len(t, room.Messages(), 1)

	assert.True(t, room.Append(textMessage(other, "tudo bem?")))
	assert.Len(t, room.Messages(), 2)
}

func TestChatRoomMarksReadOnce(t *testing.T) {
	store := &fakeChatStore{}
	room := NewChatRoom(store, testIdentity(), uuid.New(), uuid.New())

	_, err := room.Load(context.Background())
	require.NoError(t, err)
	_, err = room.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, store.markReads)
}

func TestChatRoomViewOnce(t *testing.T) {
	me := testIdentity()
	other := uuid.New()
	photo := "https://cdn.example.com/x.jpg"

	incoming := model.Message{ID: uuid.New(), DeUserID: other, Tipo: model.MessageTypeViewOnce, FotoURL: &photo, ViewOnce: true}
	outgoing := model.Message{ID: uuid.New(), DeUserID: me.UserID, Tipo: model.MessageTypeViewOnce, FotoURL: &photo, ViewOnce: true}
	store := &fakeChatStore{history: []model.Message{incoming, outgoing}}

	room := NewChatRoom(store, me, uuid.New(), other)
	_, err := room.Load(context.Background())
	require.NoError(t, err)

	opened, err := room.OpenViewOnce(context.Background(), incoming.ID)
	require.NoError(t, err)
	assert.True(t, opened.ViewOnceVisto)
	assert.Equal(t, []uuid.UUID{incoming.ID}, store.seen)

	_, err = room.OpenViewOnce(context.Background(), incoming.ID)
	assert.ErrorIs(t, err, ErrPhotoExpired)

	_, err = room.OpenViewOnce(context.Background(), outgoing.ID)
	assert.ErrorIs(t, err, ErrNotRecipient)

	_, err = room.OpenViewOnce(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Len(t, store.seen, 1)
}

func TestOthersTyping(t *testing.T) {
	state := map[string]realtime.Presence{
		"me":  {{"digitando": true}},
		"her": {{"digitando": false}},
	}
	assert.False(t, OthersTyping(state, "me"))

	state["her"] = realtime.Presence{{"digitando": true}}
	assert.True(t, OthersTyping(state, "me"))
}
