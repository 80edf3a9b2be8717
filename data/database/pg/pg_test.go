package pg

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"PPRealtime/data/database"
	chatmodel "PPRealtime/module/chat/model"
	"PPRealtime/tools/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实 PostgreSQL：RT_TEST_DATABASE_URL=postgres://... go test ./data/database/pg
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("RT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("RT_TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), url, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConcurrentCreateDirectSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := "pg-a-"+ids.NewUUID(), "pg-b-"+ids.NewUUID()
	key := chatmodel.DMKey(a, b)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv := &chatmodel.Conversation{ID: ids.NewUUID(), DMKey: key, CreatedAt: time.Now()}
			err := s.CreateConversation(ctx, conv, []string{a, b})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, database.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)

	found, err := s.FindDirect(ctx, key)
	require.NoError(t, err)
	ps, err := s.ListParticipants(ctx, found.ID)
	require.NoError(t, err)
	assert.Len(t, ps, 2)
}

func TestAppendAndListStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := "pg-a-"+ids.NewUUID(), "pg-b-"+ids.NewUUID()
	conv := &chatmodel.Conversation{ID: ids.NewUUID(), DMKey: chatmodel.DMKey(a, b), CreatedAt: time.Now()}
	require.NoError(t, s.CreateConversation(ctx, conv, []string{a, b}))

	msg := &chatmodel.Message{ID: ids.NewUUID(), ConversationID: conv.ID, SenderID: a, Content: "hi", CreatedAt: time.Now()}
	require.NoError(t, s.AppendMessage(ctx, msg))
	assert.NotZero(t, msg.Seq)

	stranger := &chatmodel.Message{ID: ids.NewUUID(), ConversationID: conv.ID, SenderID: "nobody", Content: "x", CreatedAt: time.Now()}
	assert.ErrorIs(t, s.AppendMessage(ctx, stranger), database.ErrNotFound)

	states, err := s.ListConversationStates(ctx, b)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, []string{a}, states[0].OtherUserIDs)
	require.NotNil(t, states[0].Latest)
	assert.Equal(t, msg.ID, states[0].Latest.ID)
	assert.Nil(t, states[0].LastReadAt)
}
