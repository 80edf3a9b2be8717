package mgo

import (
	"context"
	"os"
	"testing"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/module/notification/model"
	"PPRealtime/tools/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实 MongoDB：RT_TEST_MONGO_URI=mongodb://localhost:27017
func newTestStore(t *testing.T) *NotificationStore {
	t.Helper()
	uri := os.Getenv("RT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("RT_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	cli, err := mongoutil.Connect(ctx, mongoutil.Config{Uri: uri, Database: "rt_test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close(context.Background()) })

	s, err := NewNotificationStore(ctx, cli)
	require.NoError(t, err)
	return s
}

func TestNotificationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	recipient := "mongo-" + ids.NewUUID()
	created := time.Now().Add(-time.Minute)

	first := &model.Notification{ID: ids.Generate(), Recipient: recipient, Sender: "alice", Type: model.TypeLike, CreatedAt: created}
	second := &model.Notification{ID: ids.Generate(), Recipient: recipient, Sender: "bob", Type: model.TypeComment, CreatedAt: created.Add(time.Second)}
	require.NoError(t, s.InsertNotification(ctx, first))
	require.NoError(t, s.InsertNotification(ctx, second))
	assert.ErrorIs(t, s.InsertNotification(ctx, first), database.ErrConflict)

	list, err := s.ListNotifications(ctx, recipient, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.True(t, list[1].CreatedAt.Equal(database.Micros(created)))

	assert.ErrorIs(t, s.MarkRead(ctx, first.ID, "someone-else"), database.ErrNotFound)
	require.NoError(t, s.MarkRead(ctx, first.ID, recipient))
	require.NoError(t, s.MarkRead(ctx, first.ID, recipient))

	n, err := s.CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	changed, err := s.MarkAllRead(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
}
