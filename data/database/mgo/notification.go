package mgo

import (
	"context"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/module/notification/model"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ database.NotificationStore = (*NotificationStore)(nil)

// notificationDoc BSON 日期只有毫秒精度，created_us 保留微秒用于排序与还原
type notificationDoc struct {
	ID        int64     `bson:"_id"`
	Recipient string    `bson:"recipient"`
	Sender    string    `bson:"sender"`
	Type      string    `bson:"type"`
	PostID    *int64    `bson:"post_id,omitempty"`
	CommentID *int64    `bson:"comment_id,omitempty"`
	Read      bool      `bson:"read"`
	CreatedAt time.Time `bson:"created_at"`
	CreatedUS int64     `bson:"created_us"`
}

type NotificationStore struct {
	coll *mongo.Collection
}

// NewNotificationStore 使用 client 所在库的 notifications 集合并建索引
func NewNotificationStore(ctx context.Context, client *mongoutil.Client) (*NotificationStore, error) {
	coll := client.DB().Collection((&model.Notification{}).GetTableName())
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "recipient", Value: 1}, {Key: "created_us", Value: -1}, {Key: "_id", Value: -1}},
		Options: options.Index().SetName("idx_recipient_time"),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create notifications index")
	}
	return &NotificationStore{coll: coll}, nil
}

func (s *NotificationStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	created := database.Micros(n.CreatedAt)
	_, err := s.coll.InsertOne(ctx, notificationDoc{
		ID:        n.ID,
		Recipient: n.Recipient,
		Sender:    n.Sender,
		Type:      string(n.Type),
		PostID:    n.SubjectPostID,
		CommentID: n.SubjectCommentID,
		Read:      n.Read,
		CreatedAt: created,
		CreatedUS: created.UnixMicro(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pkgerrors.WithMessagef(database.ErrConflict, "insert notification %d", n.ID)
		}
		return pkgerrors.Wrapf(err, "insert notification %d", n.ID)
	}
	return nil
}

func (s *NotificationStore) ListNotifications(ctx context.Context, recipient string, limit int) ([]model.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_us", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{"recipient": recipient}, opts)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "find notifications of %q", recipient)
	}
	defer cur.Close(ctx)

	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, pkgerrors.Wrap(err, "decode notifications")
	}
	out := make([]model.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.Notification{
			ID:               d.ID,
			Recipient:        d.Recipient,
			Sender:           d.Sender,
			Type:             model.Type(d.Type),
			SubjectPostID:    d.PostID,
			SubjectCommentID: d.CommentID,
			Read:             d.Read,
			CreatedAt:        time.UnixMicro(d.CreatedUS).UTC(),
		})
	}
	return out, nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, recipient string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"recipient": recipient, "read": false})
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "count unread of %q", recipient)
	}
	return int(n), nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, id int64, recipient string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "recipient": recipient},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return pkgerrors.Wrapf(err, "mark notification %d read", id)
	}
	if res.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"recipient": recipient, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "mark all read of %q", recipient)
	}
	return int(res.ModifiedCount), nil
}
