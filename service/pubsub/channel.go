package pubsub

import "strings"

// 频道种类
const (
	KindConversation  = "conversation"
	KindNotifications = "notifications"
	KindPost          = "post"
)

// post 频道的子主题
const (
	PostComments = "comments"
	PostLikes    = "likes"
)

func ConversationChannel(conversationID string) string {
	return KindConversation + ":" + conversationID
}

func NotificationChannel(user string) string {
	return KindNotifications + ":" + user
}

func PostChannel(postID, topic string) string {
	return KindPost + ":" + postID + ":" + topic
}

// Channel 解析后的频道名
type Channel struct {
	Kind  string
	ID    string
	Topic string // 仅 post 频道
}

// ParseChannel 只认识三种格式，其他返回 false
//
//	conversation:{id}
//	notifications:{user}
//	post:{postId}:comments | post:{postId}:likes
func ParseChannel(name string) (Channel, bool) {
	kind, rest, ok := strings.Cut(name, ":")
	if !ok || rest == "" {
		return Channel{}, false
	}
	switch kind {
	case KindConversation, KindNotifications:
		return Channel{Kind: kind, ID: rest}, true
	case KindPost:
		id, topic, ok := strings.Cut(rest, ":")
		if !ok || id == "" || (topic != PostComments && topic != PostLikes) {
			return Channel{}, false
		}
		return Channel{Kind: kind, ID: id, Topic: topic}, true
	}
	return Channel{}, false
}

// IsPublicPost 公开的帖子评论/点赞频道
func IsPublicPost(name string) bool {
	ch, ok := ParseChannel(name)
	return ok && ch.Kind == KindPost
}
