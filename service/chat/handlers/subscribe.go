package handlers

import (
	"context"
	"strings"

	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"
)

type SubscribeHandler struct{ s *chat.Server }

func NewSubscribeHandler(s *chat.Server) chat.Handler { return &SubscribeHandler{s: s} }
func (h *SubscribeHandler) Verb() string              { return chat.VerbSubscribe }

func (h *SubscribeHandler) Handle(ctx context.Context, c *chat.WsConn, f *chat.Frame) error {
	channel := strings.TrimSpace(f.Channel)
	if channel == "" {
		return errs.ErrInvalidRequest.WrapMsg("channel is required")
	}
	d := h.s.Authz().Authorize(ctx, c.Principal(), channel)
	if !d.Allow {
		return errs.ErrAuthorizationDenied.WrapMsg(d.Reason)
	}

	id, replaced := c.AddSub(strings.TrimSpace(f.ID), channel)
	if replaced != "" && !c.HasChannel(replaced) {
		h.s.Hub().Unsubscribe(replaced, c.SnowID)
	}
	h.s.Hub().Subscribe(channel, c)
	c.Enqueue(chat.BuildSubscribed(channel, id, f.Ref))
	return nil
}

type UnsubscribeHandler struct{ s *chat.Server }

func NewUnsubscribeHandler(s *chat.Server) chat.Handler { return &UnsubscribeHandler{s: s} }
func (h *UnsubscribeHandler) Verb() string              { return chat.VerbUnsubscribe }

// Handle 按订阅号或频道退订
func (h *UnsubscribeHandler) Handle(_ context.Context, c *chat.WsConn, f *chat.Frame) error {
	id, channel, still := c.RemoveSub(strings.TrimSpace(f.ID), strings.TrimSpace(f.Channel))
	if channel == "" {
		return errs.ErrNotFound.WrapMsg("subscription")
	}
	if !still {
		h.s.Hub().Unsubscribe(channel, c.SnowID)
	}
	c.Enqueue(chat.BuildUnsubscribed(channel, id, f.Ref))
	return nil
}
