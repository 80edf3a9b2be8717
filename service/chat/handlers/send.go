package handlers

import (
	"context"
	"encoding/json"

	"PPRealtime/service/chat"
	"PPRealtime/service/pubsub"
	"PPRealtime/tools/errs"
)

// SendHandler 只允许往会话频道发消息，成功回 RECEIPT
type SendHandler struct{ s *chat.Server }

func NewSendHandler(s *chat.Server) chat.Handler { return &SendHandler{s: s} }
func (h *SendHandler) Verb() string              { return chat.VerbSend }

func (h *SendHandler) Handle(ctx context.Context, c *chat.WsConn, f *chat.Frame) error {
	principal := c.Principal()
	d := h.s.Authz().AuthorizeSend(ctx, principal, f.Channel)
	if !d.Allow {
		return errs.ErrAuthorizationDenied.WrapMsg(d.Reason)
	}
	ch, _ := pubsub.ParseChannel(f.Channel)

	p, err := chat.DecodeSendPayload(f.Payload)
	if err != nil {
		return err
	}
	msg, err := h.s.Messages().Append(ctx, ch.ID, principal, p.Content, p.AttachmentURL)
	if err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errs.WrapMsg(err, "marshal receipt")
	}
	c.Enqueue(chat.BuildReceipt(f.Ref, b))
	return nil
}
