package handlers

import (
	"context"

	"PPRealtime/logger"
	"PPRealtime/service/chat"

	"go.uber.org/zap"
)

// PingHandler 应用层心跳，顺带续期在线状态
type PingHandler struct{ s *chat.Server }

func NewPingHandler(s *chat.Server) chat.Handler { return &PingHandler{s: s} }
func (h *PingHandler) Verb() string              { return chat.VerbPing }

func (h *PingHandler) Handle(ctx context.Context, c *chat.WsConn, f *chat.Frame) error {
	if err := h.s.Presence().Refresh(ctx, c.Principal(), c.SnowID); err != nil {
		logger.Warn("[ping] presence refresh failed", zap.String("user", c.Principal()), zap.Error(err))
	}
	c.Enqueue(chat.BuildPong(f.Ref))
	return nil
}
