package handlers

import (
	"context"

	"PPRealtime/logger"
	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// ConnectHandler 校验凭证并把 principal 绑定到连接
type ConnectHandler struct{ s *chat.Server }

func NewConnectHandler(s *chat.Server) chat.Handler { return &ConnectHandler{s: s} }
func (h *ConnectHandler) Verb() string              { return chat.VerbConnect }

func (h *ConnectHandler) Handle(ctx context.Context, c *chat.WsConn, f *chat.Frame) error {
	// 帧里的凭证优先于握手 URL 上的
	token := f.Credential()
	if token == "" {
		token = c.QueryToken
	}
	if token == "" {
		return errs.ErrAuth.WrapMsg("missing credential")
	}
	principal, err := h.s.Verifier().Verify(token)
	if err != nil {
		return err
	}
	if err := h.s.ConnMgr().BindUser(c.SnowID, principal); err != nil {
		return err
	}
	if err := h.s.Presence().Online(ctx, principal, c.SnowID); err != nil {
		logger.Warn("[connect] presence online failed", zap.String("user", principal), zap.Error(err))
	}
	c.Enqueue(chat.BuildConnected(principal))
	logger.Info("[connect] bound", zap.String("snowID", c.SnowID), zap.String("user", principal))
	return nil
}
