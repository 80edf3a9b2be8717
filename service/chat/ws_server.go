package chat

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"PPRealtime/logger"
	"PPRealtime/service/metrics"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HandleWS GET /ws
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 websocket 请求/握手失败，upgrader 已经写过响应
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}
	rec := s.connMgr.AddUnauth(ws)
	rec.QueryToken = strings.TrimSpace(c.Query("access_token"))

	done := make(chan struct{})
	safe.SafeGo(func() { s.writeLoop(rec, done) })

	s.readLoop(rec)
	s.release(rec)
	<-done
}

// readLoop 只读不写；第一帧必须是 CONNECT
func (s *Server) readLoop(rec *WsConn) {
	ws := rec.Conn
	ws.SetReadLimit(s.opts.MaxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			s.onReadError(rec, rerr)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.connMgr.Heartbeat(rec.SnowID)

		f, perr := ParseFrameJSON(data)
		if rec.Principal() == "" {
			if !s.handshake(rec, f, perr) {
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
			ws.SetPongHandler(func(string) error {
				s.connMgr.Heartbeat(rec.SnowID)
				return ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
			})
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		if perr != nil {
			s.sendError(rec, perr, "")
			continue
		}
		metrics.FramesIn.WithLabelValues(verbLabel(f.Type)).Inc()
		if f.Type == VerbConnect {
			s.sendError(rec, errs.ErrInvalidRequest.WrapMsg("already connected"), f.Ref)
			continue
		}

		if err := s.disp.Dispatch(rec, f); err != nil {
			// 鉴权/校验失败只影响这一帧，连接保持
			s.sendError(rec, err, f.Ref)
		}
	}
}

// handshake 处理第一帧；失败时回 ERROR(AuthError) 并返回 false，由调用方关闭连接
func (s *Server) handshake(rec *WsConn, f *Frame, perr error) bool {
	var err error
	ref := ""
	switch {
	case perr != nil:
		err = errs.ErrAuth.WrapMsg("CONNECT expected")
	case f.Type != VerbConnect:
		ref = f.Ref
		err = errs.ErrAuth.WrapMsg("CONNECT expected", "got", f.Type)
	default:
		ref = f.Ref
		metrics.FramesIn.WithLabelValues(VerbConnect).Inc()
		err = s.disp.Dispatch(rec, f)
	}
	if err == nil {
		return true
	}
	if errs.AsCode(err).Code != errs.AuthError {
		logger.Warn("[WS] connect failed", zap.String("snowID", rec.SnowID), zap.Error(err))
		err = errs.ErrAuth.WrapMsg("connect failed")
	}
	s.sendError(rec, err, ref)
	rec.setCloseCode(websocket.ClosePolicyViolation)
	return false
}

func (s *Server) onReadError(rec *WsConn, rerr error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Debug("[WS] peer closed", zap.String("snowID", rec.SnowID), zap.String("user", rec.Principal()))
	case errors.As(rerr, &ne) && ne.Timeout():
		if rec.Principal() == "" {
			s.sendError(rec, errs.ErrAuth.WrapMsg("handshake timeout"), "")
			rec.setCloseCode(websocket.ClosePolicyViolation)
		}
		logger.Info("[WS] read timeout", zap.String("snowID", rec.SnowID), zap.String("user", rec.Principal()))
	default:
		logger.Info("[WS] read err", zap.String("snowID", rec.SnowID), zap.Error(rerr))
	}
}

func (s *Server) sendError(rec *WsConn, err error, ref string) {
	f := BuildError(err, ref)
	metrics.FrameErrors.WithLabelValues(errCodeLabel(f.Code)).Inc()
	if !rec.Enqueue(f) {
		logger.Debug("[WS] send queue full, drop ERROR", zap.String("snowID", rec.SnowID))
	}
}

// writeLoop 唯一的写协程：业务帧 + 定时 ping；队列关闭后发 Close 帧并断开
func (s *Server) writeLoop(rec *WsConn, done chan struct{}) {
	ws := rec.Conn
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		code := rec.getCloseCode()
		if code == 0 {
			code = websocket.CloseNormalClosure
		}
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(s.opts.WriteWait))
		_ = ws.Close()
		close(done)
	}()

	for {
		select {
		case payload, ok := <-rec.send:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Info("[WS] write err", zap.String("snowID", rec.SnowID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.opts.WriteWait)); err != nil {
				logger.Info("[WS] ping err", zap.String("snowID", rec.SnowID), zap.Error(err))
				return
			}
			if user := rec.Principal(); user != "" {
				ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteWait)
				if err := s.deps.Presence.Refresh(ctx, user, rec.SnowID); err != nil {
					logger.Warn("[WS] presence refresh failed", zap.String("user", user), zap.Error(err))
				}
				cancel()
			}
		}
	}
}

// release 连接结束：退订、下线、移出连接表
func (s *Server) release(rec *WsConn) {
	if s.deps.Hub != nil {
		s.deps.Hub.UnsubscribeAll(rec.SnowID)
	}
	if user := rec.Principal(); user != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.deps.Presence.Offline(ctx, user, rec.SnowID); err != nil {
			logger.Warn("[WS] presence offline failed", zap.String("user", user), zap.Error(err))
		}
		cancel()
	}
	s.connMgr.RemoveBySnow(rec.SnowID)
	logger.Debug("[WS] closed", zap.String("snowID", rec.SnowID), zap.String("user", rec.Principal()))
}

func verbLabel(v string) string {
	switch v {
	case VerbConnect, VerbSubscribe, VerbUnsubscribe, VerbSend, VerbPing:
		return v
	}
	return "UNKNOWN"
}

func errCodeLabel(code int) string {
	return strconv.Itoa(code)
}
