package handlers

import "PPRealtime/service/chat"

// RegisterAll 挂上全部帧处理器
func RegisterAll(s *chat.Server) {
	s.Register(
		NewConnectHandler(s),
		NewSubscribeHandler(s),
		NewUnsubscribeHandler(s),
		NewSendHandler(s),
		NewPingHandler(s),
	)
}
