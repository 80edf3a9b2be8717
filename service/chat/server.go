package chat

import (
	"net/http"
	"time"

	"PPRealtime/global/config"
	"PPRealtime/middleware"
	"PPRealtime/service/pubsub"
	"PPRealtime/service/storage"
	"PPRealtime/tools/safe"

	"github.com/gorilla/websocket"
)

type Options struct {
	InstanceID       string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	SendQueueSize    int
	MaxFrameBytes    int64
	AllowedOrigins   []string
	FrameTimeout     time.Duration // 单帧处理（查库、写消息）的上限
}

func OptionsFrom(cfg config.GatewayConfig) Options {
	return Options{
		InstanceID:       cfg.InstanceID,
		HandshakeTimeout: cfg.HandshakeTimeout,
		PingInterval:     cfg.PingInterval,
		WriteWait:        cfg.WriteWait,
		PongWait:         cfg.PongWait,
		SendQueueSize:    cfg.SendQueueSize,
		MaxFrameBytes:    cfg.MaxFrameBytes,
		AllowedOrigins:   cfg.AllowedOrigins,
	}
}

func (o *Options) norm() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = o.PingInterval * 2
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 * 1024
	}
	if o.FrameTimeout <= 0 {
		o.FrameTimeout = 10 * time.Second
	}
}

// Deps 网关依赖的业务组件
type Deps struct {
	Verifier TokenVerifier
	Authz    ChannelAuthorizer
	Hub      *pubsub.Hub
	Messages MessageAppender
	Presence storage.Presence
}

// Server Connection Gateway：握手、帧分发、连接表
type Server struct {
	opts     Options
	deps     Deps
	upgrader websocket.Upgrader
	disp     *Dispatcher
	connMgr  *ConnManager
}

func NewServer(opts Options, deps Deps) *Server {
	opts.norm()
	safe.MustNotNil(deps.Verifier, "verifier")
	safe.MustNotNil(deps.Authz, "authorizer")
	safe.MustNotNil(deps.Hub, "hub")
	safe.MustNotNil(deps.Messages, "message log")
	if deps.Presence == nil {
		deps.Presence = storage.NewLocalPresence()
	}
	s := &Server{
		opts:    opts,
		deps:    deps,
		disp:    NewDispatcher(opts.FrameTimeout),
		connMgr: NewConnManager(opts.InstanceID, opts.SendQueueSize),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(r, opts.AllowedOrigins)
		},
	}
	return s
}

// Register 注册帧处理器
func (s *Server) Register(hs ...Handler) {
	for _, h := range hs {
		s.disp.Register(h)
	}
}

func (s *Server) Verbs() []string            { return s.disp.Verbs() }
func (s *Server) ConnMgr() *ConnManager      { return s.connMgr }
func (s *Server) Verifier() TokenVerifier    { return s.deps.Verifier }
func (s *Server) Authz() ChannelAuthorizer   { return s.deps.Authz }
func (s *Server) Hub() *pubsub.Hub           { return s.deps.Hub }
func (s *Server) Messages() MessageAppender  { return s.deps.Messages }
func (s *Server) Presence() storage.Presence { return s.deps.Presence }
func (s *Server) Options() Options           { return s.opts }

// Close 关闭全部连接
func (s *Server) Close() {
	s.connMgr.Close()
}
