package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/data/database/mgo"
	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/data/database/pg"
	"PPRealtime/data/database/sqlite"
	"PPRealtime/global/config"
	"PPRealtime/logger"
	"PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	chatapi "PPRealtime/module/chat"
	chatsvc "PPRealtime/module/chat/service"
	notifyapi "PPRealtime/module/notification"
	notifysvc "PPRealtime/module/notification/service"
	"PPRealtime/module/user"
	"PPRealtime/service/authz"
	"PPRealtime/service/chat"
	"PPRealtime/service/chat/handlers"
	"PPRealtime/service/kafka"
	"PPRealtime/service/metrics"
	"PPRealtime/service/natsx"
	"PPRealtime/service/pubsub"
	"PPRealtime/service/storage"
	rdbx "PPRealtime/service/storage/redis"
	"PPRealtime/tools/ids"
	"PPRealtime/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthService = "realtime.Gateway"

// sqlStore sqlite / postgres 都实现
type sqlStore interface {
	database.ChatStore
	database.NotificationStore
	database.ProfileStore
	Close() error
}

func main() {
	cfgPath := flag.String("config", os.Getenv("RT_CONFIG"), "yaml config file")
	issue := flag.String("issue-token", "", "print a bearer token for the given user id and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logger.Sync()

	if *issue != "" {
		if err := issueToken(cfg, *issue); err != nil {
			logger.Error("issue token", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("realtime gateway exited", zap.Error(err))
		os.Exit(1)
	}
}

func newVerifier(cfg config.AppConfig) (*security.Verifier, error) {
	opts := security.DefaultOptions(security.DecodeSecret(cfg.Auth.JWTSecret))
	if cfg.Auth.Alg != "" {
		opts.Alg = cfg.Auth.Alg
	}
	if cfg.Auth.TokenTTL > 0 {
		opts.TTL = cfg.Auth.TokenTTL
	}
	return security.NewVerifier(opts)
}

func issueToken(cfg config.AppConfig, userID string) error {
	v, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	token, exp, err := v.Generate(userID)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n# expires %s\n", token, exp.Format(time.RFC3339))
	return nil
}

func openStore(ctx context.Context, c config.DatabaseConfig) (sqlStore, error) {
	switch c.Driver {
	case config.DatabasePostgres:
		return pg.Open(ctx, c.DSN, c.MaxConns)
	default:
		return sqlite.Open(c.DSN)
	}
}

func run(ctx context.Context, cfg config.AppConfig) error {
	ids.SetNodeID(cfg.NodeID)

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store opened", zap.String("driver", cfg.Database.Driver))

	var notifications database.NotificationStore = store
	if cfg.Notifications.Backend == config.NotificationBackendMongo {
		mc, err := mongoutil.Connect(ctx, mongoutil.Config{
			Uri:         cfg.Mongo.Uri,
			Address:     cfg.Mongo.Address,
			Database:    cfg.Mongo.Database,
			Username:    cfg.Mongo.Username,
			Password:    cfg.Mongo.Password,
			AuthSource:  cfg.Mongo.AuthSource,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
			MaxRetry:    cfg.Mongo.MaxRetry,
		})
		if err != nil {
			return err
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mc.Close(cctx)
		}()
		if notifications, err = mgo.NewNotificationStore(ctx, mc); err != nil {
			return err
		}
		logger.Info("notifications stored in mongo", zap.String("db", cfg.Mongo.Database))
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		if rdb, err = rdbx.NewClient(ctx, rdbx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}); err != nil {
			return err
		}
		defer rdb.Close()
	}

	instanceID := cfg.Gateway.InstanceID
	var presence storage.Presence = storage.NewLocalPresence()
	if rdb != nil {
		presence = storage.NewRedisPresence(rdb, instanceID, cfg.Gateway.PresenceTTL)
	}

	hub := pubsub.NewHub()
	bus, err := newBus(cfg, hub, rdb)
	if err != nil {
		return err
	}
	defer bus.Close()

	var profiles user.ProfileProvider = user.NewStoreProvider(store)
	if rdb != nil {
		profiles = user.NewCachedProvider(rdb, profiles, cfg.Redis.ProfileTTL)
	}

	dir := chatsvc.NewDirectory(store, profiles)
	msgLog := chatsvc.NewMessageLog(store, dir, bus)
	unread := chatsvc.NewUnreadTracker(store)
	fanout, err := notifysvc.NewFanout(notifications, presence, bus, profiles, cfg.Gateway.PushWorkers)
	if err != nil {
		return err
	}
	defer fanout.Close()

	gw := chat.NewServer(chat.OptionsFrom(cfg.Gateway), chat.Deps{
		Verifier: verifier,
		Authz:    authz.NewAuthorizer(dir),
		Hub:      hub,
		Messages: msgLog,
		Presence: presence,
	})
	handlers.RegisterAll(gw)
	logger.Info("frame handlers registered", zap.Strings("verbs", gw.Verbs()))
	defer gw.Close()

	engine := newEngine(cfg, verifier, gw, dir, msgLog, unread, fanout, profiles)
	httpSrv := &http.Server{Addr: cfg.HTTP.Addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return bus.Start(gctx) })

	g.Go(func() error {
		logger.Info("[HTTP] listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		gs := grpc.NewServer()
		hs := health.NewServer()
		healthpb.RegisterHealthServer(gs, hs)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

		g.Go(func() error {
			logger.Info("[gRPC] health listening", zap.String("addr", cfg.GRPC.Addr))
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.Shutdown()
			gs.GracefulStop()
			return nil
		})
	}

	if cfg.Kafka.Enabled {
		router := kafka.NewRouter()
		router.RegisterHandler(cfg.Kafka.Topic, kafka.NewEventHandler(fanout, bus, profiles).Handle)
		consumer, err := kafka.NewConsumer(kafka.ConfigFrom(cfg.Kafka), router)
		if err != nil {
			return err
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(gctx) })
	}

	logger.Info("realtime gateway started", zap.String("instance", instanceID), zap.String("bus", cfg.Bus.Driver))
	return g.Wait()
}

func newBus(cfg config.AppConfig, hub *pubsub.Hub, rdb *redis.Client) (pubsub.Bus, error) {
	switch cfg.Bus.Driver {
	case config.BusNats:
		return pubsub.NewNatsBus(hub, natsx.Config{
			Servers:  cfg.Nats.Servers,
			Name:     cfg.Nats.Name,
			User:     cfg.Nats.User,
			Password: cfg.Nats.Password,
			Retries:  2,
		}, cfg.Nats.Subject, cfg.Gateway.InstanceID)
	case config.BusRedis:
		return pubsub.NewRedisBus(hub, rdb, cfg.Gateway.InstanceID), nil
	default:
		return pubsub.NewLocalBus(hub), nil
	}
}

func newEngine(cfg config.AppConfig, verifier *security.Verifier, gw *chat.Server,
	dir *chatsvc.Directory, msgLog *chatsvc.MessageLog, unread *chatsvc.UnreadTracker,
	fanout *notifysvc.Fanout, profiles user.ProfileProvider) *gin.Engine {
	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.NewChain().
		Set("access_log", middleware.AccessLog()).
		Set("origin", middleware.Origin(cfg.Gateway.AllowedOrigins)).
		Handler())

	r.GET("/ws", gw.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": gw.ConnMgr().Count()})
	})
	r.GET("/metrics", metrics.Handler())

	rt := middleware.NewRoutes(r, midsec.Middleware(verifier, midsec.DefaultOptions()))
	rt.GET("/api/users/me", user.NewHandler(profiles).Me, middleware.RouteOpt{IsAuth: true})
	chatapi.NewHandler(dir, msgLog, unread).Register(rt)
	notifyapi.NewHandler(fanout).Register(rt)
	return r
}
