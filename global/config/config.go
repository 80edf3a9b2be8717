package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"PPRealtime/tools/errs"
	"PPRealtime/tools/security"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"

	NotificationBackendSQL   = "sql"
	NotificationBackendMongo = "mongo"

	BusLocal = "local"
	BusNats  = "nats"
	BusRedis = "redis"
)

type AppConfig struct {
	NodeID        int64               `mapstructure:"node_id"` // 雪花节点号 0~1023；共享 bus 的多实例必须显式配置且互不相同
	HTTP          HTTPConfig          `mapstructure:"http"`
	GRPC          GRPCConfig          `mapstructure:"grpc"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Bus           BusConfig           `mapstructure:"bus"`
	Nats          NatsConfig          `mapstructure:"nats"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Log           LogConfig           `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"` // 为空则不启动健康检查服务
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Alg       string        `mapstructure:"alg"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type GatewayConfig struct {
	InstanceID       string        `mapstructure:"instance_id"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // CONNECT 必须在此时间内到达
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	SendQueueSize    int           `mapstructure:"send_queue_size"`
	MaxFrameBytes    int64         `mapstructure:"max_frame_bytes"`
	PresenceTTL      time.Duration `mapstructure:"presence_ttl"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"` // 为空不限制
	PushWorkers      int           `mapstructure:"push_workers"`    // 通知推送协程池大小，0 表示同步推送
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite | postgres
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type NotificationsConfig struct {
	Backend string `mapstructure:"backend"` // sql | mongo
}

type MongoConfig struct {
	Uri         string   `mapstructure:"uri"`
	Address     []string `mapstructure:"address"`
	Database    string   `mapstructure:"database"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	AuthSource  string   `mapstructure:"auth_source"`
	MaxPoolSize int      `mapstructure:"max_pool_size"`
	MaxRetry    int      `mapstructure:"max_retry"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"addr"` // 为空表示不使用 Redis
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	ProfileTTL time.Duration `mapstructure:"profile_ttl"`
}

type BusConfig struct {
	Driver string `mapstructure:"driver"` // local | nats | redis
}

type NatsConfig struct {
	Servers  []string `mapstructure:"servers"`
	Name     string   `mapstructure:"name"`
	Subject  string   `mapstructure:"subject"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
}

type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	GroupID       string   `mapstructure:"group_id"`
	Topic         string   `mapstructure:"topic"`
	InitialOffset string   `mapstructure:"initial_offset"` // newest/oldest
	EnsureTopic   bool     `mapstructure:"ensure_topic"`   // 启动时不存在就建
	Partitions    int32    `mapstructure:"partitions"`
	Replication   int16    `mapstructure:"replication"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default 默认配置（可直接改）
func Default() AppConfig {
	return AppConfig{
		NodeID: 0,
		HTTP:   HTTPConfig{Addr: ":8080"},
		GRPC:   GRPCConfig{Addr: ":50052"},
		Auth: AuthConfig{
			// 不给默认密钥：未配置时启动失败
			JWTSecret: "",
			Alg:       "HS256",
			TokenTTL:  24 * time.Hour,
		},
		Gateway: GatewayConfig{
			InstanceID:       "", // 为空时 Load 生成
			HandshakeTimeout: 10 * time.Second,
			PingInterval:     25 * time.Second,
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			SendQueueSize:    256,
			MaxFrameBytes:    64 * 1024,
			PresenceTTL:      90 * time.Second,
			PushWorkers:      64,
		},
		Database: DatabaseConfig{
			Driver:   DatabaseSQLite,
			DSN:      "file:realtime.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on",
			MaxConns: 20,
		},
		Notifications: NotificationsConfig{Backend: NotificationBackendSQL},
		Mongo: MongoConfig{
			Uri:         "mongodb://localhost:27017",
			Database:    "realtime",
			MaxPoolSize: 20,
			MaxRetry:    3,
		},
		Redis: RedisConfig{ProfileTTL: 5 * time.Minute},
		Bus:   BusConfig{Driver: BusLocal},
		Nats: NatsConfig{
			Servers: []string{"nats://127.0.0.1:4222"},
			Name:    "realtime-gateway",
			Subject: "realtime.fanout",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"127.0.0.1:9092"},
			GroupID:       "realtime-gateway",
			Topic:         "social.events",
			InitialOffset: "newest",
			Partitions:    8,
			Replication:   1,
		},
		Log: LogConfig{Level: "debug"},
	}
}

// Load 默认值 <- YAML 文件（可选） <- 环境变量
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if cfg.Gateway.InstanceID == "" {
		cfg.Gateway.InstanceID = "gw-" + uuid.NewString()[:8]
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *AppConfig) error {
	m := map[string]any{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return errs.WrapMsg(err, "parse yaml config")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			intToDurationSecondsHook(),
		),
	})
	if err != nil {
		return errs.WrapMsg(err, "new config decoder")
	}
	if err := dec.Decode(m); err != nil {
		return errs.WrapMsg(err, "decode config")
	}
	return nil
}

// intToDurationSecondsHook 允许 yaml 里直接写秒数：handshake_timeout: 10
func intToDurationSecondsHook() mapstructure.DecodeHookFunc {
	durType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durType {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		}
		return data, nil
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("RT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("RT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("RT_DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Database.Driver = DatabasePostgres
		}
	}
	if v := os.Getenv("RT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RT_NATS_URL"); v != "" {
		cfg.Nats.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("RT_GATEWAY_ID"); v != "" {
		cfg.Gateway.InstanceID = v
	}
	if v := os.Getenv("RT_NODE_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.NodeID = n
		}
	}
}

func (c AppConfig) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errs.ErrInvalidRequest.WrapMsg("auth.jwt_secret is required")
	}
	if strings.HasPrefix(c.Auth.Alg, "HS") && len(security.DecodeSecret(c.Auth.JWTSecret)) < minSecretBytes {
		return errs.ErrInvalidRequest.WrapMsg("auth.jwt_secret too short", "min_bytes", minSecretBytes)
	}
	if c.NodeID < 0 || c.NodeID > maxNodeID {
		return errs.ErrInvalidRequest.WrapMsg("node_id out of range", "node_id", c.NodeID)
	}
	if c.Gateway.InstanceID == "" {
		return errs.ErrInvalidRequest.WrapMsg("gateway.instance_id is required")
	}
	switch c.Database.Driver {
	case DatabaseSQLite, DatabasePostgres:
	default:
		return errs.ErrInvalidRequest.WrapMsg("unsupported database.driver", "driver", c.Database.Driver)
	}
	switch c.Notifications.Backend {
	case NotificationBackendSQL, NotificationBackendMongo:
	default:
		return errs.ErrInvalidRequest.WrapMsg("unsupported notifications.backend", "backend", c.Notifications.Backend)
	}
	switch c.Bus.Driver {
	case BusLocal:
	case BusNats, BusRedis:
		// 多实例：在线状态必须共享，否则连在别的实例上的用户会被当成离线；
		// 通知 ID 落在同一张表里，节点号不能都用默认值
		if c.Redis.Addr == "" {
			return errs.ErrInvalidRequest.WrapMsg("bus.driver requires redis.addr for shared presence", "driver", c.Bus.Driver)
		}
		if c.NodeID == 0 {
			return errs.ErrInvalidRequest.WrapMsg("bus.driver requires an explicit node_id", "driver", c.Bus.Driver)
		}
	default:
		return errs.ErrInvalidRequest.WrapMsg("unsupported bus.driver", "driver", c.Bus.Driver)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errs.ErrInvalidRequest.WrapMsg("kafka.enabled requires brokers and topic")
	}
	if c.Gateway.HandshakeTimeout <= 0 {
		return errs.ErrInvalidRequest.WrapMsg("gateway.handshake_timeout must be positive")
	}
	return nil
}

const (
	minSecretBytes = 32
	maxNodeID      = 1023
)

