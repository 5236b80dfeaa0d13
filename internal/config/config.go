package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	ExternalJWT ExternalJWTConfig `mapstructure:"external_jwt"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Bus         BusConfig         `mapstructure:"bus"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Messaging   MessagingConfig   `mapstructure:"messaging"`
	Auth        AuthConfig        `mapstructure:"auth"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MachineId      uint16   `mapstructure:"machine_id"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN returns the MySQL data source name
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	UnreadTTL time.Duration `mapstructure:"unread_ttl"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// ExternalJWTConfig describes tokens minted by the dashboard's identity
// provider. When enabled they are accepted alongside internal tokens.
type ExternalJWTConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Secret            string `mapstructure:"secret"`
	DefaultRole       string `mapstructure:"default_role"`
	DefaultPlatformId int    `mapstructure:"default_platform_id"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// BusConfig selects and tunes the real-time fan-out driver
type BusConfig struct {
	Driver           string `mapstructure:"driver"`
	NatsURL          string `mapstructure:"nats_url"`
	ChannelPrefix    string `mapstructure:"channel_prefix"`
	PublishWorkers   int    `mapstructure:"publish_workers"`
	PublishQueueSize int    `mapstructure:"publish_queue_size"`
	SubscriberBuffer int    `mapstructure:"subscriber_buffer"`
}

// CatalogConfig points at the product catalog used to title conversations.
// With an empty BaseURL the static name table is used instead.
type CatalogConfig struct {
	BaseURL     string            `mapstructure:"base_url"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	StaticNames map[string]string `mapstructure:"static_names"`
}

// MessagingConfig bounds message payloads and history pages
type MessagingConfig struct {
	DefaultPageSize  int `mapstructure:"default_page_size"`
	MaxPageSize      int `mapstructure:"max_page_size"`
	MaxContentLength int `mapstructure:"max_content_length"`
	MaxAttachments   int `mapstructure:"max_attachments"`
}

// AuthConfig lists the roles allowed to use the messaging routes
type AuthConfig struct {
	AllowedRoles []string `mapstructure:"allowed_roles"`
}

// Global config instance
var GlobalConfig *Config

// Load loads configuration from file. SELLERCHAT_* environment variables
// override file values (SELLERCHAT_MYSQL_HOST -> mysql.host).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SELLERCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	GlobalConfig = &cfg
	return &cfg, nil
}

// SetDefaults fills zero values with the built-in defaults
func (cfg *Config) SetDefaults() {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.MachineId == 0 {
		cfg.Server.MachineId = 1
	}
	if cfg.MySQL.Charset == "" {
		cfg.MySQL.Charset = "utf8mb4"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "sellerchat:"
	}
	if cfg.Redis.UnreadTTL == 0 {
		cfg.Redis.UnreadTTL = 10 * time.Minute
	}
	if cfg.JWT.ExpireHours == 0 {
		cfg.JWT.ExpireHours = 168 // 7 days
	}
	if cfg.ExternalJWT.DefaultRole == "" {
		cfg.ExternalJWT.DefaultRole = "buyer"
	}
	if cfg.WebSocket.MaxConnNum == 0 {
		cfg.WebSocket.MaxConnNum = 10000
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = 27 * time.Second
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.Bus.Driver == "" {
		cfg.Bus.Driver = "memory"
	}
	if cfg.Bus.NatsURL == "" {
		cfg.Bus.NatsURL = "nats://127.0.0.1:4222"
	}
	if cfg.Bus.PublishWorkers == 0 {
		cfg.Bus.PublishWorkers = 8
	}
	if cfg.Bus.PublishQueueSize == 0 {
		cfg.Bus.PublishQueueSize = 1024
	}
	if cfg.Bus.SubscriberBuffer == 0 {
		cfg.Bus.SubscriberBuffer = 64
	}
	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = 3 * time.Second
	}
	if cfg.Messaging.DefaultPageSize == 0 {
		cfg.Messaging.DefaultPageSize = 50
	}
	if cfg.Messaging.MaxPageSize == 0 {
		cfg.Messaging.MaxPageSize = 200
	}
	if cfg.Messaging.MaxContentLength == 0 {
		cfg.Messaging.MaxContentLength = 4000
	}
	if cfg.Messaging.MaxAttachments == 0 {
		cfg.Messaging.MaxAttachments = 10
	}
	if len(cfg.Auth.AllowedRoles) == 0 {
		cfg.Auth.AllowedRoles = []string{"seller", "buyer"}
	}
}
