package repository

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/internal/entity"
)

// Repositories holds all repositories
type Repositories struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Conversation *ConversationRepo
	Participant  *ParticipantRepo
	Message      *MessageRepo
	Seq          *SeqRepo
	Unread       *UnreadCacheRepo
}

// NewRepositories creates all repositories
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	// Initialize MySQL
	db, err := initMySQL(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MySQL.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	// Initialize Redis
	rdb := initRedis(cfg)

	return NewRepositoriesWith(db, rdb, cfg.Redis.UnreadTTL), nil
}

// NewRepositoriesWith wires repositories over existing connections
func NewRepositoriesWith(db *gorm.DB, rdb *redis.Client, unreadTTL time.Duration) *Repositories {
	repos := &Repositories{
		DB:    db,
		Redis: rdb,
	}

	repos.Conversation = NewConversationRepo(db, rdb)
	repos.Participant = NewParticipantRepo(db, rdb)
	repos.Message = NewMessageRepo(db, rdb)
	repos.Seq = NewSeqRepo(db, rdb, repos.Message)
	repos.Unread = NewUnreadCacheRepo(rdb, unreadTTL)

	return repos
}

// AutoMigrate creates or updates the messaging tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Conversation{},
		&entity.ConversationParticipant{},
		&entity.Message{},
		&entity.Attachment{},
	)
}

// initMySQL initializes MySQL connection
func initMySQL(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Close closes all connections
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return r.Redis.Close()
}

// Transaction executes fn in a transaction
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}

// CheckConnection checks if database and redis connections are alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	// Check MySQL
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.CtxError(ctx, "mysql ping failed: %v", err)
		return err
	}

	// Check Redis
	if err := r.Redis.Ping(ctx).Err(); err != nil {
		log.CtxError(ctx, "redis ping failed: %v", err)
		return err
	}

	return nil
}
