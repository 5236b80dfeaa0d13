// Package testkit builds throwaway stores for package tests: an in-memory
// SQLite database behind GORM and a miniredis server.
package testkit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/sellerchat/internal/repository"
)

// Stores bundles the repositories with handles to their backends
type Stores struct {
	Repos *repository.Repositories
	DB    *gorm.DB
	Redis *redis.Client
	Mini  *miniredis.Miniredis
}

// NewDB opens a private in-memory SQLite database with the schema applied
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection serializes writers instead of tripping SQLite's
	// table locks under concurrent tests.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return db
}

// NewRedis starts a miniredis server and a client for it
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// NewStores creates repositories backed by fresh SQLite and miniredis
func NewStores(t testing.TB) *Stores {
	t.Helper()

	db := NewDB(t)
	mr, rdb := NewRedis(t)
	return &Stores{
		Repos: repository.NewRepositoriesWith(db, rdb, time.Minute),
		DB:    db,
		Redis: rdb,
		Mini:  mr,
	}
}
