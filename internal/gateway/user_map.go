package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/sellerchat/pkg/constant"
)

// onlineTTL bounds how long a crashed instance can report its users online
const onlineTTL = 60 * time.Second

// UserMap tracks local connections per user and mirrors presence to Redis
// so other instances can answer presence queries
type UserMap struct {
	mu    sync.RWMutex
	users map[string]map[string]*Client // userId -> connId -> client
	rdb   *redis.Client
}

// NewUserMap creates a new UserMap
func NewUserMap(rdb *redis.Client) *UserMap {
	return &UserMap{
		users: make(map[string]map[string]*Client),
		rdb:   rdb,
	}
}

func onlineKey(userId string) string {
	return fmt.Sprintf(constant.RedisKeyOnline(), userId)
}

// Register registers a client
func (m *UserMap) Register(ctx context.Context, client *Client) {
	m.mu.Lock()
	conns, ok := m.users[client.UserId]
	if !ok {
		conns = make(map[string]*Client, 2)
		m.users[client.UserId] = conns
	}
	conns[client.ConnId] = client
	m.mu.Unlock()

	m.setOnline(ctx, client.UserId)
}

// Unregister removes a client and reports whether it was the user's last
// connection on this instance
func (m *UserMap) Unregister(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	conns, ok := m.users[client.UserId]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(conns, client.ConnId)
	offline := len(conns) == 0
	if offline {
		delete(m.users, client.UserId)
	}
	m.mu.Unlock()

	if offline {
		m.setOffline(ctx, client.UserId)
	}
	return offline
}

// GetAll gets all clients for a user
func (m *UserMap) GetAll(userId string) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns, ok := m.users[userId]
	if !ok {
		return nil, false
	}
	clients := make([]*Client, 0, len(conns))
	for _, c := range conns {
		clients = append(clients, c)
	}
	return clients, true
}

// HasConnection checks if user has any local connection
func (m *UserMap) HasConnection(userId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users[userId]) > 0
}

// IsOnline checks local connections first, then the shared presence key
func (m *UserMap) IsOnline(ctx context.Context, userId string) bool {
	if m.HasConnection(userId) {
		return true
	}
	if m.rdb == nil {
		return false
	}

	n, err := m.rdb.Exists(ctx, onlineKey(userId)).Result()
	if err != nil {
		log.CtxWarn(ctx, "check online failed: user_id=%s, error=%v", userId, err)
		return false
	}
	return n > 0
}

func (m *UserMap) setOnline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	if err := m.rdb.Set(ctx, onlineKey(userId), "1", onlineTTL).Err(); err != nil {
		log.CtxWarn(ctx, "set online failed: user_id=%s, error=%v", userId, err)
	}
}

func (m *UserMap) setOffline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	if err := m.rdb.Del(ctx, onlineKey(userId)).Err(); err != nil {
		log.CtxWarn(ctx, "set offline failed: user_id=%s, error=%v", userId, err)
	}
}

// RefreshOnlineStatus extends the presence key of a locally connected user
func (m *UserMap) RefreshOnlineStatus(ctx context.Context, userId string) {
	if m.rdb == nil || !m.HasConnection(userId) {
		return
	}
	if err := m.rdb.Expire(ctx, onlineKey(userId), onlineTTL).Err(); err != nil {
		log.CtxWarn(ctx, "refresh online failed: user_id=%s, error=%v", userId, err)
	}
}

// GetAllOnlineUserIds returns all locally connected user Ids
func (m *UserMap) GetAllOnlineUserIds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userIds := make([]string, 0, len(m.users))
	for userId := range m.users {
		userIds = append(userIds, userId)
	}
	return userIds
}
