package constant

// Message kinds
const (
	MsgKindText   = 1
	MsgKindImage  = 2
	MsgKindVideo  = 3
	MsgKindSystem = 10
)

// Media kinds for attachments
const (
	MediaKindImage    = "image"
	MediaKindVideo    = "video"
	MediaKindDocument = "document"
)

// Actor roles
const (
	RoleSeller = "seller"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// PlatformIdToName converts platform Id to name
func PlatformIdToName(platformId int) string {
	switch platformId {
	case PlatformIdIOS:
		return "iOS"
	case PlatformIdAndroid:
		return "Android"
	case PlatformIdWindows:
		return "Windows"
	case PlatformIdMacOS:
		return "macOS"
	case PlatformIdWeb:
		return "Web"
	default:
		return "Unknown"
	}
}

// Bus drivers
const (
	BusDriverMemory = "memory"
	BusDriverRedis  = "redis"
	BusDriverNats   = "nats"
)

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyOnline          = "online:%s"        // online:{user_id}
	redisKeySeqConversation = "seq:conv:%s"      // seq:conv:{conversation_id}
	redisKeyUnread          = "unread:%s:%s"     // unread:{conversation_id}:{user_id}
	redisKeyUnreadVersion   = "unread_ver:%s:%s" // unread_ver:{conversation_id}:{user_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "sellerchat:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyOnline() string          { return redisKeyPrefix + redisKeyOnline }
func RedisKeySeqConversation() string { return redisKeyPrefix + redisKeySeqConversation }
func RedisKeyUnread() string          { return redisKeyPrefix + redisKeyUnread }
func RedisKeyUnreadVersion() string   { return redisKeyPrefix + redisKeyUnreadVersion }

// channelPrefix is prepended to every fan-out channel. Dots keep the names
// valid NATS subjects as well as Redis channels.
var channelPrefix = "sellerchat."

// InitChannelPrefix initializes the fan-out channel prefix from config
func InitChannelPrefix(prefix string) {
	if prefix != "" {
		channelPrefix = prefix
	}
}

// ChannelConversation returns the fan-out channel of a conversation
func ChannelConversation(conversationId string) string {
	return channelPrefix + "conv." + conversationId
}
