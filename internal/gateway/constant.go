package gateway

// WebSocket protocol constants
const (
	// Request identifiers
	WSSubscribe     = 1001 // Subscribe to a conversation's live messages
	WSUnsubscribe   = 1002 // Stop a subscription
	WSSendMsg       = 1003 // Send message
	WSGetPeerOnline = 1004 // Whether the conversation peer is connected
	WSPullMsg       = 1005 // Pull one page of history
	WSMarkRead      = 1006 // Mark conversation read

	// Response identifiers
	WSPushMsg   = 2001 // Server push message
	WSDataError = 3001 // Data error
)

// Query parameter keys
const (
	QueryToken   = "token"
	QuerySendId  = "send_id"
	QuerySDKType = "sdk_type"
)

// SDK types
const (
	SDKTypeGo = "go"
	SDKTypeJS = "js"
)
