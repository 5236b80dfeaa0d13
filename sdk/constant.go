package sdk

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

// WebSocket request identifiers
const (
	wsSubscribe   = 1001
	wsUnsubscribe = 1002
	wsPushMsg     = 2001
)

// WebSocket handshake query keys
const (
	queryToken   = "token"
	querySendId  = "send_id"
	querySDKType = "sdk_type"
	sdkTypeGo    = "go"
)
