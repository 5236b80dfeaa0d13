package gateway

import (
	"encoding/json"

	"github.com/mbeoliero/sellerchat/internal/entity"
)

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32           `json:"req_identifier"` // Request type
	MsgIncr       string          `json:"msg_incr"`       // Client message counter/trace Id
	OperationId   string          `json:"operation_id"`   // Operation Id
	SendId        string          `json:"send_id"`        // Sender user Id
	Data          json.RawMessage `json:"data,omitempty"` // Business data
}

// WSResponse represents a WebSocket response message
type WSResponse struct {
	ReqIdentifier int32           `json:"req_identifier"` // Request type (echo back)
	MsgIncr       string          `json:"msg_incr"`       // Message counter (echo back)
	OperationId   string          `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int             `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string          `json:"err_msg"`        // Error message
	Data          json.RawMessage `json:"data,omitempty"` // Response data
}

// ConversationReq carries the conversation a request is about
type ConversationReq struct {
	ConversationId string `json:"conversation_id"`
}

// SubscribeResp confirms a subscription
type SubscribeResp struct {
	ConversationId string `json:"conversation_id"`
}

// PullMsgReq represents pull messages request data
type PullMsgReq struct {
	ConversationId string `json:"conversation_id"`
	Limit          int    `json:"limit"`
	BeforeSeq      int64  `json:"before_seq"`
}

// PeerOnlineResp reports the peer's presence
type PeerOnlineResp struct {
	UserId string `json:"user_id"`
	Online bool   `json:"online"`
}

// PushMsgData represents push message data
type PushMsgData struct {
	Msgs map[string][]*entity.MessageInfo `json:"msgs"` // conversation_id -> messages
}
