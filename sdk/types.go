package sdk

import "encoding/json"

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AttachmentInfo is a stored file reference carried by a message
type AttachmentInfo struct {
	URL       string `json:"url"`
	MediaKind string `json:"media_kind"`
}

// MessageInfo represents message info
type MessageInfo struct {
	Id             string            `json:"id"`
	ConversationId string            `json:"conversation_id"`
	Seq            int64             `json:"seq"`
	ClientMsgId    string            `json:"client_msg_id,omitempty"`
	SenderId       string            `json:"sender_id"`
	Kind           int32             `json:"kind"`
	Content        string            `json:"content,omitempty"`
	Attachments    []*AttachmentInfo `json:"attachments"`
	SendAt         int64             `json:"send_at"`
	IsRead         bool              `json:"is_read"`
}

// ConversationInfo represents conversation info from the caller's side
type ConversationInfo struct {
	ConversationId string       `json:"conversation_id"`
	SubjectItemId  string       `json:"subject_item_id"`
	Title          string       `json:"title"`
	InitiatorId    string       `json:"initiator_id"`
	CounterpartId  string       `json:"counterpart_id"`
	PeerUserId     string       `json:"peer_user_id"`
	IsActive       bool         `json:"is_active"`
	LastMessage    *MessageInfo `json:"last_message"`
	UnreadCount    int64        `json:"unread_count"`
	LastReadAt     *int64       `json:"last_read_at,omitempty"`
	CreatedAt      int64        `json:"created_at"`
	UpdatedAt      int64        `json:"updated_at"`
}

// CreateConversationRequest starts or resumes a conversation about an item
type CreateConversationRequest struct {
	CounterpartId string `json:"counterpart_id"`
	SubjectItemId string `json:"subject_item_id"`
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string            `json:"conversation_id"`
	Content        string            `json:"content,omitempty"`
	Kind           int32             `json:"kind"`
	Attachments    []*AttachmentInfo `json:"attachments,omitempty"`
	ClientMsgId    string            `json:"client_msg_id,omitempty"`
}

// ListMessagesResponse is one page of history, oldest first
type ListMessagesResponse struct {
	Messages      []*MessageInfo `json:"messages"`
	HasMore       bool           `json:"has_more"`
	NextBeforeSeq int64          `json:"next_before_seq"`
}

// UnreadCountResponse reports one conversation's unread count
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// TotalUnreadResponse reports the unread count across conversations
type TotalUnreadResponse struct {
	UnreadTotal int64 `json:"unread_total"`
}

// wsRequest is a frame sent over the realtime connection
type wsRequest struct {
	ReqIdentifier int32           `json:"req_identifier"`
	MsgIncr       string          `json:"msg_incr"`
	OperationId   string          `json:"operation_id"`
	SendId        string          `json:"send_id"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// wsResponse is a frame received over the realtime connection
type wsResponse struct {
	ReqIdentifier int32           `json:"req_identifier"`
	MsgIncr       string          `json:"msg_incr"`
	OperationId   string          `json:"operation_id"`
	ErrCode       int             `json:"err_code"`
	ErrMsg        string          `json:"err_msg"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type conversationReq struct {
	ConversationId string `json:"conversation_id"`
}

// pushMsgData groups pushed messages by conversation id
type pushMsgData struct {
	Msgs map[string][]*MessageInfo `json:"msgs"`
}
