package entity

import "github.com/mbeoliero/sellerchat/pkg/constant"

// Message represents a message. Rows are immutable once written.
type Message struct {
	Id             string        `json:"id" gorm:"column:id;primaryKey;size:32"`
	ConversationId string        `json:"conversation_id" gorm:"column:conversation_id;size:32;uniqueIndex:uk_conv_seq,priority:1"`
	Seq            int64         `json:"seq" gorm:"column:seq;uniqueIndex:uk_conv_seq,priority:2"`
	ClientMsgId    *string       `json:"client_msg_id" gorm:"column:client_msg_id;size:64"`
	SenderId       string        `json:"sender_id" gorm:"column:sender_id;size:64"`
	Content        *string       `json:"content" gorm:"column:content;type:text"`
	Kind           int32         `json:"kind" gorm:"column:kind"`
	SendAt         int64         `json:"send_at" gorm:"column:send_at"`
	CreatedAt      int64         `json:"created_at" gorm:"column:created_at"`
	Attachments    []*Attachment `json:"attachments" gorm:"foreignKey:MessageId;references:Id"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// Attachment is a media reference owned by exactly one message
type Attachment struct {
	Id        string `json:"id" gorm:"column:id;primaryKey;size:32"`
	MessageId string `json:"message_id" gorm:"column:message_id;size:32;index"`
	URL       string `json:"url" gorm:"column:url;size:1024"`
	MediaKind string `json:"media_kind" gorm:"column:media_kind;size:16"`
	Position  int    `json:"position" gorm:"column:position"`
}

// TableName returns the table name for Attachment
func (Attachment) TableName() string {
	return "message_attachments"
}

// IsValidMediaKind checks the closed set of attachment media kinds
func IsValidMediaKind(kind string) bool {
	switch kind {
	case constant.MediaKindImage, constant.MediaKindVideo, constant.MediaKindDocument:
		return true
	}
	return false
}

// IsValidKind checks the closed set of message kinds
func IsValidKind(kind int32) bool {
	switch kind {
	case constant.MsgKindText, constant.MsgKindImage, constant.MsgKindVideo, constant.MsgKindSystem:
		return true
	}
	return false
}

// InferKind picks a kind for a message that did not declare one: text when
// there is content, otherwise the media of the first attachment.
func InferKind(content string, attachments []AttachmentInfo) int32 {
	if content != "" || len(attachments) == 0 {
		return constant.MsgKindText
	}
	switch attachments[0].MediaKind {
	case constant.MediaKindImage:
		return constant.MsgKindImage
	case constant.MediaKindVideo:
		return constant.MsgKindVideo
	}
	return constant.MsgKindText
}

// AttachmentInfo represents attachment info for API payloads
type AttachmentInfo struct {
	URL       string `json:"url"`
	MediaKind string `json:"media_kind"`
}

// MessageInfo represents message info for API response and push payloads
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

// ToMessageInfo converts Message to MessageInfo. The read flag is computed
// for the viewer: own messages are read, peer messages are read once the
// viewer's marker has reached their send time.
func (m *Message) ToMessageInfo(viewerId string, viewerLastReadAt *int64) *MessageInfo {
	info := &MessageInfo{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		Seq:            m.Seq,
		SenderId:       m.SenderId,
		Kind:           m.Kind,
		SendAt:         m.SendAt,
		Attachments:    make([]*AttachmentInfo, 0, len(m.Attachments)),
	}
	if m.ClientMsgId != nil {
		info.ClientMsgId = *m.ClientMsgId
	}
	if m.Content != nil {
		info.Content = *m.Content
	}
	for _, a := range m.Attachments {
		info.Attachments = append(info.Attachments, &AttachmentInfo{URL: a.URL, MediaKind: a.MediaKind})
	}
	info.IsRead = IsReadBy(m, viewerId, viewerLastReadAt)
	return info
}

// IsReadBy reports whether viewer has read m given their marker
func IsReadBy(m *Message, viewerId string, lastReadAt *int64) bool {
	if m.SenderId == viewerId {
		return true
	}
	return lastReadAt != nil && m.SendAt <= *lastReadAt
}
