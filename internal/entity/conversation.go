package entity

// Conversation is a durable two-party thread about one catalog item
type Conversation struct {
	Id              string `json:"id" gorm:"column:id;primaryKey;size:32"`
	InitiatorId     string `json:"initiator_id" gorm:"column:initiator_id;size:64"`
	CounterpartId   string `json:"counterpart_id" gorm:"column:counterpart_id;size:64"`
	SubjectItemId   string `json:"subject_item_id" gorm:"column:subject_item_id;size:64;uniqueIndex:uk_participants_item,priority:3"`
	ParticipantLow  string `json:"-" gorm:"column:participant_low;size:64;uniqueIndex:uk_participants_item,priority:1"`
	ParticipantHigh string `json:"-" gorm:"column:participant_high;size:64;uniqueIndex:uk_participants_item,priority:2"`
	Title           string `json:"title" gorm:"column:title;size:255"`
	IsActive        bool   `json:"is_active" gorm:"column:is_active"`
	CreatedAt       int64  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       int64  `json:"updated_at" gorm:"column:updated_at;index"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// HasParticipant reports whether userId is one of the two parties
func (c *Conversation) HasParticipant(userId string) bool {
	return userId != "" && (c.InitiatorId == userId || c.CounterpartId == userId)
}

// PeerOf returns the other party of the conversation
func (c *Conversation) PeerOf(userId string) string {
	if c.InitiatorId == userId {
		return c.CounterpartId
	}
	return c.InitiatorId
}

// ConversationParticipant holds one party's read marker
type ConversationParticipant struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;size:32;uniqueIndex:uk_conv_user,priority:1"`
	UserId         string `json:"user_id" gorm:"column:user_id;size:64;uniqueIndex:uk_conv_user,priority:2;index"`
	LastReadAt     *int64 `json:"last_read_at" gorm:"column:last_read_at"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for ConversationParticipant
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// ConversationInfo represents a conversation annotated for one viewer
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

// ToConversationInfo converts Conversation to ConversationInfo for viewer
func (c *Conversation) ToConversationInfo(viewerId string) *ConversationInfo {
	return &ConversationInfo{
		ConversationId: c.Id,
		SubjectItemId:  c.SubjectItemId,
		Title:          c.Title,
		InitiatorId:    c.InitiatorId,
		CounterpartId:  c.CounterpartId,
		PeerUserId:     c.PeerOf(viewerId),
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
