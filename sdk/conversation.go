package sdk

import "context"

// CreateConversation starts a conversation with counterpartId about an item,
// or returns the one that already exists
func (c *Client) CreateConversation(ctx context.Context, counterpartId, subjectItemId string) (*ConversationInfo, error) {
	req := &CreateConversationRequest{
		CounterpartId: counterpartId,
		SubjectItemId: subjectItemId,
	}
	var result ConversationInfo
	if err := c.post(ctx, "/conversation/create", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConversationList gets all conversations for the current user
func (c *Client) GetConversationList(ctx context.Context) ([]*ConversationInfo, error) {
	var result []*ConversationInfo
	if err := c.get(ctx, "/conversation/list", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetConversation gets a specific conversation
func (c *Client) GetConversation(ctx context.Context, conversationId string) (*ConversationInfo, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result ConversationInfo
	if err := c.get(ctx, "/conversation/info", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead marks the conversation read up to now
func (c *Client) MarkRead(ctx context.Context, conversationId string) error {
	return c.post(ctx, "/conversation/mark_read", &conversationReq{ConversationId: conversationId}, nil)
}

// DeactivateConversation closes the conversation for both participants
func (c *Client) DeactivateConversation(ctx context.Context, conversationId string) error {
	return c.post(ctx, "/conversation/deactivate", &conversationReq{ConversationId: conversationId}, nil)
}

// GetUnreadCount gets the caller's unread count in one conversation
func (c *Client) GetUnreadCount(ctx context.Context, conversationId string) (int64, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result UnreadCountResponse
	if err := c.get(ctx, "/conversation/unread_count", params, &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

// GetTotalUnread gets the caller's unread count across all conversations
func (c *Client) GetTotalUnread(ctx context.Context) (int64, error) {
	var result TotalUnreadResponse
	if err := c.get(ctx, "/conversation/unread_total", nil, &result); err != nil {
		return 0, err
	}
	return result.UnreadTotal, nil
}
