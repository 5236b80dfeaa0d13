package sdk

import (
	"context"
	"strconv"
)

// SendMessage sends a message to a conversation
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
	var result MessageInfo
	if err := c.post(ctx, "/msg/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendTextMessage is a convenience method to send a text message
func (c *Client) SendTextMessage(ctx context.Context, clientMsgId, conversationId, text string) (*MessageInfo, error) {
	return c.SendMessage(ctx, &SendMessageRequest{
		ConversationId: conversationId,
		ClientMsgId:    clientMsgId,
		Kind:           MsgKindText,
		Content:        text,
	})
}

// ListMessages pulls one page of history. A zero beforeSeq returns the
// newest page and marks the conversation read.
func (c *Client) ListMessages(ctx context.Context, conversationId string, limit int, beforeSeq int64) (*ListMessagesResponse, error) {
	params := map[string]string{
		"conversation_id": conversationId,
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if beforeSeq > 0 {
		params["before_seq"] = strconv.FormatInt(beforeSeq, 10)
	}

	var result ListMessagesResponse
	if err := c.get(ctx, "/msg/list", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
