// ABOUTME: Contact listing endpoints
// ABOUTME: Implements conversation.Directory

package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/wire"
)

// Contacts lists every user the caller can message.
func (c *Client) Contacts(ctx context.Context) ([]chat.Contact, error) {
	return c.listUsers(ctx, "/messages/contacts")
}

// ChatPartners lists users the caller already has a conversation with.
func (c *Client) ChatPartners(ctx context.Context) ([]chat.Contact, error) {
	return c.listUsers(ctx, "/messages/chats")
}

func (c *Client) listUsers(ctx context.Context, path string) ([]chat.Contact, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil, path)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	users, err := wire.Contacts(body)
	if err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	return users, nil
}
