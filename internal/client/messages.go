// ABOUTME: Conversation endpoints: history, multipart send, reactions, read receipts
// ABOUTME: Implements conversation.Transport

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/wire"
)

// ErrNoMediaSource is returned when an attachment has no Open function.
var ErrNoMediaSource = errors.New("media has no source to upload")

// FetchHistory returns every message exchanged with peerID, oldest first.
func (c *Client) FetchHistory(ctx context.Context, peerID string) ([]chat.Message, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil, "/messages/%s", peerID)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	msgs, err := wire.Messages(body)
	if err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return msgs, nil
}

// SendMessage posts payload to peerID as multipart form data and returns the
// server's copy of the message. Media is streamed from its source while the
// request is in flight.
func (c *Client) SendMessage(ctx context.Context, peerID string, payload chat.SendPayload) (*chat.Message, error) {
	var src io.ReadCloser
	if payload.Media != nil {
		if payload.Media.Open == nil {
			return nil, ErrNoMediaSource
		}
		var err error
		if src, err = payload.Media.Open(); err != nil {
			return nil, fmt.Errorf("opening media: %w", err)
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		if src != nil {
			defer src.Close()
		}
		pw.CloseWithError(writeSendForm(mw, payload, src))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, pr, "/messages/send/%s", peerID)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	// Unblocks the writer if the transport gave up before draining the body.
	pr.Close()
	if err != nil {
		return nil, err
	}
	msg, err := wire.Message(body)
	if err != nil {
		return nil, fmt.Errorf("decoding sent message: %w", err)
	}
	return &msg, nil
}

// writeSendForm writes the whole form to mw. src is nil for text-only sends.
func writeSendForm(mw *multipart.Writer, payload chat.SendPayload, src io.Reader) error {
	if payload.Text != "" {
		if err := mw.WriteField("text", payload.Text); err != nil {
			return fmt.Errorf("writing text field: %w", err)
		}
	}
	if payload.ReplyToID != "" {
		if err := mw.WriteField("replyTo", payload.ReplyToID); err != nil {
			return fmt.Errorf("writing replyTo field: %w", err)
		}
	}
	if payload.Media != nil && src != nil {
		if err := writeMedia(mw, payload.Media, src); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}
	return nil
}

func writeMedia(mw *multipart.Writer, m *chat.MediaRef, src io.Reader) error {
	name := filepath.Base(m.Name)
	if name == "." || name == "/" {
		name = string(m.Kind)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename=%q`, name))
	h.Set("Content-Type", m.ContentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating media part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copying media: %w", err)
	}
	return nil
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// SetReaction toggles emoji on messageID for the caller and returns the
// message's reaction map after the change.
func (c *Client) SetReaction(ctx context.Context, messageID, emoji string) (map[string]string, error) {
	body, err := json.Marshal(reactionRequest{Emoji: emoji})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, bytes.NewReader(body), "/messages/reaction/%s", messageID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp) {
		return nil, fmt.Errorf("decoding reactions: %w", wire.ErrInvalidPayload)
	}
	return wire.Reactions(gjson.GetBytes(resp, "reactions")), nil
}

// MarkRead marks every message from peerID to the caller as read.
func (c *Client) MarkRead(ctx context.Context, peerID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, nil, "/messages/read/%s", peerID)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}
