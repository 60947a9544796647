// Package history implements the REST collaborators the synchronization
// core depends on: paginated message history used to seed a conversation
// before the live stream takes over, and image upload for media sends.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/md-asharaf/campus-bazaar-sub000/auth"
	"github.com/md-asharaf/campus-bazaar-sub000/message"
)

// DefaultPageSize is the history page size requested when none is given.
const DefaultPageSize = 50

// Client talks to the marketplace's REST API.
type Client struct {
	baseURL string
	tokens  auth.TokenProvider
	http    *http.Client
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, tokens auth.TokenProvider) *Client {
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// wireMessage is the REST representation of a chat message.
type wireMessage struct {
	MessageID   string     `json:"messageId"`
	ChatID      string     `json:"chatId"`
	SenderID    string     `json:"senderId"`
	Content     string     `json:"content"`
	Media       []string   `json:"media,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	Status      string     `json:"status"`
}

// Messages fetches one page of a conversation's history, oldest first.
func (c *Client) Messages(ctx context.Context, chatID string, page, limit int) ([]*message.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}

	endpoint := fmt.Sprintf("%s/api/chats/%s/messages", c.baseURL, url.PathEscape(chatID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	req.URL.RawQuery = q.Encode()

	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: unexpected status %d", resp.StatusCode)
	}

	var wire []wireMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("history: decode failed: %w", err)
	}

	msgs := make([]*message.Message, 0, len(wire))
	for _, w := range wire {
		msgs = append(msgs, w.toMessage())
	}

	logrus.WithFields(logrus.Fields{
		"function": "Messages",
		"chat_id":  chatID,
		"page":     page,
		"count":    len(msgs),
	}).Debug("History page fetched")

	return msgs, nil
}

// UploadImage posts an image and returns the media URL to reference in a
// send.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("image", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/uploads", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := c.authorize(ctx, req); err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("history: upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("history: upload status %d", resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("history: upload decode failed: %w", err)
	}
	return out.URL, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("history: token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (w wireMessage) toMessage() *message.Message {
	msg := &message.Message{
		ID:          w.MessageID,
		ChatID:      w.ChatID,
		SenderID:    w.SenderID,
		Content:     w.Content,
		Media:       w.Media,
		SentAt:      w.Timestamp,
		DeliveredAt: w.DeliveredAt,
		ReadAt:      w.ReadAt,
	}

	switch w.Status {
	case "delivered":
		msg.Status = message.StatusDelivered
	case "read":
		msg.Status = message.StatusRead
	default:
		msg.Status = message.StatusSent
	}
	return msg
}
