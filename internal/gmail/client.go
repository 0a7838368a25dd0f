package gmail

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps the Gmail API client
type Client struct {
	service *gmail.Service
	tokens  oauth2.TokenSource
	userID  string // "me" for authenticated user
}

// NewClient creates a new Gmail API client. Expired access tokens are
// refreshed transparently; Token reports the current one.
func NewClient(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*Client, error) {
	tokens := config.TokenSource(ctx, token)
	httpClient := oauth2.NewClient(ctx, tokens)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		service: service,
		tokens:  tokens,
		userID:  "me",
	}, nil
}

// Token returns the access token in use, refreshing it if needed.
func (c *Client) Token() (*oauth2.Token, error) {
	return c.tokens.Token()
}

// Message is a Gmail message reduced to what categorization and analysis need
type Message struct {
	ID            string       `json:"id"`
	ThreadID      string       `json:"threadId"`
	Subject       string       `json:"subject"`
	Sender        string       `json:"sender"`        // Display name, or the address when there is none
	SenderAddress string       `json:"senderAddress"` // Raw From header
	Snippet       string       `json:"snippet"`
	Body          string       `json:"body"` // Plain text; HTML parts are stripped
	HTML          string       `json:"html,omitempty"`
	Labels        []string     `json:"labels"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	ReceivedAt    time.Time    `json:"receivedAt"`
}

// HasAttachment reports whether the message carries at least one file.
func (m *Message) HasAttachment() bool {
	return len(m.Attachments) > 0
}

// Attachment describes a file part without its content
type Attachment struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	AttachmentID string `json:"attachmentId"`
}

// ListInboxMessageIDs returns the IDs of the newest inbox messages
func (c *Client) ListInboxMessageIDs(ctx context.Context, maxResults int64) ([]string, error) {
	res, err := c.service.Users.Messages.List(c.userID).
		LabelIds("INBOX").
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}

	return ids, nil
}

// GetMessage fetches a single message by ID
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	msg, err := c.service.Users.Messages.Get(c.userID, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return ParseMessage(msg), nil
}
