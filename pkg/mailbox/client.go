// Package mailbox provides access to a mailbox provider for contact
// harvesting. The Gmail-backed implementation is the only place the Gmail
// wire shapes appear; message stubs are flattened into string-keyed
// mappings for the rest of the pipeline.
package mailbox

import (
	"context"
	"net/mail"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client performs mailbox provider operations.
type Client interface {
	// Search returns one page of message stubs matching query. An empty
	// NextPageToken means no further pages.
	Search(ctx context.Context, query string, pageSize int64, pageToken string) (*MessagePage, error)

	// Details returns the sender-centric payload for a message id. The
	// returned mapping carries name/email/subject/message_id keys.
	Details(ctx context.Context, id string) (map[string]any, error)
}

// MessagePage is one page of message stubs.
type MessagePage struct {
	IDs           []string
	NextPageToken string
}

// gmailClient wraps the Gmail API service.
type gmailClient struct {
	svc *gmail.Service
}

// NewGmailClient creates a mailbox client authenticated with an OAuth
// token source.
func NewGmailClient(ctx context.Context, ts oauth2.TokenSource) (Client, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, eris.Wrap(err, "mailbox: create gmail service")
	}
	return &gmailClient{svc: svc}, nil
}

func (c *gmailClient) Search(ctx context.Context, query string, pageSize int64, pageToken string) (*MessagePage, error) {
	call := c.svc.Users.Messages.List("me").Q(query).MaxResults(pageSize).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, eris.Wrap(err, "mailbox: list messages")
	}

	page := &MessagePage{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

func (c *gmailClient) Details(ctx context.Context, id string) (map[string]any, error) {
	msg, err := c.svc.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("From", "Subject").
		Context(ctx).
		Do()
	if err != nil {
		return nil, eris.Wrapf(err, "mailbox: get message %s", id)
	}

	headers := map[string]string{}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}

	name, address := SplitAddress(headers["From"])
	return map[string]any{
		"message_id": msg.Id,
		"name":       name,
		"email":      address,
		"subject":    headers["Subject"],
	}, nil
}

// SplitAddress parses an RFC 5322 From header into display name and
// address. A bare address yields an empty name; unparseable input is
// returned as-is in the address slot so downstream validation can reject
// it.
func SplitAddress(from string) (name, address string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", from
	}
	return addr.Name, strings.ToLower(addr.Address)
}
