// Package salesforce provides REST API access to Salesforce contact data.
package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Salesforce operations used by the CRM sync adapter.
type Client interface {
	// SearchContacts returns one page of contacts. where is an optional
	// SOQL WHERE clause body (without the keyword).
	SearchContacts(ctx context.Context, where string, limit, offset int) ([]Contact, error)
}

// Contact is the slice of the Salesforce Contact SObject the pipeline
// consumes.
type Contact struct {
	ID      string  `json:"Id"`
	Name    string  `json:"Name"`
	Email   string  `json:"Email"`
	Phone   string  `json:"Phone"`
	Title   string  `json:"Title"`
	Account Account `json:"Account"`
}

// Account carries the parent account name for organization attribution.
type Account struct {
	Name string `json:"Name"`
}

// ToPayload flattens a contact into the generic payload shape consumed by
// the normalizer.
func (c Contact) ToPayload() map[string]any {
	return map[string]any{
		"contact_id": c.ID,
		"name":       c.Name,
		"email":      c.Email,
		"phone":      c.Phone,
		"title":      c.Title,
		"company":    c.Account.Name,
	}
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: The underlying go-salesforce/v3 library does not accept
// context.Context, so the ctx parameter only governs the rate limiter
// wait; callers can still cancel that.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a Salesforce Client wrapping the given go-salesforce
// instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *sfClient) SearchContacts(ctx context.Context, where string, limit, offset int) ([]Contact, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sf: rate limit")
	}

	soql := BuildContactSOQL(where, limit, offset)
	var out []Contact
	if err := c.sf.Query(soql, &out); err != nil {
		return nil, eris.Wrap(err, "sf: query contacts")
	}
	return out, nil
}

// BuildContactSOQL assembles the paginated contact query. Offsets beyond
// Salesforce's 2000-row OFFSET ceiling are the caller's concern.
func BuildContactSOQL(where string, limit, offset int) string {
	var b strings.Builder
	b.WriteString("SELECT Id, Name, Email, Phone, Title, Account.Name FROM Contact")
	if w := strings.TrimSpace(where); w != "" {
		fmt.Fprintf(&b, " WHERE %s", w)
	}
	b.WriteString(" ORDER BY Id")
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}
