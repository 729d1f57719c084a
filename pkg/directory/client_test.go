package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contacts-cli/internal/resilience"
)

func TestSearch_Paginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/listings:search", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		page := SearchPage{
			Listings: []map[string]any{{"name": "Acme Corp", "email": "info@acme.com"}},
		}
		if req.PageToken == "" {
			page.NextPageToken = "page-2"
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))

	page1, err := c.Search(context.Background(), "plumbers in boston", 10, "")
	require.NoError(t, err)
	assert.Len(t, page1.Listings, 1)
	assert.Equal(t, "page-2", page1.NextPageToken)

	page2, err := c.Search(context.Background(), "plumbers in boston", 10, page1.NextPageToken)
	require.NoError(t, err)
	assert.Empty(t, page2.NextPageToken)
}

func TestDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/listings/abc-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":  "Acme Corp",
			"phone": "555-0100",
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	listing, err := c.Details(context.Background(), "abc-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", listing["name"])
}

func TestSearch_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "anything", 10, "")
	require.Error(t, err)

	var te *resilience.TransientError
	assert.True(t, errors.As(err, &te), "5xx must be classified transient")
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
}

func TestSearch_ClientErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "anything", 10, "")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}
