// Package importer copies snippets out of a legacy snippet server.
//
// The legacy API is small:
//
//	GET {base}/api/snippets       -> [1, 2, "abc"]  or  {"ids": [...]}
//	GET {base}/api/snippets/{id}  -> one snippet object
//
// Both calls use HTTP basic auth. Client speaks that API; Runner walks the id
// list one at a time and reports progress as Events.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Source is where to import from.
type Source struct {
	BaseURL  string `json:"baseUrl"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LegacySnippet is the subset of the legacy record that maps onto a snippet.
type LegacySnippet struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Content     string `json:"content"` // older exports call the code "content"
	Language    string `json:"language"`
	Tags        []Name `json:"tags"`
	Category    Name   `json:"category"`
	Visibility  string `json:"visibility"`
}

// Body returns the snippet source, whichever field carried it.
func (s *LegacySnippet) Body() string {
	if s.Code != "" {
		return s.Code
	}
	return s.Content
}

// TagNames flattens Tags.
func (s *LegacySnippet) TagNames() []string {
	out := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		if t != "" {
			out = append(out, string(t))
		}
	}
	return out
}

// ID is a legacy identifier. The legacy server emits both numeric and string
// ids; both decode to their decimal/string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("importer: id must be a string or number, got %s", b)
	}
	*id = ID(n.String())
	return nil
}

// Name decodes either "go" or {"name": "go"}; null decodes to "".
type Name string

func (n *Name) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
		return nil
	case len(b) > 0 && b[0] == '{':
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*n = Name(obj.Name)
		return nil
	default:
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Name(s)
		return nil
	}
}

// ErrUnauthorized is returned when the legacy server rejects the credentials.
var ErrUnauthorized = errors.New("importer: legacy server rejected credentials")

// Client calls the legacy API.
type Client struct {
	http *http.Client
}

// NewClient returns a client with a per-request timeout. A nil httpClient
// uses a default one.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient}
}

// ListIDs fetches the id list.
func (c *Client) ListIDs(ctx context.Context, src Source) ([]string, error) {
	raw, err := c.get(ctx, src, "/api/snippets")
	if err != nil {
		return nil, err
	}

	var ids []ID
	if err := json.Unmarshal(raw, &ids); err != nil {
		var wrapped struct {
			IDs []ID `json:"ids"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("importer: decoding id list: %w", err)
		}
		ids = wrapped.IDs
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out, nil
}

// Fetch loads one legacy snippet.
func (c *Client) Fetch(ctx context.Context, src Source, id string) (*LegacySnippet, error) {
	raw, err := c.get(ctx, src, "/api/snippets/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var s LegacySnippet
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("importer: decoding snippet %s: %w", id, err)
	}
	if s.ID == "" {
		s.ID = ID(id)
	}
	return &s, nil
}

func (c *Client) get(ctx context.Context, src Source, path string) ([]byte, error) {
	u := strings.TrimRight(src.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("importer: building request for %s: %w", u, err)
	}
	req.SetBasicAuth(src.Username, src.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("importer: calling %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("importer: %s returned status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("importer: reading %s: %w", u, err)
	}
	return body, nil
}
