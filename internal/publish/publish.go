// Package publish pushes snippets to external source-control hosts.
//
// Two providers are supported:
//   - github: a Gist containing one file.
//   - gitea:  Gitea has no gist equivalent, so each snippet becomes a file in
//     a per-user "codevault-snippets" repository, created on first publish.
//
// Both use the user's personal access token, sent as a bearer token through
// an oauth2 static token source.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"golang.org/x/oauth2"
)

type Provider string

const (
	GitHub Provider = "github"
	Gitea  Provider = "gitea"
)

func (p Provider) Valid() bool {
	return p == GitHub || p == Gitea
}

// RepoName is the Gitea repository snippets are written into.
const RepoName = "codevault-snippets"

// File is what gets published.
type File struct {
	Name        string
	Description string
	Content     string
	Public      bool
}

// Target identifies where and as whom to publish. BaseURL is only used by
// Gitea; GitHub always talks to api.github.com.
type Target struct {
	Provider Provider
	BaseURL  string
	Token    string
}

// Result is returned after a successful publish.
type Result struct {
	Provider Provider `json:"provider"`
	URL      string   `json:"url"`
}

// ErrRemote is wrapped by every non-2xx response from a provider.
var ErrRemote = errors.New("publish: remote rejected request")

// Client publishes to either provider.
type Client struct {
	githubAPI string
	// base is the transport wrapped by the oauth2 token transport; tests
	// swap it for the httptest server's client transport.
	base http.RoundTripper
}

func NewClient() *Client {
	return &Client{githubAPI: "https://api.github.com", base: http.DefaultTransport}
}

// Publish dispatches on t.Provider.
func (c *Client) Publish(ctx context.Context, t Target, f File) (*Result, error) {
	if t.Token == "" {
		return nil, fmt.Errorf("publish: no %s token configured", t.Provider)
	}
	switch t.Provider {
	case GitHub:
		return c.publishGist(ctx, t.Token, f)
	case Gitea:
		if t.BaseURL == "" {
			return nil, fmt.Errorf("publish: no gitea URL configured")
		}
		return c.publishGitea(ctx, strings.TrimRight(t.BaseURL, "/"), t.Token, f)
	default:
		return nil, fmt.Errorf("publish: unknown provider %q", t.Provider)
	}
}

func (c *Client) httpClient(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: c.base})
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// Gist API docs: https://docs.github.com/en/rest/gists/gists#create-a-gist
func (c *Client) publishGist(ctx context.Context, token string, f File) (*Result, error) {
	body := map[string]any{
		"description": f.Description,
		"public":      f.Public,
		"files": map[string]any{
			f.Name: map[string]string{"content": f.Content},
		},
	}
	var resp struct {
		HTMLURL string `json:"html_url"`
	}
	client := c.httpClient(ctx, token)
	if _, err := doJSON(ctx, client, http.MethodPost, c.githubAPI+"/gists", body, &resp); err != nil {
		return nil, err
	}
	return &Result{Provider: GitHub, URL: resp.HTMLURL}, nil
}

// Slug turns a title into a file-name stem: lower-case ASCII letters and
// digits separated by single dashes, at most 60 characters.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	if s == "" {
		return "snippet"
	}
	return s
}

// FileName builds the published file name from a title and an extension
// such as ".go".
func FileName(title, ext string) string {
	return Slug(title) + ext
}

// doJSON sends body as JSON and decodes a 2xx response into out. It returns
// the status code so callers can branch on 404 / 409 / 422.
func doJSON(ctx context.Context, client *http.Client, method, url string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("publish: encoding request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, fmt.Errorf("publish: building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("publish: calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s", ErrRemote, method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("publish: decoding %s response: %w", url, err)
		}
	}
	return resp.StatusCode, nil
}
