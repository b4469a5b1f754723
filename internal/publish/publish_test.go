package publish

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Binary Search in Go", "binary-search-in-go"},
		{"  --Hello,   World!!  ", "hello-world"},
		{"Ünïcödé only", "n-c-d-only"},
		{"", "snippet"},
		{"!!!", "snippet"},
		{"a123456789b123456789c123456789d123456789e123456789f123456789g123456789", "a123456789b123456789c123456789d123456789e123456789f123456789"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
	assert.Equal(t, "quick-sort.py", FileName("Quick Sort", ".py"))
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{githubAPI: srv.URL, base: srv.Client().Transport}
}

func TestPublish_Gist(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gists", r.URL.Path)
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"html_url":"https://gist.github.com/ada/abc"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv).Publish(context.Background(),
		Target{Provider: GitHub, Token: "ghp_test"},
		File{Name: "hello.py", Description: "Hello", Content: "print(1)", Public: true})
	require.NoError(t, err)

	assert.Equal(t, &Result{Provider: GitHub, URL: "https://gist.github.com/ada/abc"}, res)
	assert.Equal(t, true, got["public"])
	files := got["files"].(map[string]any)
	assert.Equal(t, "print(1)", files["hello.py"].(map[string]any)["content"])
}

func TestPublish_GistRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Publish(context.Background(), Target{Provider: GitHub, Token: "bad"}, File{Name: "a.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "Bad credentials")
}

// fakeGitea is a tiny in-memory Gitea covering the calls publishGitea makes.
type fakeGitea struct {
	mu          sync.Mutex
	repoExists  bool
	files       map[string]string // path -> content
	repoCreates int
	updates     int
}

func (g *fakeGitea) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer gt_test" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	const repo = "/api/v1/repos/ada/" + RepoName
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/user":
		_, _ = w.Write([]byte(`{"login":"ada"}`))
	case r.Method == http.MethodGet && r.URL.Path == repo:
		if !g.repoExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"name":"codevault-snippets"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/user/repos":
		g.repoExists = true
		g.repoCreates++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	case len(r.URL.Path) > len(repo+"/contents/") && r.URL.Path[:len(repo+"/contents/")] == repo+"/contents/":
		name := r.URL.Path[len(repo+"/contents/"):]
		g.contents(w, r, name)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *fakeGitea) contents(w http.ResponseWriter, r *http.Request, name string) {
	var body struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	if r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	link := `{"content":{"html_url":"https://gitea.local/ada/codevault-snippets/src/branch/main/` + name + `"}}`

	switch r.Method {
	case http.MethodGet:
		_, _ = w.Write([]byte(`{"sha":"sha-` + name + `"}`))
	case http.MethodPost:
		if _, ok := g.files[name]; ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		decoded, _ := base64.StdEncoding.DecodeString(body.Content)
		g.files[name] = string(decoded)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(link))
	case http.MethodPut:
		if body.SHA != "sha-"+name {
			w.WriteHeader(http.StatusConflict)
			return
		}
		decoded, _ := base64.StdEncoding.DecodeString(body.Content)
		g.files[name] = string(decoded)
		g.updates++
		_, _ = w.Write([]byte(link))
	}
}

func TestPublish_GiteaCreatesRepoThenUpdatesFile(t *testing.T) {
	fake := &fakeGitea{files: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(srv)
	target := Target{Provider: Gitea, BaseURL: srv.URL + "/", Token: "gt_test"}

	res, err := c.Publish(context.Background(), target, File{Name: "hello.go", Content: "package main"})
	require.NoError(t, err)
	assert.Equal(t, Gitea, res.Provider)
	assert.Equal(t, "https://gitea.local/ada/codevault-snippets/src/branch/main/hello.go", res.URL)
	assert.Equal(t, 1, fake.repoCreates)
	assert.Equal(t, "package main", fake.files["hello.go"])

	_, err = c.Publish(context.Background(), target, File{Name: "hello.go", Content: "package main // v2"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.repoCreates, "repo is reused")
	assert.Equal(t, 1, fake.updates)
	assert.Equal(t, "package main // v2", fake.files["hello.go"])
}

func TestPublish_MissingConfiguration(t *testing.T) {
	c := NewClient()
	ctx := context.Background()

	_, err := c.Publish(ctx, Target{Provider: GitHub}, File{})
	assert.ErrorContains(t, err, "no github token")

	_, err = c.Publish(ctx, Target{Provider: Gitea, Token: "x"}, File{})
	assert.ErrorContains(t, err, "no gitea URL")

	_, err = c.Publish(ctx, Target{Provider: "bitbucket", Token: "x"}, File{})
	assert.ErrorContains(t, err, "unknown provider")

	assert.True(t, GitHub.Valid())
	assert.False(t, Provider("svn").Valid())
}
