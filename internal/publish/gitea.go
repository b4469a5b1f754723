package publish

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// Gitea API docs: https://gitea.com/api/swagger
//
// FLOW:
//  1. GET  /user                               -> owner login
//  2. GET  /repos/{owner}/codevault-snippets   -> 404 means create it
//  3. POST /repos/{owner}/{repo}/contents/{f}  -> create the file
//     on 409/422 (file exists) fetch its sha and PUT an update instead.
//
// The repository is private; a single repo cannot mix public and private
// files.
func (c *Client) publishGitea(ctx context.Context, base, token string, f File) (*Result, error) {
	client := c.httpClient(ctx, token)
	api := base + "/api/v1"

	var me struct {
		Login string `json:"login"`
	}
	if _, err := doJSON(ctx, client, http.MethodGet, api+"/user", nil, &me); err != nil {
		return nil, err
	}
	if me.Login == "" {
		return nil, fmt.Errorf("publish: gitea returned no login for token")
	}

	repoURL := fmt.Sprintf("%s/repos/%s/%s", api, url.PathEscape(me.Login), RepoName)
	status, err := doJSON(ctx, client, http.MethodGet, repoURL, nil, nil)
	if status == http.StatusNotFound {
		create := map[string]any{
			"name":        RepoName,
			"description": "Snippets published from CodeVault",
			"private":     true,
			"auto_init":   true,
		}
		if _, err := doJSON(ctx, client, http.MethodPost, api+"/user/repos", create, nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"content": base64.StdEncoding.EncodeToString([]byte(f.Content)),
		"message": "Publish " + f.Name,
	}
	contentsURL := repoURL + "/contents/" + url.PathEscape(f.Name)

	var written struct {
		Content struct {
			HTMLURL string `json:"html_url"`
		} `json:"content"`
	}
	status, err = doJSON(ctx, client, http.MethodPost, contentsURL, payload, &written)
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		var existing struct {
			SHA string `json:"sha"`
		}
		if _, err := doJSON(ctx, client, http.MethodGet, contentsURL, nil, &existing); err != nil {
			return nil, err
		}
		payload["sha"] = existing.SHA
		payload["message"] = "Update " + f.Name
		_, err = doJSON(ctx, client, http.MethodPut, contentsURL, payload, &written)
	}
	if err != nil {
		return nil, err
	}

	return &Result{Provider: Gitea, URL: written.Content.HTMLURL}, nil
}
