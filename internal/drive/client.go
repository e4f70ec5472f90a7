package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// listPageSize matches the page size the web UI uses; the remote caps
// responses at this size anyway.
const listPageSize = 100

// Client talks to an alist-compatible drive server. All calls go through
// the JSON envelope {code, message, data}; any code other than 200 is
// surfaced as an error carrying the remote message.
type Client struct {
	baseURL  string
	username string
	password string
	token    string
	http     *http.Client
}

func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Entry is a single item from a directory listing.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

type loginResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Token string `json:"token"`
	} `json:"data"`
}

type listResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Content []Entry `json:"content"`
		Total   int     `json:"total"`
	} `json:"data"`
}

// Login authenticates against the drive server and caches the token for
// subsequent calls. Servers with anonymous access enabled never need it.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("drive login request failed: %w", err)
	}
	defer resp.Body.Close()

	var result loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("drive login: decode response: %w", err)
	}
	if result.Code != 200 {
		return fmt.Errorf("drive login failed: %s", result.Message)
	}

	c.token = result.Data.Token
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != "" || c.username == "" {
		return nil
	}
	return c.Login(ctx)
}

// List fetches one page of a directory listing. Pages are numbered from 1.
// The refresh flag asks the server to bypass its own listing cache.
func (c *Client) List(ctx context.Context, path string, page, perPage int, refresh bool) ([]Entry, int, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, 0, err
	}

	body, err := json.Marshal(map[string]interface{}{
		"path":     path,
		"password": "",
		"page":     page,
		"per_page": perPage,
		"refresh":  refresh,
	})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/fs/list", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("drive list request failed: %w", err)
	}
	defer resp.Body.Close()

	var result listResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, 0, fmt.Errorf("drive list: decode response: %w", err)
	}
	if result.Code != 200 {
		return nil, 0, fmt.Errorf("drive list failed for %s: %s", path, result.Message)
	}

	return result.Data.Content, result.Data.Total, nil
}

// ListAllDirs walks every page of path and returns the names of its
// directory entries, in listing order. Files are skipped but still count
// toward pagination, so a page full of files advances the walk normally.
func (c *Client) ListAllDirs(ctx context.Context, path string) ([]string, error) {
	var dirs []string
	fetched := 0

	for page := 1; ; page++ {
		entries, total, err := c.List(ctx, path, page, listPageSize, true)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}

		for _, e := range entries {
			if e.IsDir {
				dirs = append(dirs, e.Name)
			}
		}

		fetched += len(entries)
		if fetched >= total {
			break
		}
	}

	return dirs, nil
}
