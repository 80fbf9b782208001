// Package eagle is the HTTP client for a locally running Eagle
// application: item upload, thumbnail resolution, search, and folder
// management over its localhost API.
package eagle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"eaglelink/internal/config"
)

// APIError means Eagle was reachable but answered with a failure status
// or a payload the client could not accept.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("eagle api: %s (HTTP %d)", e.Message, e.StatusCode)
	}
	return "eagle api: " + e.Message
}

// ConnectionError means the Eagle application could not be reached at
// all. Callers present this differently from an API failure.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach Eagle at %s: %v (is Eagle running?)", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Folder is a remote Eagle folder. Identity lives in the opaque id.
type Folder struct {
	ID   string
	Name string
}

type Client struct {
	cfg   *config.Config
	httpc *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{cfg: cfg, httpc: &http.Client{}}
}

// request performs one API call and returns the raw response body.
// Mutating verbs send JSON; any non-2xx status becomes an APIError with
// the most specific message available; transport failures become
// ConnectionError.
func (c *Client) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	url := c.cfg.BaseURL() + path

	var body io.Reader
	if payload != nil && method != http.MethodGet {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("eagle request", "method", method, "url", url)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	slog.Debug("eagle response", "method", method, "url", url, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Message: errorMessageFrom(raw, resp), StatusCode: resp.StatusCode}
	}

	return raw, nil
}

// errorMessageFrom prefers the JSON error body's message, then the raw
// response text, then the status line.
func errorMessageFrom(raw []byte, resp *http.Response) string {
	if msg := gjson.GetBytes(raw, "message"); msg.Type == gjson.String && strings.TrimSpace(msg.String()) != "" {
		return strings.TrimSpace(msg.String())
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return resp.Status
}

// requireSuccess parses the standard {status, data} envelope and fails
// unless status is "success".
func (c *Client) requireSuccess(raw []byte) (gjson.Result, error) {
	parsed := gjson.ParseBytes(raw)
	if parsed.Get("status").String() != "success" {
		msg := parsed.Get("message").String()
		if msg == "" {
			msg = "unexpected response status"
		}
		return gjson.Result{}, &APIError{Message: msg}
	}
	return parsed.Get("data"), nil
}

type AddItemRequest struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Annotation string `json:"annotation,omitempty"`
	FolderID   string `json:"folderId,omitempty"`
}

// AddItemFromPath registers a file with the library and returns the new
// item id.
func (c *Client) AddItemFromPath(ctx context.Context, req AddItemRequest) (string, error) {
	raw, err := c.request(ctx, http.MethodPost, "/api/item/addFromPath", req)
	if err != nil {
		return "", err
	}
	data, err := c.requireSuccess(raw)
	if err != nil {
		return "", err
	}

	// The id arrives either as the data string itself or nested under
	// data.id, depending on the Eagle version.
	if data.Type == gjson.String && data.String() != "" {
		return data.String(), nil
	}
	if id := data.Get("id"); id.Type == gjson.String && id.String() != "" {
		return id.String(), nil
	}
	return "", &APIError{Message: "addFromPath returned no item id"}
}

// ThumbnailPath returns the thumbnail file path for an item id.
func (c *Client) ThumbnailPath(ctx context.Context, itemID string) (string, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/item/thumbnail?id="+itemID, nil)
	if err != nil {
		return "", err
	}
	data, err := c.requireSuccess(raw)
	if err != nil {
		return "", err
	}
	if data.Type != gjson.String || data.String() == "" {
		return "", &APIError{Message: "thumbnail response was not a path string"}
	}
	return data.String(), nil
}

// ListItems runs a keyword query and returns the raw data payload; the
// uploader normalizes its shape.
func (c *Client) ListItems(ctx context.Context, query string) (gjson.Result, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/item/list?"+query, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return c.requireSuccess(raw)
}

// ListFolders returns all folders. The response shape is validated
// strictly; folder routing depends on it.
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/folder/list", nil)
	if err != nil {
		return nil, err
	}
	data, err := c.requireSuccess(raw)
	if err != nil {
		return nil, err
	}
	if !data.IsArray() {
		return nil, &APIError{Message: "folder list was not an array"}
	}

	var folders []Folder
	for _, entry := range data.Array() {
		id := entry.Get("id")
		name := entry.Get("name")
		if id.Type != gjson.String || name.Type != gjson.String {
			return nil, &APIError{Message: "folder entry missing id or name"}
		}
		folders = append(folders, Folder{ID: id.String(), Name: name.String()})
	}
	return folders, nil
}

// CreateFolder creates a folder by name and returns its id.
func (c *Client) CreateFolder(ctx context.Context, name string) (Folder, error) {
	raw, err := c.request(ctx, http.MethodPost, "/api/folder/create", map[string]string{"folderName": name})
	if err != nil {
		return Folder{}, err
	}
	data, err := c.requireSuccess(raw)
	if err != nil {
		return Folder{}, err
	}
	id := data.Get("id")
	if id.Type != gjson.String || id.String() == "" {
		return Folder{}, &APIError{Message: "folder create returned no id"}
	}
	return Folder{ID: id.String(), Name: name}, nil
}

// ApplicationInfo queries the application endpoint.
func (c *Client) ApplicationInfo(ctx context.Context) (gjson.Result, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/application/info", nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return c.requireSuccess(raw)
}

// TestConnection reports whether Eagle answers at the configured
// address, with a human-readable status line.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	if _, err := c.ApplicationInfo(ctx); err != nil {
		return false, fmt.Sprintf("Eagle connection failed: %v", err)
	}
	return true, "Connected to Eagle successfully"
}
