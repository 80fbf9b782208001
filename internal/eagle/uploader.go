package eagle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"eaglelink/internal/config"
	"eaglelink/internal/fileurl"
	"eaglelink/internal/imagefmt"
	"eaglelink/internal/vault"
)

const uploadAnnotation = "Added via eaglelink"

// Item is a normalized search result. Only ID is guaranteed; every
// other field may be empty when Eagle omits it.
type Item struct {
	ID         string
	Name       string
	Ext        string
	Tags       []string
	Annotation string
	FilePath   string
	Thumbnail  string
}

// UploadResult is what the editor splices back into the note.
type UploadResult struct {
	ItemID  string
	FileURL string
}

// UploadOptions selects per-upload routing. An explicit FolderName
// overrides the configured default; empty means library root.
type UploadOptions struct {
	FolderName string
}

// Uploader drives the upload pipeline: normalize, stage to disk, import
// into Eagle, and resolve a durable file URL. Folder ids are cached for
// the process lifetime; concurrent misses for the same name collapse to
// a single lookup.
type Uploader struct {
	cfg    *config.Config
	client *Client
	store  *vault.Vault

	mu        sync.Mutex
	folderIDs map[string]string
	flight    singleflight.Group
}

func NewUploader(cfg *config.Config, client *Client, store *vault.Vault) *Uploader {
	return &Uploader{
		cfg:       cfg,
		client:    client,
		store:     store,
		folderIDs: make(map[string]string),
	}
}

// Upload runs one asset through the full pipeline and returns the new
// item id plus a file URL for embedding.
func (u *Uploader) Upload(ctx context.Context, asset imagefmt.Asset, opts UploadOptions) (UploadResult, error) {
	normalized, err := imagefmt.NormalizeForUpload(asset, imagefmt.ConvertOptions{
		Format:  u.cfg.FallbackFormat,
		Quality: u.cfg.JPEGQuality,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("normalize %s: %w", asset.Name, err)
	}

	tempPath, cleanup, err := u.store.SaveTemp(normalized)
	if err != nil {
		return UploadResult{}, err
	}
	defer cleanup()

	folderName := opts.FolderName
	if folderName == "" {
		folderName = u.cfg.FolderName
	}
	folderID := ""
	if folderName != "" {
		folderID, err = u.EnsureFolderExists(ctx, folderName)
		if err != nil {
			return UploadResult{}, err
		}
	}

	itemID, err := u.client.AddItemFromPath(ctx, AddItemRequest{
		Path:       tempPath,
		Name:       normalized.Name,
		Annotation: uploadAnnotation,
		FolderID:   folderID,
	})
	if err != nil {
		return UploadResult{}, err
	}
	slog.Info("uploaded item", "id", itemID, "name", normalized.Name, "folder", folderName)

	// Eagle finishes importing asynchronously; the thumbnail path is not
	// trustworthy until the library has settled.
	if u.cfg.SettleDelay > 0 {
		select {
		case <-time.After(u.cfg.SettleDelay):
		case <-ctx.Done():
			return UploadResult{}, ctx.Err()
		}
	}

	fileURL, err := u.FileURLForItemID(ctx, itemID)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{ItemID: itemID, FileURL: fileURL}, nil
}

// EnsureFolderExists returns the id of the named folder, creating it on
// first use. Concurrent callers for the same name share one remote
// round trip.
func (u *Uploader) EnsureFolderExists(ctx context.Context, name string) (string, error) {
	u.mu.Lock()
	if id, ok := u.folderIDs[name]; ok {
		u.mu.Unlock()
		return id, nil
	}
	u.mu.Unlock()

	v, err, _ := u.flight.Do(name, func() (any, error) {
		// Re-check under the flight: a caller racing a just-finished
		// flight lands here with the cache already filled.
		u.mu.Lock()
		if id, ok := u.folderIDs[name]; ok {
			u.mu.Unlock()
			return id, nil
		}
		u.mu.Unlock()

		id, err := u.lookupOrCreateFolder(ctx, name)
		if err != nil {
			return "", err
		}
		// Cache before the flight resolves so late callers never start a
		// second one.
		u.mu.Lock()
		u.folderIDs[name] = id
		u.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (u *Uploader) lookupOrCreateFolder(ctx context.Context, name string) (string, error) {
	folders, err := u.client.ListFolders(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range folders {
		if f.Name == name {
			return f.ID, nil
		}
	}
	created, err := u.client.CreateFolder(ctx, name)
	if err != nil {
		return "", err
	}
	slog.Info("created folder", "name", name, "id", created.ID)
	return created.ID, nil
}

// SearchQuery selects a keyword search page. Zero Limit means the
// default page size; an empty OrderBy sorts by import time.
type SearchQuery struct {
	Keyword string
	Limit   int
	Offset  int
	OrderBy string
}

// SearchItems queries the library and normalizes whatever list shape
// the running Eagle version produces. An empty keyword returns no
// results without touching the network.
func (u *Uploader) SearchItems(ctx context.Context, q SearchQuery) ([]Item, error) {
	keyword := strings.TrimSpace(q.Keyword)
	if keyword == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	orderBy := strings.TrimSpace(q.OrderBy)
	if orderBy == "" {
		orderBy = "time"
	}

	query := url.Values{}
	query.Set("limit", fmt.Sprint(limit))
	query.Set("orderBy", orderBy)
	query.Set("keyword", keyword)
	if q.Offset > 0 {
		query.Set("offset", fmt.Sprint(q.Offset))
	}

	data, err := u.client.ListItems(ctx, query.Encode())
	if err != nil {
		return nil, err
	}
	return normalizeItems(data), nil
}

// candidate list locations, in precedence order, across Eagle versions.
var itemListKeys = []string{"items", "data", "result", "list"}

func normalizeItems(data gjson.Result) []Item {
	list := data
	if !list.IsArray() {
		for _, key := range itemListKeys {
			if nested := data.Get(key); nested.IsArray() {
				list = nested
				break
			}
		}
	}
	if !list.IsArray() {
		return nil
	}

	var items []Item
	for _, entry := range list.Array() {
		id := entry.Get("id")
		if id.Type != gjson.String || id.String() == "" {
			// Entries without a usable string id cannot be linked.
			continue
		}
		items = append(items, Item{
			ID:         id.String(),
			Name:       entry.Get("name").String(),
			Ext:        entry.Get("ext").String(),
			Tags:       normalizeTags(entry.Get("tags")),
			Annotation: entry.Get("annotation").String(),
			FilePath:   entry.Get("filePath").String(),
			Thumbnail:  firstPresentString(entry, "thumbnailPath", "thumbnail", "thumb"),
		})
	}
	return items
}

func normalizeTags(raw gjson.Result) []string {
	var values []string
	switch {
	case raw.IsArray():
		for _, t := range raw.Array() {
			values = append(values, t.String())
		}
	case raw.Type == gjson.String:
		values = strings.Split(raw.String(), ",")
	default:
		return nil
	}

	var tags []string
	for _, t := range values {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

func firstPresentString(entry gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := entry.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// FileURLForItemID resolves an item to an embeddable file URL via its
// thumbnail path. Thumbnail files live next to the original asset with
// a suffixed name, so stripping the suffix recovers the full-size file.
// When Eagle answers but cannot produce a path the eagle:// scheme is
// returned as a degraded but still meaningful link; connection failures
// propagate so callers do not rewrite notes against a dead server.
func (u *Uploader) FileURLForItemID(ctx context.Context, itemID string) (string, error) {
	thumbPath, err := u.client.ThumbnailPath(ctx, itemID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			slog.Debug("thumbnail unavailable, degrading", "item", itemID, "error", err)
			return "eagle://item/" + itemID, nil
		}
		return "", err
	}

	resolved := stripThumbnailSuffix(thumbPath)
	return fileurl.NormalizeEagleAPIPath(resolved), nil
}

func stripThumbnailSuffix(p string) string {
	slash := strings.LastIndexAny(p, "/\\")
	dir, name := p[:slash+1], p[slash+1:]

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if strings.HasSuffix(base, "_thumbnail") {
		base = strings.TrimSuffix(base, "_thumbnail")
	}
	return dir + base + ext
}

// ResolveFileURL prefers the item's own file path over a thumbnail
// round trip when search already supplied one.
func (u *Uploader) ResolveFileURL(ctx context.Context, item Item) (string, error) {
	if item.FilePath != "" {
		return fileurl.NormalizeEagleAPIPath(item.FilePath), nil
	}
	return u.FileURLForItemID(ctx, item.ID)
}

// ResolveSearchThumbnailURL maps a search result's raw thumbnail value
// to something a preview pane can load.
func (u *Uploader) ResolveSearchThumbnailURL(raw string) string {
	return fileurl.ResolveThumbnailURL(raw, u.cfg.Host, u.cfg.Port)
}
