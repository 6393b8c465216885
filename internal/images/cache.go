// Package images keeps local copies of cover art so the UI does not hot-link the provider.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"next2play/internal/metrics"
	"next2play/internal/models"
	"next2play/internal/storage/uploads"
	"next2play/internal/tracing"
)

var (
	ErrFetch    = errors.New("image download failed")
	ErrEmptyRef = errors.New("image reference is empty")
)

const maxImageSize = 20 << 20

type Options struct {
	URLPrefix string
	UserAgent string
	Timeout   time.Duration
}

type Cache struct {
	store     uploads.IUploads
	processor ImageProcessor
	http      *http.Client
	urlPrefix string
	userAgent string
	log       *slog.Logger
}

func NewCache(store uploads.IUploads, processor ImageProcessor, opts Options, log *slog.Logger) *Cache {
	if processor == nil {
		processor = NopProcessor{}
	}

	return &Cache{
		store:     store,
		processor: processor,
		http:      tracing.NewHTTPClient(opts.Timeout),
		urlPrefix: strings.TrimRight(opts.URLPrefix, "/"),
		userAgent: opts.UserAgent,
		log:       log,
	}
}

// FileName is the cache key: one file per game id, independent of the remote content.
func FileName(id models.GameID) string {
	return fmt.Sprintf("game_%d.jpg", id)
}

func (c *Cache) PublicPath(id models.GameID) string {
	return c.urlPrefix + "/" + FileName(id)
}

// IsLocal reports whether ref already points at the cache.
func (c *Cache) IsLocal(ref string) bool {
	return strings.HasPrefix(ref, c.urlPrefix+"/")
}

// EnsureCached returns the served path of the cover for id, downloading it
// once if it is not on disk yet. On download failure the remote reference is
// returned unchanged so the page can still hot-link it.
func (c *Cache) EnsureCached(ctx context.Context, remoteRef string, id models.GameID) string {
	const op = "images.cache.EnsureCached"

	if remoteRef == "" {
		metrics.RecordImageEvent(metrics.EventSkippedRef)
		return ""
	}

	name := FileName(id)
	if c.store.Exists(name) {
		metrics.RecordImageEvent(metrics.EventHit)
		return c.PublicPath(id)
	}

	if c.IsLocal(remoteRef) {
		return remoteRef
	}

	data, err := c.fetch(ctx, remoteRef)
	if err != nil {
		metrics.RecordImageEvent(metrics.EventFetchFail)
		c.log.Warn("image download failed, keeping remote url",
			slog.String("operation", op),
			slog.String("url", remoteRef),
			slog.String("error", err.Error()))
		return remoteRef
	}

	data = c.normalize(ctx, data, id)

	if err := c.store.SaveImage(data, name); err != nil && !errors.Is(err, uploads.ErrFileExists) {
		c.log.Error("failed to save image",
			slog.String("operation", op),
			slog.String("file", name),
			slog.String("error", err.Error()))
		return remoteRef
	}

	metrics.RecordImageEvent(metrics.EventStored)
	return c.PublicPath(id)
}

// Refetch downloads and processes the cover again, replacing any cached copy.
func (c *Cache) Refetch(ctx context.Context, remoteRef string, id models.GameID) (string, error) {
	const op = "images.cache.Refetch"

	if remoteRef == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyRef)
	}

	data, err := c.fetch(ctx, remoteRef)
	if err != nil {
		metrics.RecordImageEvent(metrics.EventFetchFail)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	data = c.normalize(ctx, data, id)

	if err := c.store.ReplaceImage(data, FileName(id)); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordImageEvent(metrics.EventRefetched)
	return c.PublicPath(id), nil
}

// normalize falls back to the downloaded bytes when the processor fails.
func (c *Cache) normalize(ctx context.Context, data []byte, id models.GameID) []byte {
	out, err := c.processor.Normalize(ctx, data)
	if err != nil || len(out) == 0 {
		metrics.RecordImageEvent(metrics.EventRawStored)
		if err == nil {
			err = ErrProcessing
		}
		c.log.Warn("image processing failed, storing original bytes",
			slog.String("operation", "images.cache.normalize"),
			slog.Int64("game_id", int64(id)),
			slog.String("error", err.Error()))
		return data
	}
	return out
}

func (c *Cache) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	// The provider's CDN rejects requests that do not look like a browser.
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", refererFor(url))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrFetch, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: unexpected content type: %s", ErrFetch, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrFetch)
	}

	return data, nil
}

func refererFor(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return ""
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/"
}
