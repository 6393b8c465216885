// Package hltb searches HowLongToBeat for completion times, release years and covers.
package hltb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"next2play/internal/config"
	"next2play/internal/metrics"
	"next2play/internal/models"
	"next2play/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrTransport = errors.New("metadata provider request failed")
	ErrSearchKey = errors.New("search key not found")
)

const (
	minutesPerHour = 60
	maxScriptSize  = 8 << 20
	searchPath     = "/api/search"
	imagesPath     = "/games/"
)

type Client struct {
	baseURL   string
	userAgent string
	pageSize  int
	http      *http.Client
	log       *slog.Logger

	mu        sync.Mutex
	searchKey string
}

func New(cfg config.Client, log *slog.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		pageSize:  pageSize,
		http:      tracing.NewHTTPClient(cfg.Timeout),
		log:       log,
	}
}

type searchRequest struct {
	SearchType    string        `json:"searchType"`
	SearchTerms   []string      `json:"searchTerms"`
	SearchPage    int           `json:"searchPage"`
	Size          int           `json:"size"`
	SearchOptions searchOptions `json:"searchOptions"`
	UseCache      bool          `json:"useCache"`
}

type searchOptions struct {
	Games      gameOptions `json:"games"`
	Users      userOptions `json:"users"`
	Filter     string      `json:"filter"`
	Sort       int         `json:"sort"`
	Randomizer int         `json:"randomizer"`
}

type gameOptions struct {
	UserID        int       `json:"userId"`
	Platform      string    `json:"platform"`
	SortCategory  string    `json:"sortCategory"`
	RangeCategory string    `json:"rangeCategory"`
	RangeTime     rangeTime `json:"rangeTime"`
	Gameplay      gameplay  `json:"gameplay"`
	RangeYear     rangeYear `json:"rangeYear"`
	Modifier      string    `json:"modifier"`
}

type rangeTime struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

type gameplay struct {
	Perspective string `json:"perspective"`
	Flow        string `json:"flow"`
	Genre       string `json:"genre"`
	Difficulty  string `json:"difficulty"`
}

type rangeYear struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type userOptions struct {
	ID           string `json:"id,omitempty"`
	SortCategory string `json:"sortCategory"`
}

type searchResponse struct {
	Data []searchResult `json:"data"`
}

type searchResult struct {
	GameID       int64   `json:"game_id"`
	GameName     string  `json:"game_name"`
	GameImage    string  `json:"game_image"`
	CompMain     float64 `json:"comp_main"`
	ReleaseWorld int     `json:"release_world"`
}

func newSearchRequest(term, key string, size int) searchRequest {
	return searchRequest{
		SearchType:  "games",
		SearchTerms: strings.Fields(term),
		SearchPage:  1,
		Size:        size,
		SearchOptions: searchOptions{
			Games: gameOptions{
				SortCategory:  "popular",
				RangeCategory: "main",
			},
			Users: userOptions{ID: key, SortCategory: "postcount"},
		},
		UseCache: true,
	}
}

// Search returns the provider's matches for term in its own ranking order.
// An empty slice with a nil error means nothing matched.
func (c *Client) Search(ctx context.Context, term string) ([]models.Candidate, error) {
	const op = "clients.hltb.Search"

	term = strings.TrimSpace(term)
	if term == "" {
		return []models.Candidate{}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "hltb.Search")
	span.SetAttributes(attribute.String("hltb.term", term))
	defer span.End()

	start := time.Now()

	results, err := c.search(ctx, term)
	if err != nil {
		span.RecordError(err)
		metrics.RecordResolver(metrics.OutcomeError, start)
		c.log.Warn("search failed",
			slog.String("operation", op),
			slog.String("term", term),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}

	candidates := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, r.candidate())
	}

	outcome := metrics.OutcomeFound
	if len(candidates) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.RecordResolver(outcome, start)
	span.SetAttributes(attribute.Int("hltb.results", len(candidates)))

	return candidates, nil
}

func (c *Client) search(ctx context.Context, term string) ([]searchResult, error) {
	key, err := c.key(ctx)
	if err != nil {
		return nil, err
	}

	results, status, err := c.post(ctx, term, key)
	if err != nil && (status == http.StatusForbidden || status == http.StatusNotFound) {
		// The key rotates with every provider deploy.
		c.resetKey()
		if key, err = c.key(ctx); err != nil {
			return nil, err
		}
		results, _, err = c.post(ctx, term, key)
	}

	return results, err
}

func (c *Client) post(ctx context.Context, term, key string) ([]searchResult, int, error) {
	body, err := json.Marshal(newSearchRequest(term, key, c.pageSize))
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	c.browserHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", c.baseURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	return decoded.Data, resp.StatusCode, nil
}

func (r searchResult) candidate() models.Candidate {
	c := models.Candidate{
		ExternalID: models.GameID(r.GameID),
		Name:       r.GameName,
		ImageRef:   r.GameImage,
		MainStory:  models.PlaytimeFromHours(r.CompMain / minutesPerHour),
	}
	if r.ReleaseWorld > 0 {
		year := r.ReleaseWorld
		c.ReleaseYear = &year
	}
	return c
}

// ImageURL turns an image reference from a search result into an absolute URL.
func (c *Client) ImageURL(ref string) string {
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref
	case strings.HasPrefix(ref, "/"):
		return c.baseURL + ref
	default:
		return c.baseURL + imagesPath + ref
	}
}

func (c *Client) absolute(src string) string {
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return src
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	default:
		return c.baseURL + "/" + strings.TrimLeft(src, "/")
	}
}

func (c *Client) browserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.baseURL+"/")
}
