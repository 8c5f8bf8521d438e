package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oblivionis/oblivionis-go/internal/config"
	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
	"github.com/oblivionis/oblivionis-go/internal/monitoring"
	"github.com/oblivionis/oblivionis-go/internal/network"
)

// Per-call timeouts
const (
	SearchTimeout     = 15 * time.Second
	PicResolveTimeout = 10 * time.Second
	ImageFetchTimeout = 10 * time.Second
	URLResolveTimeout = 15 * time.Second
	LyricTimeout      = 15 * time.Second
	StreamStall       = 30 * time.Second

	picCacheTTL = 10 * time.Minute
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Client talks to the upstream music aggregation endpoint. It is shared by
// every worker and is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *rate.Limiter
	picCache    *ttlCache
	logger      *zap.Logger
}

// NewClient creates an API client. A nil httpClient gets a fresh pooled
// client with a cookie jar.
func NewClient(cfg config.APIConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if httpClient == nil {
		httpClient = network.NewClient(nil)
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     base,
		rateLimiter: rate.NewLimiter(limit, burst),
		picCache:    newTTLCache(picCacheTTL),
		logger:      monitoring.Named(logger, "api"),
	}, nil
}

// BaseURL returns the upstream endpoint, used to scope persisted cookies
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

// HTTPClient returns the shared HTTP client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// SearchParams builds the query for req. Album and playlist searches go to
// the "<source>_album" and "<source>_playlist" providers; a playlist keyword
// of five or more digits is looked up directly as a playlist id.
func SearchParams(req SearchRequest) url.Values {
	params := url.Values{}

	if req.Kind == KindPlaylist && isPlaylistID(req.Keyword) {
		params.Set("types", "playlist")
		params.Set("id", req.Keyword)
		return params
	}

	source := req.Source
	switch req.Kind {
	case KindAlbum:
		source += "_album"
	case KindPlaylist:
		source += "_playlist"
	}

	page := req.Page
	if page < 1 {
		page = 1
	}

	params.Set("types", "search")
	params.Set("source", source)
	params.Set("name", req.Keyword)
	params.Set("count", strconv.Itoa(req.Count))
	params.Set("pages", strconv.Itoa(page))
	return params
}

func isPlaylistID(keyword string) bool {
	if len(keyword) < 5 {
		return false
	}
	for _, r := range keyword {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Search runs one search or playlist lookup and normalizes the result
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SongRecord, error) {
	if strings.TrimSpace(req.Keyword) == "" {
		return nil, apperrors.NewUnknownError("search keyword cannot be empty", nil)
	}

	body, err := c.get(ctx, SearchParams(req), SearchTimeout)
	if err != nil {
		return nil, err
	}

	songs, err := ParseSongs(body, req.Source)
	if err != nil {
		return nil, apperrors.NewUnknownError("failed to parse search response", err)
	}

	c.logger.Debug("Search completed",
		zap.String("keyword", req.Keyword),
		zap.String("kind", string(req.Kind)),
		zap.Int("page", req.Page),
		zap.Int("results", len(songs)))

	return songs, nil
}

// ResolveTrackURL resolves the stream URL of a song at bitrate. A response
// without a URL is a not-found error.
func (c *Client) ResolveTrackURL(ctx context.Context, source, id, bitrate string) (*TrackURL, error) {
	params := url.Values{}
	params.Set("types", "url")
	params.Set("source", source)
	params.Set("id", id)
	params.Set("br", bitrate)

	body, err := c.get(ctx, params, URLResolveTimeout)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, apperrors.NewUnknownError("invalid url response json", nil)
	}

	result := gjson.ParseBytes(body)
	link := result.Get("url").String()
	if link == "" {
		return nil, apperrors.NewNotFoundError("no download link")
	}

	track := &TrackURL{
		URL:    link,
		SizeKB: result.Get("size").Int(),
	}
	if br := result.Get("br"); br.Type == gjson.Number {
		track.Bitrate = int(br.Int())
	} else if n, err := strconv.Atoi(bitrate); err == nil {
		track.Bitrate = n
	}

	return track, nil
}

// Lyric fetches the original and translated lyric of a song
func (c *Client) Lyric(ctx context.Context, source, id string) (*Lyric, error) {
	params := url.Values{}
	params.Set("types", "lyric")
	params.Set("source", source)
	params.Set("id", id)

	body, err := c.get(ctx, params, LyricTimeout)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, apperrors.NewUnknownError("invalid lyric response json", nil)
	}

	return &Lyric{
		Original:   gjson.GetBytes(body, "lyric").String(),
		Translated: gjson.GetBytes(body, "tlyric").String(),
	}, nil
}

// ResolvePicURL resolves the cover image URL for picID at size pixels.
// Resolved URLs are cached for a few minutes.
func (c *Client) ResolvePicURL(ctx context.Context, source, picID string, size int) (string, error) {
	cacheKey := fmt.Sprintf("%s:%s:%d", source, picID, size)
	if cached, ok := c.picCache.get(cacheKey); ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("types", "pic")
	params.Set("source", source)
	params.Set("id", picID)
	params.Set("size", strconv.Itoa(size))

	body, err := c.get(ctx, params, PicResolveTimeout)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", apperrors.NewUnknownError("invalid pic response json", nil)
	}

	link := gjson.GetBytes(body, "url").String()
	if link == "" {
		return "", apperrors.NewNotFoundError("cover not found")
	}

	c.picCache.set(cacheKey, link)
	return link, nil
}

// FetchImage downloads image bytes from link and reports their MIME type
func (c *Client) FetchImage(ctx context.Context, link string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, ImageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", apperrors.NewNetworkError("failed to create request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apperrors.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", apperrors.NewStatusError(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperrors.Classify(err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	return data, mime, nil
}

// Stream downloads link into path without buffering the body in memory
func (c *Client) Stream(ctx context.Context, link, path string, progress func(downloaded, total int64)) (*network.StreamResult, error) {
	return network.StreamToFile(ctx, c.httpClient, &network.StreamConfig{
		URL:              link,
		OutputPath:       path,
		Headers:          map[string]string{"User-Agent": userAgent},
		StallTimeout:     StreamStall,
		ProgressCallback: progress,
	})
}

// get performs one rate-limited API call bounded by timeout
func (c *Client) get(ctx context.Context, params url.Values, timeout time.Duration) ([]byte, error) {
	types := params.Get("types")
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := c.doGet(ctx, params)
	status := "ok"
	if err != nil {
		status = string(apperrors.GetErrorType(err))
		c.logger.Warn("API request failed",
			zap.String("types", types),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
	monitoring.RecordAPIRequest(types, status, time.Since(start))

	return body, err
}

func (c *Client) doGet(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, apperrors.NewTimeoutError("rate limiter wait exceeded deadline", err)
	}

	u := *c.baseURL
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to create request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewStatusError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return body, nil
}
