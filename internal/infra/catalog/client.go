// Package catalog provides a client for the external track catalog
// service. The session engine treats tracks as opaque metadata; the
// catalog is where a bare track ID is resolved into that metadata.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundhaus/partyline/internal/domain/track"
)

var ErrTrackNotFound = errors.New("track not found in catalog")

// Config represents catalog client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// trackResponse is the catalog's track document.
type trackResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	CoverURL   string `json:"cover_url"`
	DurationMs int64  `json:"duration_ms"`
}

// Client is a track catalog API client. Resolved tracks are cached for
// the life of the process; catalog metadata is immutable per track ID.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	cacheMu sync.RWMutex
	cache   map[string]track.Track
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid catalog base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string]track.Track),
	}, nil
}

// Resolve looks a track ID up in the catalog.
func (c *Client) Resolve(ctx context.Context, trackID string) (track.Track, error) {
	if trackID == "" {
		return track.Track{}, errors.New("track ID is required")
	}

	c.cacheMu.RLock()
	if cached, ok := c.cache[trackID]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	reqURL := c.baseURL + "/tracks/" + url.PathEscape(trackID)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to create request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return track.Track{}, errors.Wrapf(ErrTrackNotFound, "track %q", trackID)
	}
	if resp.StatusCode != http.StatusOK {
		return track.Track{}, errors.Errorf("catalog returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to read response body")
	}

	var doc trackResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return track.Track{}, errors.Wrap(err, "failed to parse catalog response")
	}

	t := track.Track{
		ID:       doc.ID,
		Title:    doc.Title,
		Artist:   doc.Artist,
		CoverRef: doc.CoverURL,
		Duration: time.Duration(doc.DurationMs) * time.Millisecond,
	}
	if !t.Valid() {
		return track.Track{}, errors.Errorf("catalog returned incomplete track %q", trackID)
	}

	c.cacheMu.Lock()
	c.cache[trackID] = t
	c.cacheMu.Unlock()

	zlog.Debug().Str("track_id", t.ID).Str("title", t.Title).Msg("track resolved from catalog")
	return t, nil
}
