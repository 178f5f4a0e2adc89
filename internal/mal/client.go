// Package mal queries the MyAnimeList catalog through the Jikan v4 REST API.
package mal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/deepghs/anime-sites/internal/httpx"
)

const defaultBaseURL = "https://api.jikan.moe/v4"

// rateLimitBackoff is how long the client sleeps after a 429 before
// retrying the same query. Retries are intentionally unbounded in count:
// the pipeline cannot make progress without search data and a supervised
// job is expected to tolerate long stalls.
const rateLimitBackoff = 5 * time.Second

// acceptedTypes is the media-type allow list applied to search results.
var acceptedTypes = map[string]struct{}{
	"tv":    {},
	"movie": {},
	"ova":   {},
	"ona":   {},
}

// Candidate is one catalog record, either a search-result summary or a full
// record. Raw preserves the API's own JSON object for prompt serialization.
type Candidate struct {
	MalID     int64
	Title     string
	Type      string
	Year      *int64
	AiredFrom string
	Synopsis  string
	ImageURL  string
	Raw       json.RawMessage
}

// Client is a Jikan v4 catalog client.
type Client struct {
	BaseURL string
	session *httpx.Session
	backoff time.Duration
}

// NewClient creates a catalog client on top of a shared session.
func NewClient(session *httpx.Session) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		session: session,
		backoff: rateLimitBackoff,
	}
}

type animeJSON struct {
	MalID int64  `json:"mal_id"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Year  *int64 `json:"year"`
	Aired struct {
		From string `json:"from"`
	} `json:"aired"`
	Synopsis string                    `json:"synopsis"`
	Images   map[string]map[string]any `json:"images"`
}

// SearchAnime searches the catalog by free-text title. Results are filtered
// to the accepted media types and de-duplicated by mal_id keeping the first
// occurrence, so the upstream ranking defines precedence.
func (c *Client) SearchAnime(ctx context.Context, title string) ([]Candidate, error) {
	slog.Info("Searching MyAnimeList", "title", title)

	endpoint := fmt.Sprintf("%s/anime?q=%s", c.BaseURL, url.QueryEscape(title))

	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to search anime: %w", err)
	}

	candidates := make([]Candidate, 0, len(resp.Data))
	seen := make(map[int64]struct{}, len(resp.Data))
	for i, raw := range resp.Data {
		cand, err := decodeCandidate(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode search result #%d: %w", i+1, err)
		}
		if _, ok := acceptedTypes[strings.ToLower(cand.Type)]; !ok {
			continue
		}
		if _, ok := seen[cand.MalID]; ok {
			continue
		}
		seen[cand.MalID] = struct{}{}

		slog.Info("Found candidate", "index", i+1, "mal_id", cand.MalID, "type", cand.Type, "title", cand.Title)
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// GetAnimeFull fetches the full catalog record for one ID.
func (c *Client) GetAnimeFull(ctx context.Context, malID int64) (*Candidate, error) {
	endpoint := fmt.Sprintf("%s/anime/%d/full", c.BaseURL, malID)

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch anime #%d: %w", malID, err)
	}
	cand, err := decodeCandidate(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode anime #%d: %w", malID, err)
	}
	return &cand, nil
}

// getJSON performs a GET with transparent 429 recovery. Any other HTTP
// error propagates unrecovered.
func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	for {
		err := c.session.GetJSON(ctx, endpoint, v)
		if err == nil {
			return nil
		}

		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 429 {
			slog.Warn("Rate limited by catalog API, backing off", "url", endpoint, "backoff", c.backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}
		return err
	}
}

func decodeCandidate(raw json.RawMessage) (Candidate, error) {
	var a animeJSON
	if err := json.Unmarshal(raw, &a); err != nil {
		return Candidate{}, err
	}
	return Candidate{
		MalID:     a.MalID,
		Title:     a.Title,
		Type:      a.Type,
		Year:      a.Year,
		AiredFrom: a.Aired.From,
		Synopsis:  a.Synopsis,
		ImageURL:  coverImageURL(a.Images),
		Raw:       raw,
	}, nil
}

// coverImageURL picks the best cover URL from the record's image map:
// jpg over webp, then the largest size available.
func coverImageURL(images map[string]map[string]any) string {
	for _, format := range []string{"jpg", "webp"} {
		section, ok := images[format]
		if !ok {
			continue
		}
		for _, key := range []string{"maximum_image_url", "large_image_url", "small_image_url", "image_url"} {
			if v, ok := section[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
