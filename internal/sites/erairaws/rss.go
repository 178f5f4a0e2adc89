package erairaws

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/araddon/dateparse"
	"github.com/deepghs/anime-sites/internal/sites"
)

// feedTiers is the fixed quality preference order for the release feed.
// The feed is queried once per tier and the first non-empty tier wins;
// tiers are never merged.
var feedTiers = []string{"1080p", "720p", "SD"}

// FeedEntry is one release entry from the per-anime feed.
type FeedEntry struct {
	Title       string
	Link        string
	PublishedAt time.Time
}

// Feed is the release list of one quality tier.
type Feed struct {
	Tier    string
	Entries []FeedEntry
}

type rssDocument struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// FetchFeed enumerates release entries through the detail page's feed URL,
// falling through the tier preference list until one returns entries.
func (s *Site) FetchFeed(ctx context.Context, rssURL string) (*Feed, error) {
	if rssURL == "" {
		return nil, &sites.FetchError{URL: rssURL, Err: fmt.Errorf("no feed URL on detail page")}
	}

	for _, tier := range feedTiers {
		tierURL, err := feedURLWithTier(rssURL, tier)
		if err != nil {
			return nil, &sites.FetchError{URL: rssURL, Err: err}
		}

		slog.Info("Querying release feed", "url", tierURL, "tier", tier)
		entries, err := s.fetchFeedOnce(ctx, tierURL)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return &Feed{Tier: tier, Entries: entries}, nil
		}
	}
	return &Feed{}, nil
}

func (s *Site) fetchFeedOnce(ctx context.Context, feedURL string) ([]FeedEntry, error) {
	resp, err := s.feedSession.Get(ctx, feedURL)
	if err != nil {
		return nil, &sites.FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &sites.FetchError{URL: feedURL, Err: err}
	}

	var doc rssDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &sites.FetchError{URL: feedURL, Err: fmt.Errorf("malformed feed: %w", err)}
	}

	entries := make([]FeedEntry, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		entry := FeedEntry{Title: item.Title, Link: item.Link}
		if item.PubDate != "" {
			if t, err := dateparse.ParseAny(item.PubDate); err == nil {
				entry.PublishedAt = t
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
