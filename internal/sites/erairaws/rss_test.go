package erairaws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deepghs/anime-sites/internal/httpx"
)

func rssBody(titles ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel>`
	for _, title := range titles {
		body += fmt.Sprintf(`<item><title>%s</title><link>https://example.com/dl</link><pubDate>Sat, 05 Apr 2025 12:30:00 +0000</pubDate></item>`, title)
	}
	return body + `</channel></rss>`
}

func newFeedSite(srv *httptest.Server) *Site {
	return New(httpx.NewSession(), httpx.NewSession())
}

func TestFetchFeedPrefersHighestTier(t *testing.T) {
	var queried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := r.URL.Query().Get("res")
		queried = append(queried, tier)
		io.WriteString(w, rssBody("[Erai-raws] Some Show - 01 [1080p]"))
	}))
	defer srv.Close()

	feed, err := newFeedSite(srv).FetchFeed(context.Background(), srv.URL+"/rss/?id=1")
	if err != nil {
		t.Fatalf("FetchFeed failed: %v", err)
	}
	if feed.Tier != "1080p" {
		t.Errorf("tier = %q, want 1080p", feed.Tier)
	}
	if len(queried) != 1 {
		t.Errorf("queried tiers = %v, want only 1080p", queried)
	}
	if len(feed.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(feed.Entries))
	}
	entry := feed.Entries[0]
	if entry.Title != "[Erai-raws] Some Show - 01 [1080p]" || entry.Link != "https://example.com/dl" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.PublishedAt.IsZero() {
		t.Error("publish time not parsed")
	}
}

func TestFetchFeedFallsThroughEmptyTiers(t *testing.T) {
	var queried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := r.URL.Query().Get("res")
		queried = append(queried, tier)
		if tier == "720p" {
			io.WriteString(w, rssBody("[Erai-raws] Some Show - 01 [720p]", "[Erai-raws] Some Show - 02 [720p]"))
			return
		}
		io.WriteString(w, rssBody())
	}))
	defer srv.Close()

	feed, err := newFeedSite(srv).FetchFeed(context.Background(), srv.URL+"/rss/?id=1")
	if err != nil {
		t.Fatalf("FetchFeed failed: %v", err)
	}
	if feed.Tier != "720p" {
		t.Errorf("tier = %q, want 720p", feed.Tier)
	}
	if len(feed.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(feed.Entries))
	}
	// 1080p came up empty, 720p had entries, SD must not be queried:
	// tiers are never merged.
	if len(queried) != 2 || queried[0] != "1080p" || queried[1] != "720p" {
		t.Errorf("queried tiers = %v, want [1080p 720p]", queried)
	}
}

func TestFetchFeedAllTiersEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, rssBody())
	}))
	defer srv.Close()

	feed, err := newFeedSite(srv).FetchFeed(context.Background(), srv.URL+"/rss/?id=1")
	if err != nil {
		t.Fatalf("FetchFeed failed: %v", err)
	}
	if feed.Tier != "" || len(feed.Entries) != 0 {
		t.Errorf("feed = %+v, want empty", feed)
	}
}

func TestFetchFeedRejectsMissingURL(t *testing.T) {
	site := New(httpx.NewSession(), httpx.NewSession())
	if _, err := site.FetchFeed(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty feed URL")
	}
}
