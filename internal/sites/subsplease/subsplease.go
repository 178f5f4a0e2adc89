// Package subsplease crawls the subsplease index: the shows listing,
// per-show detail pages, and the release API keyed off the show's sid.
package subsplease

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/deepghs/anime-sites/internal/httpx"
	"github.com/deepghs/anime-sites/internal/sites"
)

const (
	defaultBaseURL = "https://subsplease.org"

	// minListingEntries is the structural sanity floor for the shows
	// listing.
	minListingEntries = 100
)

// Site is the subsplease adapter.
type Site struct {
	session *httpx.Session
	baseURL string
}

// New creates the adapter.
func New(session *httpx.Session) *Site {
	return &Site{session: session, baseURL: defaultBaseURL}
}

// Release is one batch or episode release from the show API.
type Release struct {
	Episode     string `json:"episode"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
}

// Detail is the full record extracted from one show page.
type Detail struct {
	Item     sites.SourceItem
	Batches  []Release
	Episodes []Release
}

// ListItems enumerates the site-wide shows listing.
func (s *Site) ListItems(ctx context.Context) ([]sites.Listing, error) {
	doc, finalURL, err := sites.FetchDocument(ctx, s.session, s.baseURL+"/shows/")
	if err != nil {
		return nil, err
	}

	var items []sites.Listing
	doc.Find("#main .all-shows .all-shows-link").Each(func(_ int, show *goquery.Selection) {
		href, _ := show.Find("a").Attr("href")
		items = append(items, sites.Listing{
			Title: strings.TrimSpace(show.Find("a").Text()),
			URL:   sites.ResolveURL(finalURL, href),
		})
	})

	if len(items) < minListingEntries {
		return nil, &sites.ValidationError{
			Site:   "subsplease",
			Reason: fmt.Sprintf("invalid listing, should be no less than %d entries but %d found", minListingEntries, len(items)),
		}
	}
	return items, nil
}

// FetchDetail extracts the normalized record from one show page, including
// the release lists fetched from the show API when the page exposes a sid.
func (s *Site) FetchDetail(ctx context.Context, pageURL string) (*Detail, error) {
	slog.Info("Accessing page", "url", pageURL)
	doc, finalURL, err := sites.FetchDocument(ctx, s.session, pageURL)
	if err != nil {
		return nil, err
	}

	if sites.PathSegment(finalURL, 0) != "shows" {
		return nil, &sites.FetchError{URL: pageURL, Err: fmt.Errorf("unexpected page path, shows expected")}
	}
	pageID := sites.PathSegment(finalURL, 1)

	title := strings.TrimSpace(doc.Find("h1.entry-title").Text())
	if title == "" {
		return nil, &sites.FetchError{URL: pageURL, Err: fmt.Errorf("missing entry title")}
	}
	synopsis := strings.TrimSpace(doc.Find(".series-syn").Text())

	var coverURL string
	if src, ok := doc.Find("#site-sidebar img.img-center").Attr("src"); ok {
		coverURL = sites.ResolveURL(finalURL, src)
	}

	detail := &Detail{
		Item: sites.SourceItem{
			PageID:        pageID,
			Title:         title,
			URL:           finalURL,
			Synopsis:      synopsis,
			CoverImageURL: coverURL,
		},
	}

	var hints strings.Builder
	hints.WriteString(strings.TrimSpace(doc.Find("div.entry-content").Text()))
	hints.WriteString("\n\n")

	if sid, ok := doc.Find("#show-release-table").Attr("sid"); ok && sid != "" {
		slog.Info("Getting release list", "sid", sid)
		batches, episodes, err := s.fetchReleases(ctx, sid)
		if err != nil {
			return nil, err
		}
		detail.Batches = batches
		detail.Episodes = episodes

		writeReleaseSection(&hints, "Batch", batches)
		writeReleaseSection(&hints, "Episodes", episodes)
	}

	detail.Item.Hints = hints.String()
	detail.Item.Episodes = sourceEpisodes(detail.Batches, detail.Episodes)
	return detail, nil
}

// fetchReleases queries the show API once and splits the reply into batch
// and episode release lists, each ordered by release key.
func (s *Site) fetchReleases(ctx context.Context, sid string) (batches, episodes []Release, err error) {
	q := url.Values{}
	q.Set("f", "show")
	q.Set("tz", "Asia/Tokyo")
	q.Set("sid", sid)
	endpoint := s.baseURL + "/api/?" + q.Encode()

	var payload struct {
		Batch   map[string]Release `json:"batch"`
		Episode map[string]Release `json:"episode"`
	}
	if err := s.session.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, nil, &sites.FetchError{URL: endpoint, Err: err}
	}
	return sortedReleases(payload.Batch), sortedReleases(payload.Episode), nil
}

func sortedReleases(m map[string]Release) []Release {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Release, 0, len(m))
	for _, k := range keys {
		r := m[k]
		if r.Name == "" {
			r.Name = k
		}
		out = append(out, r)
	}
	return out
}

func writeReleaseSection(sb *strings.Builder, header string, releases []Release) {
	if len(releases) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s\n\n", header)
	for _, r := range releases {
		fmt.Fprintf(sb, "#%s - %q - %s\n", r.Episode, r.Name, r.ReleaseDate)
	}
	sb.WriteString("\n")
}

func sourceEpisodes(lists ...[]Release) []sites.Episode {
	var episodes []sites.Episode
	for _, list := range lists {
		for _, r := range list {
			ep := sites.Episode{Label: r.Episode, Name: r.Name}
			if r.ReleaseDate != "" {
				if t, err := dateparse.ParseAny(r.ReleaseDate); err == nil {
					ep.ReleasedAt = t
				}
			}
			episodes = append(episodes, ep)
		}
	}
	return episodes
}
