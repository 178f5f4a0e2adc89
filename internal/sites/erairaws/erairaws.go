// Package erairaws crawls the erai-raws index: the site-wide anime list,
// per-anime detail pages, and the per-anime release feed.
package erairaws

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/deepghs/anime-sites/internal/httpx"
	"github.com/deepghs/anime-sites/internal/sites"
)

const (
	defaultBaseURL = "https://www.erai-raws.info"

	// minListingEntries is the structural sanity floor for the site-wide
	// listing. The real list has many hundreds of entries; fewer means the
	// page layout changed and the run must stop.
	minListingEntries = 100
)

// Site is the erai-raws adapter. The main session carries the login
// cookie; the feed session must not, since the feed rejects logged-in
// requests.
type Site struct {
	session     *httpx.Session
	feedSession *httpx.Session
	baseURL     string
}

// New creates the adapter from an authenticated session and a plain
// session for feed reads.
func New(session, feedSession *httpx.Session) *Site {
	return &Site{session: session, feedSession: feedSession, baseURL: defaultBaseURL}
}

// Link is one named link found on a detail page.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ResourceLink is one download link of a release row, with the size and
// extra info the site attaches to expandable rows.
type ResourceLink struct {
	URL   string            `json:"url,omitempty"`
	Size  string            `json:"size,omitempty"`
	Ext   string            `json:"ext,omitempty"`
	Links map[string]string `json:"links,omitempty"`
}

// Resource is one release row of the "all releases" pane.
type Resource struct {
	Title       string                  `json:"title"`
	PageURL     string                  `json:"page_url"`
	Categories  []string                `json:"categories"`
	SecLinks    map[string]string       `json:"sec_links"`
	Languages   []string                `json:"langs"`
	PublishedAt int64                   `json:"published_at"`
	Resources   map[string]ResourceLink `json:"resource_urls"`
}

// Detail is the full record extracted from one anime detail page.
type Detail struct {
	Item            sites.SourceItem
	Story           string
	ExternalLinks   map[string]string
	OtherLinks      map[string]string
	Related         []Link
	RSSURL          string
	Resources       []Resource
	PublishedAt     time.Time
	LastPublishedAt time.Time
}

// ListItems enumerates the site-wide anime listing. A listing shorter than
// the sanity floor fails the whole run with a ValidationError.
func (s *Site) ListItems(ctx context.Context) ([]sites.Listing, error) {
	doc, finalURL, err := sites.FetchDocument(ctx, s.session, s.baseURL+"/anime-list/")
	if err != nil {
		return nil, err
	}

	var items []sites.Listing
	doc.Find("#main article .entry-content .tab-content div[id] table").Each(func(_ int, table *goquery.Selection) {
		table.Find("th a").Each(func(_ int, row *goquery.Selection) {
			href, _ := row.Attr("href")
			items = append(items, sites.Listing{
				Title: strings.TrimSpace(row.Text()),
				URL:   sites.ResolveURL(finalURL, href),
			})
		})
	})

	if len(items) < minListingEntries {
		return nil, &sites.ValidationError{
			Site:   "erairaws",
			Reason: fmt.Sprintf("invalid listing, should be no less than %d entries but %d found", minListingEntries, len(items)),
		}
	}
	return items, nil
}

// FetchDetail extracts the normalized record from one anime detail page.
func (s *Site) FetchDetail(ctx context.Context, pageURL string) (*Detail, error) {
	slog.Info("Accessing page", "url", pageURL)
	doc, finalURL, err := sites.FetchDocument(ctx, s.session, pageURL)
	if err != nil {
		return nil, err
	}

	if sites.PathSegment(finalURL, 0) != "anime-list" {
		return nil, &sites.FetchError{URL: pageURL, Err: fmt.Errorf("unexpected page path, anime-list expected")}
	}
	pageID := sites.PathSegment(finalURL, 1)

	main := doc.Find("#main")
	content := main.Find(".entry-content")
	title := strings.TrimSpace(main.Find("h1.entry-title").Text())
	if title == "" {
		return nil, &sites.FetchError{URL: pageURL, Err: fmt.Errorf("missing entry title")}
	}

	posterSrc, _ := content.Find(".entry-content-poster img").Attr("src")
	story := strings.TrimSpace(content.Find(".entry-content-story").Text())

	var related []Link
	content.Find(".entry-content-related ul li").Each(func(_ int, li *goquery.Selection) {
		href, _ := li.Find("a").Attr("href")
		related = append(related, Link{
			Title: strings.TrimSpace(li.Find("a").Text()),
			URL:   sites.ResolveURL(finalURL, href),
		})
	})

	externalLinks := map[string]string{}
	otherLinks := map[string]string{}
	var rssURL string
	content.Find(".entry-content-buttons").Each(func(_ int, group *goquery.Selection) {
		groupText := strings.ToLower(group.Text())
		switch {
		case strings.Contains(groupText, "more info:"):
			group.Find(".entry-sub-content-buttons").Each(func(_ int, btn *goquery.Selection) {
				href, _ := btn.Attr("href")
				externalLinks[strings.TrimSpace(btn.Text())] = sites.ResolveURL(finalURL, href)
			})
		case strings.Contains(groupText, "rss link"):
			group.Find("p").Each(func(_ int, p *goquery.Selection) {
				if strings.Contains(strings.ToLower(p.Text()), "rss link") && strings.Contains(p.Text(), "ALL") {
					if href, ok := p.Find("a").Attr("href"); ok {
						rssURL = sites.ResolveURL(finalURL, href)
					}
				}
			})
		case strings.Contains(groupText, "other:"):
			group.Find("a.entry-sub-content-buttons").Each(func(_ int, btn *goquery.Selection) {
				href, _ := btn.Attr("href")
				otherLinks[strings.TrimSpace(btn.Text())] = sites.ResolveURL(finalURL, href)
			})
		}
	})

	malID, err := malIDFromLinks(externalLinks)
	if err != nil {
		return nil, &sites.FetchError{URL: pageURL, Err: err}
	}

	resources := parseResources(main, finalURL)

	detail := &Detail{
		Item: sites.SourceItem{
			PageID:        pageID,
			Title:         title,
			URL:           finalURL,
			Synopsis:      story,
			CoverImageURL: sites.ResolveURL(finalURL, posterSrc),
			Episodes:      resourceEpisodes(resources),
			MALID:         malID,
		},
		Story:         story,
		ExternalLinks: externalLinks,
		OtherLinks:    otherLinks,
		Related:       related,
		RSSURL:        rssURL,
		Resources:     resources,
	}
	for _, res := range resources {
		t := time.Unix(res.PublishedAt, 0)
		if detail.PublishedAt.IsZero() || t.Before(detail.PublishedAt) {
			detail.PublishedAt = t
		}
		if t.After(detail.LastPublishedAt) {
			detail.LastPublishedAt = t
		}
	}
	return detail, nil
}

// malIDFromLinks extracts the MAL ID from the "More Info" link set, when
// the page carries one.
func malIDFromLinks(externalLinks map[string]string) (int64, error) {
	malURL, ok := externalLinks["MAL"]
	if !ok {
		return 0, nil
	}
	if sites.PathSegment(malURL, 0) != "anime" {
		return 0, fmt.Errorf("anime link expected but %q found", malURL)
	}
	id, err := strconv.ParseInt(sites.PathSegment(malURL, 1), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed MAL link %q: %w", malURL, err)
	}
	return id, nil
}

func parseResources(main *goquery.Selection, finalURL string) []Resource {
	var pane *goquery.Selection
	main.Find(".tab-content > .tab-pane").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(strings.TrimSpace(p.Find("h4.alphabet-title").Text())), "all release") {
			pane = p
			return false
		}
		return true
	})
	if pane == nil {
		return nil
	}

	var resources []Resource
	pane.Find("table.table").Each(func(_ int, table *goquery.Selection) {
		var categories []string
		table.Find("tr:nth-child(1) th a[data-title]").Each(func(_ int, a *goquery.Selection) {
			if v, ok := a.Attr("data-title"); ok {
				categories = append(categories, v)
			}
		})

		titleLink := table.Find("tr:nth-child(1) th a.aa_ss_ops_new")
		href, _ := titleLink.Attr("href")

		secLinks := map[string]string{}
		table.Find("tr:nth-child(2) th a.sub_ddl_box").Each(func(_ int, a *goquery.Selection) {
			name := strings.TrimSpace(a.Text())
			link, _ := a.Attr("href")
			if !strings.Contains(strings.ToLower(name), "magnet") {
				link = sites.ResolveURL(finalURL, link)
			}
			secLinks[name] = link
		})

		var langs []string
		table.Find("tr:nth-child(2) th span.tooltip3[data-title]").Each(func(_ int, span *goquery.Selection) {
			if v, ok := span.Attr("data-title"); ok {
				langs = append(langs, v)
			}
		})

		var publishedAt int64
		if clock := strings.TrimSpace(table.Find("tr:nth-child(3) th font.clock_font").Text()); clock != "" {
			if t, err := dateparse.ParseAny(clock); err == nil {
				publishedAt = t.Unix()
			}
		}

		resourceURLs := map[string]ResourceLink{}
		expandable := map[string]string{}
		table.Find("tr:nth-child(3) th span").Each(func(_ int, span *goquery.Selection) {
			a := span.Find("a")
			name := strings.TrimSpace(a.Text())
			if href, ok := a.Attr("href"); ok {
				if !strings.Contains(strings.ToLower(name), "magnet") {
					href = sites.ResolveURL(finalURL, href)
				}
				resourceURLs[name] = ResourceLink{URL: href}
			} else if id, ok := span.Attr("id"); ok {
				expandable[name] = id
			}
		})
		for name, rowID := range expandable {
			resourceURLs[name] = parseExpandableRow(table, rowID, finalURL)
		}

		resources = append(resources, Resource{
			Title:       strings.TrimSpace(titleLink.Text()),
			PageURL:     sites.ResolveURL(finalURL, href),
			Categories:  categories,
			SecLinks:    secLinks,
			Languages:   langs,
			PublishedAt: publishedAt,
			Resources:   resourceURLs,
		})
	})
	return resources
}

// parseExpandableRow reads the hidden row carrying size/extra info and the
// per-quality download links.
func parseExpandableRow(table *goquery.Selection, rowID, finalURL string) ResourceLink {
	row := table.Find(fmt.Sprintf("tr[class~=%q]", rowID))
	link := ResourceLink{Links: map[string]string{}}

	spanText := row.Find("th > span").First().Text()
	for _, seg := range strings.SplitN(spanText, "|", 3) {
		seg = strings.TrimSpace(seg)
		if strings.Contains(strings.ToLower(seg), "size") {
			parts := strings.SplitN(seg, ":", 2)
			link.Size = strings.TrimSpace(parts[len(parts)-1])
		} else if link.Size != "" && seg != "" {
			link.Ext = seg
		}
	}

	row.Find("th > a").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		if !strings.Contains(strings.ToLower(name), "magnet") {
			href = sites.ResolveURL(finalURL, href)
		}
		link.Links[name] = href
	})
	return link
}

// resourceEpisodes projects release rows into the generic episode list fed
// to the resolver.
func resourceEpisodes(resources []Resource) []sites.Episode {
	episodes := make([]sites.Episode, 0, len(resources))
	for _, res := range resources {
		ep := sites.Episode{Name: res.Title}
		if res.PublishedAt > 0 {
			ep.ReleasedAt = time.Unix(res.PublishedAt, 0)
		}
		episodes = append(episodes, ep)
	}
	return episodes
}

// feedURLWithTier rewrites the feed URL for one quality tier.
func feedURLWithTier(rssURL, tier string) (string, error) {
	u, err := url.Parse(rssURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("res", tier)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
