// Package sites defines the shared contract for the source site adapters:
// the normalized item record they produce and the error taxonomy the sync
// loop dispatches on.
package sites

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/deepghs/anime-sites/internal/httpx"
)

// Listing is one (title, page URL) pair from a site-wide index page.
type Listing struct {
	Title string
	URL   string
}

// Episode is one release entry attached to a source item: an episode or
// batch release with its label and publish time.
type Episode struct {
	Label      string
	Name       string
	ReleasedAt time.Time
}

// SourceItem is the normalized record a site adapter extracts from one
// detail page. It is immutable once produced and is folded into the
// persisted row by the sync engine, never stored directly.
type SourceItem struct {
	PageID        string
	Title         string
	URL           string
	Synopsis      string
	Hints         string
	CoverImageURL string
	Episodes      []Episode

	// MALID is a catalog ID discovered as an explicit link on the page,
	// 0 when the page carries none. When set, resolution is deterministic.
	MALID int64
}

// EarliestRelease returns the oldest release timestamp across the item's
// episodes, or the zero time when the item has none.
func (s *SourceItem) EarliestRelease() time.Time {
	var min time.Time
	for _, ep := range s.Episodes {
		if ep.ReleasedAt.IsZero() {
			continue
		}
		if min.IsZero() || ep.ReleasedAt.Before(min) {
			min = ep.ReleasedAt
		}
	}
	return min
}

// FetchError indicates a single page could not be fetched or did not have
// the expected structure. Fatal to the item, not to the run.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ValidationError indicates a site-wide structural invariant is broken,
// e.g. a listing page with far fewer entries than the site really has.
// Fatal to the whole run: continuing would corrupt the dataset.
type ValidationError struct {
	Site   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Site, e.Reason)
}

// FetchDocument fetches a page and parses it into a goquery document. The
// returned URL is the final URL after redirects, for resolving relative
// links.
func FetchDocument(ctx context.Context, session *httpx.Session, pageURL string) (*goquery.Document, string, error) {
	resp, err := session.Get(ctx, pageURL)
	if err != nil {
		return nil, "", &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", &FetchError{URL: pageURL, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}
	return doc, resp.Request.URL.String(), nil
}

// ResolveURL resolves a possibly-relative href against a base URL.
func ResolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// PathSegment returns the n-th non-empty path segment of a URL, or "" when
// out of range. Adapters use it to derive stable page identifiers.
func PathSegment(rawURL string, n int) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segs := make([]string, 0, 4)
	for _, s := range splitPath(u.Path) {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if n < 0 || n >= len(segs) {
		return ""
	}
	return segs[n]
}

func splitPath(p string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}
	return out
}
