package subsplease

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deepghs/anime-sites/internal/httpx"
	"github.com/deepghs/anime-sites/internal/sites"
)

const detailPage = `<html><body>
<div id="site-sidebar"><img class="img-center" src="/images/frieren.jpg"></div>
<div id="main">
<h1 class="entry-title">Sousou no Frieren</h1>
<div class="entry-content">
<div class="series-syn"><p>The adventure is over but life goes on.</p></div>
<table id="show-release-table" sid="123"></table>
</div>
</div>
</body></html>`

const releaseReply = `{
	"batch": {
		"Sousou no Frieren (01-28) (1080p) [Batch]": {"episode": "01-28", "release_date": "03/29/24"}
	},
	"episode": {
		"k2": {"episode": "02", "name": "Sousou no Frieren - 02", "release_date": "09/30/23"},
		"k1": {"episode": "01", "name": "Sousou no Frieren - 01", "release_date": "09/29/23"}
	}
}`

func newDetailServer(t *testing.T) (*httptest.Server, *Site) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/shows/sousou-no-frieren"):
			io.WriteString(w, detailPage)
		case r.URL.Path == "/api/":
			if r.URL.Query().Get("f") != "show" || r.URL.Query().Get("sid") != "123" {
				t.Errorf("unexpected api query: %s", r.URL.RawQuery)
			}
			io.WriteString(w, releaseReply)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	site := New(httpx.NewSession())
	site.baseURL = srv.URL
	return srv, site
}

func TestFetchDetail(t *testing.T) {
	srv, site := newDetailServer(t)

	detail, err := site.FetchDetail(context.Background(), srv.URL+"/shows/sousou-no-frieren/")
	if err != nil {
		t.Fatalf("FetchDetail failed: %v", err)
	}

	if detail.Item.PageID != "sousou-no-frieren" {
		t.Errorf("page id = %q", detail.Item.PageID)
	}
	if detail.Item.Title != "Sousou no Frieren" {
		t.Errorf("title = %q", detail.Item.Title)
	}
	if detail.Item.Synopsis != "The adventure is over but life goes on." {
		t.Errorf("synopsis = %q", detail.Item.Synopsis)
	}
	if detail.Item.CoverImageURL != srv.URL+"/images/frieren.jpg" {
		t.Errorf("cover = %q", detail.Item.CoverImageURL)
	}

	if len(detail.Batches) != 1 || detail.Batches[0].Episode != "01-28" {
		t.Errorf("batches = %+v", detail.Batches)
	}
	// Episode map keys sort the list, k1 before k2.
	if len(detail.Episodes) != 2 || detail.Episodes[0].Episode != "01" || detail.Episodes[1].Episode != "02" {
		t.Errorf("episodes = %+v", detail.Episodes)
	}
	// The batch entry has no name, so its map key stands in.
	if detail.Batches[0].Name != "Sousou no Frieren (01-28) (1080p) [Batch]" {
		t.Errorf("batch name = %q", detail.Batches[0].Name)
	}

	if !strings.Contains(detail.Item.Hints, "Batch") || !strings.Contains(detail.Item.Hints, "Episodes") {
		t.Errorf("hints missing release sections: %q", detail.Item.Hints)
	}

	// Batch plus both episodes feed the normalized episode list.
	if len(detail.Item.Episodes) != 3 {
		t.Fatalf("source episodes = %d, want 3", len(detail.Item.Episodes))
	}
	if detail.Item.EarliestRelease().Year() != 2023 {
		t.Errorf("earliest release year = %d, want 2023", detail.Item.EarliestRelease().Year())
	}
}

func TestFetchDetailRejectsNonShowPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body></body></html>")
	}))
	defer srv.Close()

	site := New(httpx.NewSession())
	site.baseURL = srv.URL

	_, err := site.FetchDetail(context.Background(), srv.URL+"/news/some-post/")
	if err == nil {
		t.Fatal("expected error for non-show path")
	}
	var fetchErr *sites.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
}

func TestListItemsValidatesEntryCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><div id="main"><div class="all-shows">
<div class="all-shows-link"><a href="/shows/a/">Show A</a></div>
<div class="all-shows-link"><a href="/shows/b/">Show B</a></div>
</div></div></body></html>`)
	}))
	defer srv.Close()

	site := New(httpx.NewSession())
	site.baseURL = srv.URL

	_, err := site.ListItems(context.Background())
	if err == nil {
		t.Fatal("expected error for short listing")
	}
	var validationErr *sites.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestListItems(t *testing.T) {
	var body strings.Builder
	body.WriteString(`<html><body><div id="main"><div class="all-shows">`)
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&body, `<div class="all-shows-link"><a href="/shows/show-%d/">Show %d</a></div>`, i, i)
	}
	body.WriteString(`</div></div></body></html>`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body.String())
	}))
	defer srv.Close()

	site := New(httpx.NewSession())
	site.baseURL = srv.URL

	items, err := site.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 120 {
		t.Fatalf("items = %d, want 120", len(items))
	}
	if items[0].Title != "Show 0" || items[0].URL != srv.URL+"/shows/show-0/" {
		t.Errorf("first item = %+v", items[0])
	}
}
