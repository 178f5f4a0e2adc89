package synccmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/deepghs/anime-sites/internal/config"
	"github.com/deepghs/anime-sites/internal/httpx"
	"github.com/deepghs/anime-sites/internal/parallel"
	"github.com/deepghs/anime-sites/internal/sites"
	"github.com/deepghs/anime-sites/internal/sites/erairaws"
	"github.com/deepghs/anime-sites/internal/sync"
)

// ErairawsRow is one persisted record of the erai-raws pipeline.
type ErairawsRow struct {
	PageID string `parquet:"page_id" json:"page_id"`
	MalID  *int64 `parquet:"mal_id,optional" json:"mal_id"`
	Year   *int64 `parquet:"year,optional" json:"year"`
	Reason string `parquet:"reason" json:"reason"`

	EraiTitle           string `parquet:"erairaws_title" json:"erairaws_title"`
	EraiURL             string `parquet:"erairaws_url" json:"erairaws_url"`
	EraiStory           string `parquet:"erairaws_story" json:"erairaws_story"`
	EraiCoverImageURL   string `parquet:"erairaws_cover_image_url" json:"erairaws_cover_image_url"`
	EraiExternalLinks   string `parquet:"erairaws_external_links" json:"erairaws_external_links"`
	EraiOtherLinks      string `parquet:"erairaws_other_links" json:"erairaws_other_links"`
	EraiRelated         string `parquet:"erairaws_related" json:"erairaws_related"`
	EraiResources       string `parquet:"erairaws_resources" json:"erairaws_resources"`
	EraiRSSURL          string `parquet:"erairaws_rss_url" json:"erairaws_rss_url"`
	EraiRSSTier         string `parquet:"erairaws_rss_tier" json:"erairaws_rss_tier"`
	EraiRSSEntries      string `parquet:"erairaws_rss_entries" json:"erairaws_rss_entries"`
	EraiPublishedAt     int64  `parquet:"erairaws_published_at" json:"erairaws_published_at"`
	EraiLastPublishedAt int64  `parquet:"erairaws_last_published_at" json:"erairaws_last_published_at"`

	MalTitle         string `parquet:"mal_title" json:"mal_title"`
	MalType          string `parquet:"mal_type" json:"mal_type"`
	MalRaw           string `parquet:"mal_raw" json:"mal_raw"`
	MalCoverImageURL string `parquet:"mal_cover_image_url" json:"mal_cover_image_url"`
}

func (r ErairawsRow) Key() string { return r.PageID }

func (r ErairawsRow) Settled() bool { return r.MalID != nil && *r.MalID != 0 }

func (r ErairawsRow) SortYear() int64 {
	if r.Year == nil {
		return 0
	}
	return *r.Year
}

func describeErairaws(r ErairawsRow) sync.Entry {
	entry := sync.Entry{
		PageID: r.PageID,
		MalID:  r.MalID,
		Title:  r.EraiTitle,
		URL:    r.EraiURL,
		Year:   r.Year,
		Reason: r.Reason,
	}
	if r.Settled() && r.MalCoverImageURL != "" {
		entry.CoverURL = r.MalCoverImageURL
		entry.CoverPath = path.Join("images", r.PageID+".jpg")
	}
	return entry
}

// ExecuteErairaws runs the erai-raws sync pipeline end to end. The site
// requires a login cookie for detail pages, while its RSS feeds reject
// logged-in sessions, so the adapter gets two sessions.
func ExecuteErairaws(ctx context.Context, opts Options) error {
	if err := config.RequireEnv("ERAI_RAWS_COOKIE"); err != nil {
		return err
	}
	p, cleanup, err := newPipeline(opts, httpx.WithCookie(os.Getenv("ERAI_RAWS_COOKIE")))
	if err != nil {
		return err
	}
	defer cleanup()

	site := erairaws.New(p.session, httpx.NewSession())
	engine := sync.NewEngine[ErairawsRow](sync.Options{
		Hub:        p.hub,
		Repository: opts.Repository,
		Source:     "erairaws",
		WorkDir:    p.workDir,
		DeploySpan: p.deploySpan(),
		UploadSpan: p.uploadSpan(),
		Fetcher:    p.fetcher,
		Workers:    p.cfg.Concurrency,
	}, describeErairaws)

	if err := engine.Bootstrap(ctx); err != nil {
		return err
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}

	items, err := site.ListItems(ctx)
	if err != nil {
		return err
	}
	slog.Info("Listed items", "site", "erairaws", "count", len(items))

	var progress parallel.Progress
	summary := parallel.Run(items, p.cfg.Concurrency, &progress, func(listing sites.Listing) error {
		pageID := sites.PathSegment(listing.URL, 1)
		if pageID == "" {
			return fmt.Errorf("cannot derive page id from %s", listing.URL)
		}
		if skipExisting(engine, pageID, listing.Title, opts.Resync) {
			return nil
		}

		row, err := resolveErairaws(ctx, p, site, listing.URL)
		if err != nil {
			return err
		}
		engine.Upsert(*row)
		return engine.Flush(ctx, false)
	})
	slog.Info("Run finished", "site", "erairaws", "completed", summary.Completed, "failed", summary.Failed)

	return engine.Flush(ctx, true)
}

func resolveErairaws(ctx context.Context, p *pipeline, site *erairaws.Site, pageURL string) (*ErairawsRow, error) {
	detail, err := site.FetchDetail(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	res, err := p.resolver.Resolve(ctx, &detail.Item)
	if err != nil {
		return nil, err
	}

	row := &ErairawsRow{
		PageID:            detail.Item.PageID,
		MalID:             res.MalID,
		Year:              res.Year,
		Reason:            res.Reason,
		EraiTitle:         detail.Item.Title,
		EraiURL:           detail.Item.URL,
		EraiStory:         detail.Story,
		EraiCoverImageURL: detail.Item.CoverImageURL,
		EraiExternalLinks: jsonText(detail.ExternalLinks),
		EraiOtherLinks:    jsonText(detail.OtherLinks),
		EraiRelated:       jsonText(detail.Related),
		EraiResources:     jsonText(detail.Resources),
		EraiRSSURL:        detail.RSSURL,
	}
	if !detail.PublishedAt.IsZero() {
		row.EraiPublishedAt = detail.PublishedAt.Unix()
	}
	if !detail.LastPublishedAt.IsZero() {
		row.EraiLastPublishedAt = detail.LastPublishedAt.Unix()
	}
	if detail.RSSURL != "" {
		feed, err := site.FetchFeed(ctx, detail.RSSURL)
		if err != nil {
			slog.Warn("Feed read failed, keeping page data", "page_id", row.PageID, "err", err)
		} else if feed != nil {
			row.EraiRSSTier = feed.Tier
			row.EraiRSSEntries = jsonText(feed.Entries)
		}
	}
	if res.Candidate != nil {
		row.MalTitle = res.Candidate.Title
		row.MalType = res.Candidate.Type
		row.MalRaw = string(res.Candidate.Raw)
		row.MalCoverImageURL = res.Candidate.ImageURL
	}
	return row, nil
}
