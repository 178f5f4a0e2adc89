package synccmd

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/deepghs/anime-sites/internal/parallel"
	"github.com/deepghs/anime-sites/internal/sites"
	"github.com/deepghs/anime-sites/internal/sites/subsplease"
	"github.com/deepghs/anime-sites/internal/sync"
)

// SubspleaseRow is one persisted record of the subsplease pipeline.
type SubspleaseRow struct {
	PageID string `parquet:"page_id" json:"page_id"`
	MalID  *int64 `parquet:"mal_id,optional" json:"mal_id"`
	Year   *int64 `parquet:"year,optional" json:"year"`
	Reason string `parquet:"reason" json:"reason"`

	SubsTitle         string `parquet:"subsplease_title" json:"subsplease_title"`
	SubsURL           string `parquet:"subsplease_url" json:"subsplease_url"`
	SubsSynopsis      string `parquet:"subsplease_synopsis" json:"subsplease_synopsis"`
	SubsCoverImageURL string `parquet:"subsplease_cover_image_url" json:"subsplease_cover_image_url"`
	SubsBatch         string `parquet:"subsplease_batch" json:"subsplease_batch"`
	SubsEpisode       string `parquet:"subsplease_episode" json:"subsplease_episode"`

	MalTitle         string `parquet:"mal_title" json:"mal_title"`
	MalType          string `parquet:"mal_type" json:"mal_type"`
	MalRaw           string `parquet:"mal_raw" json:"mal_raw"`
	MalCoverImageURL string `parquet:"mal_cover_image_url" json:"mal_cover_image_url"`
}

func (r SubspleaseRow) Key() string { return r.PageID }

func (r SubspleaseRow) Settled() bool { return r.MalID != nil && *r.MalID != 0 }

func (r SubspleaseRow) SortYear() int64 {
	if r.Year == nil {
		return 0
	}
	return *r.Year
}

func describeSubsplease(r SubspleaseRow) sync.Entry {
	entry := sync.Entry{
		PageID: r.PageID,
		MalID:  r.MalID,
		Title:  r.SubsTitle,
		URL:    r.SubsURL,
		Year:   r.Year,
		Reason: r.Reason,
	}
	if r.Settled() && r.MalCoverImageURL != "" {
		entry.CoverURL = r.MalCoverImageURL
		entry.CoverPath = path.Join("images", r.PageID+".jpg")
	}
	return entry
}

// ExecuteSubsplease runs the subsplease sync pipeline end to end.
func ExecuteSubsplease(ctx context.Context, opts Options) error {
	p, cleanup, err := newPipeline(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	site := subsplease.New(p.session)
	engine := sync.NewEngine[SubspleaseRow](sync.Options{
		Hub:        p.hub,
		Repository: opts.Repository,
		Source:     "subsplease",
		WorkDir:    p.workDir,
		DeploySpan: p.deploySpan(),
		UploadSpan: p.uploadSpan(),
		Fetcher:    p.fetcher,
		Workers:    p.cfg.Concurrency,
	}, describeSubsplease)

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
	slog.Info("Listed items", "site", "subsplease", "count", len(items))

	var progress parallel.Progress
	summary := parallel.Run(items, p.cfg.Concurrency, &progress, func(listing sites.Listing) error {
		pageID := sites.PathSegment(listing.URL, 1)
		if pageID == "" {
			return fmt.Errorf("cannot derive page id from %s", listing.URL)
		}
		if skipExisting(engine, pageID, listing.Title, opts.Resync) {
			return nil
		}

		row, err := resolveSubsplease(ctx, p, site, listing.URL)
		if err != nil {
			return err
		}
		engine.Upsert(*row)
		return engine.Flush(ctx, false)
	})
	slog.Info("Run finished", "site", "subsplease", "completed", summary.Completed, "failed", summary.Failed)

	return engine.Flush(ctx, true)
}

func resolveSubsplease(ctx context.Context, p *pipeline, site *subsplease.Site, pageURL string) (*SubspleaseRow, error) {
	detail, err := site.FetchDetail(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	res, err := p.resolver.Resolve(ctx, &detail.Item)
	if err != nil {
		return nil, err
	}

	row := &SubspleaseRow{
		PageID:            detail.Item.PageID,
		MalID:             res.MalID,
		Year:              res.Year,
		Reason:            res.Reason,
		SubsTitle:         detail.Item.Title,
		SubsURL:           detail.Item.URL,
		SubsSynopsis:      detail.Item.Synopsis,
		SubsCoverImageURL: detail.Item.CoverImageURL,
		SubsBatch:         jsonText(detail.Batches),
		SubsEpisode:       jsonText(detail.Episodes),
	}
	if res.Candidate != nil {
		row.MalTitle = res.Candidate.Title
		row.MalType = res.Candidate.Type
		row.MalRaw = string(res.Candidate.Raw)
		row.MalCoverImageURL = res.Candidate.ImageURL
	}
	return row, nil
}

// skipExisting applies the re-sync policy: settled rows are never touched
// again, and already-attempted rows are only retried in resync mode.
func skipExisting[T sync.Row](engine *sync.Engine[T], pageID, title string, resync bool) bool {
	row, ok := engine.Lookup(pageID)
	if !ok {
		return false
	}
	if row.Settled() {
		slog.Warn("Item already matched, skipped", "page_id", pageID, "title", title)
		return true
	}
	if !resync {
		slog.Warn("Item already attempted, skipped", "page_id", pageID, "title", title)
		return true
	}
	return false
}
