package synccmd

import (
	"context"
	"log/slog"
	"path"

	"github.com/deepghs/anime-sites/internal/parallel"
	"github.com/deepghs/anime-sites/internal/sites/fancaps"
	"github.com/deepghs/anime-sites/internal/sync"
)

// FancapsRow is one persisted record of the fancaps pipeline.
type FancapsRow struct {
	PageID string `parquet:"page_id" json:"page_id"`
	MalID  *int64 `parquet:"mal_id,optional" json:"mal_id"`
	Year   *int64 `parquet:"year,optional" json:"year"`
	Reason string `parquet:"reason" json:"reason"`

	FancapsTitle    string `parquet:"fancaps_title" json:"fancaps_title"`
	FancapsURL      string `parquet:"fancaps_url" json:"fancaps_url"`
	FancapsEpisodes string `parquet:"fancaps_episodes" json:"fancaps_episodes"`

	MalTitle         string `parquet:"mal_title" json:"mal_title"`
	MalType          string `parquet:"mal_type" json:"mal_type"`
	MalRaw           string `parquet:"mal_raw" json:"mal_raw"`
	MalCoverImageURL string `parquet:"mal_cover_image_url" json:"mal_cover_image_url"`
}

func (r FancapsRow) Key() string { return r.PageID }

func (r FancapsRow) Settled() bool { return r.MalID != nil && *r.MalID != 0 }

func (r FancapsRow) SortYear() int64 {
	if r.Year == nil {
		return 0
	}
	return *r.Year
}

func describeFancaps(r FancapsRow) sync.Entry {
	entry := sync.Entry{
		PageID: r.PageID,
		MalID:  r.MalID,
		Title:  r.FancapsTitle,
		URL:    r.FancapsURL,
		Year:   r.Year,
		Reason: r.Reason,
	}
	if r.Settled() && r.MalCoverImageURL != "" {
		entry.CoverURL = r.MalCoverImageURL
		entry.CoverPath = path.Join("images", r.PageID+".jpg")
	}
	return entry
}

// ExecuteFancaps runs the fancaps sync pipeline end to end. Items come
// from the prebuilt bangumi index instead of a live crawl.
func ExecuteFancaps(ctx context.Context, opts Options) error {
	p, cleanup, err := newPipeline(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	site := fancaps.New(p.hub)
	engine := sync.NewEngine[FancapsRow](sync.Options{
		Hub:        p.hub,
		Repository: opts.Repository,
		Source:     "fancaps",
		WorkDir:    p.workDir,
		DeploySpan: p.deploySpan(),
		UploadSpan: p.uploadSpan(),
		Fetcher:    p.fetcher,
		Workers:    p.cfg.Concurrency,
	}, describeFancaps)

	if err := engine.Bootstrap(ctx); err != nil {
		return err
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}

	bangumis, err := site.ListBangumis(ctx)
	if err != nil {
		return err
	}
	slog.Info("Listed items", "site", "fancaps", "count", len(bangumis))

	var progress parallel.Progress
	summary := parallel.Run(bangumis, p.cfg.Concurrency, &progress, func(b fancaps.Bangumi) error {
		item := b.Item()
		if skipExisting(engine, item.PageID, item.Title, opts.Resync) {
			return nil
		}

		res, err := p.resolver.Resolve(ctx, item)
		if err != nil {
			return err
		}
		row := FancapsRow{
			PageID:          item.PageID,
			MalID:           res.MalID,
			Year:            res.Year,
			Reason:          res.Reason,
			FancapsTitle:    item.Title,
			FancapsURL:      item.URL,
			FancapsEpisodes: jsonText(b.Episodes),
		}
		if res.Candidate != nil {
			row.MalTitle = res.Candidate.Title
			row.MalType = res.Candidate.Type
			row.MalRaw = string(res.Candidate.Raw)
			row.MalCoverImageURL = res.Candidate.ImageURL
		}
		engine.Upsert(row)
		return engine.Flush(ctx, false)
	})
	slog.Info("Run finished", "site", "fancaps", "completed", summary.Completed, "failed", summary.Failed)

	return engine.Flush(ctx, true)
}
