package synccmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/deepghs/anime-sites/internal/config"
	"github.com/deepghs/anime-sites/internal/httpx"
	"github.com/deepghs/anime-sites/internal/resolver"
	"github.com/deepghs/anime-sites/internal/sites/erairaws"
	"github.com/deepghs/anime-sites/internal/sites/fancaps"
	"github.com/deepghs/anime-sites/internal/sites/subsplease"
	"github.com/deepghs/anime-sites/internal/sync"
)

// AssignOptions are the flags of the manual assignment command.
type AssignOptions struct {
	Options
	Site    string
	PageURL string
	MalID   int64
}

// ExecuteAssign pins one source item to an operator-chosen catalog ID,
// bypassing the vote. The record is written and deployed immediately.
func ExecuteAssign(ctx context.Context, opts AssignOptions) error {
	switch opts.Site {
	case "subsplease":
		return assignSubsplease(ctx, opts)
	case "erairaws":
		return assignErairaws(ctx, opts)
	case "fancaps":
		return assignFancaps(ctx, opts)
	default:
		return fmt.Errorf("unknown site %q", opts.Site)
	}
}

func assignSubsplease(ctx context.Context, opts AssignOptions) error {
	p, cleanup, err := newPipeline(opts.Options)
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
		UploadSpan: p.uploadSpan(),
		Fetcher:    p.fetcher,
		Workers:    p.cfg.Concurrency,
	}, describeSubsplease)
	if err := prepareEngine(ctx, engine); err != nil {
		return err
	}

	detail, err := site.FetchDetail(ctx, opts.PageURL)
	if err != nil {
		return err
	}
	res, err := p.resolver.ResolveManual(ctx, &detail.Item, opts.MalID)
	if err != nil {
		return err
	}

	row := SubspleaseRow{
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
	fillCandidate(&row.MalTitle, &row.MalType, &row.MalRaw, &row.MalCoverImageURL, res)
	engine.Upsert(row)
	slog.Info("Assigned item", "site", "subsplease", "page_id", row.PageID, "mal_id", opts.MalID)
	return engine.Flush(ctx, true)
}

func assignErairaws(ctx context.Context, opts AssignOptions) error {
	if err := config.RequireEnv("ERAI_RAWS_COOKIE"); err != nil {
		return err
	}
	p, cleanup, err := newPipeline(opts.Options, httpx.WithCookie(os.Getenv("ERAI_RAWS_COOKIE")))
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
		UploadSpan: p.uploadSpan(),
		Fetcher:    p.fetcher,
		Workers:    p.cfg.Concurrency,
	}, describeErairaws)
	if err := prepareEngine(ctx, engine); err != nil {
		return err
	}

	detail, err := site.FetchDetail(ctx, opts.PageURL)
	if err != nil {
		return err
	}
	// Clear any page-declared link so the operator's choice wins.
	detail.Item.MALID = 0
	res, err := p.resolver.ResolveManual(ctx, &detail.Item, opts.MalID)
	if err != nil {
		return err
	}

	row := ErairawsRow{
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
	fillCandidate(&row.MalTitle, &row.MalType, &row.MalRaw, &row.MalCoverImageURL, res)
	engine.Upsert(row)
	slog.Info("Assigned item", "site", "erairaws", "page_id", row.PageID, "mal_id", opts.MalID)
	return engine.Flush(ctx, true)
}

func assignFancaps(ctx context.Context, opts AssignOptions) error {
	p, cleanup, err := newPipeline(opts.Options)
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
		UploadSpan: p.uploadSpan(),
		Fetcher:    p.fetcher,
		Workers:    p.cfg.Concurrency,
	}, describeFancaps)
	if err := prepareEngine(ctx, engine); err != nil {
		return err
	}

	bangumis, err := site.ListBangumis(ctx)
	if err != nil {
		return err
	}
	bangumi, err := matchBangumi(bangumis, opts.PageURL)
	if err != nil {
		return err
	}
	item := bangumi.Item()
	res, err := p.resolver.ResolveManual(ctx, item, opts.MalID)
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
		FancapsEpisodes: jsonText(bangumi.Episodes),
	}
	fillCandidate(&row.MalTitle, &row.MalType, &row.MalRaw, &row.MalCoverImageURL, res)
	engine.Upsert(row)
	slog.Info("Assigned item", "site", "fancaps", "page_id", row.PageID, "mal_id", opts.MalID)
	return engine.Flush(ctx, true)
}

// matchBangumi accepts either the bangumi URL or its numeric index ID.
func matchBangumi(bangumis []fancaps.Bangumi, ref string) (*fancaps.Bangumi, error) {
	id, idErr := strconv.ParseInt(ref, 10, 64)
	for i := range bangumis {
		if bangumis[i].URL == ref {
			return &bangumis[i], nil
		}
		if idErr == nil && bangumis[i].ID == id {
			return &bangumis[i], nil
		}
	}
	return nil, fmt.Errorf("no index entry matches %q", ref)
}

func prepareEngine[T sync.Row](ctx context.Context, engine *sync.Engine[T]) error {
	if err := engine.Bootstrap(ctx); err != nil {
		return err
	}
	return engine.Load(ctx)
}

func fillCandidate(title, typ, raw, cover *string, res *resolver.Resolution) {
	if res.Candidate == nil {
		return
	}
	*title = res.Candidate.Title
	*typ = res.Candidate.Type
	*raw = string(res.Candidate.Raw)
	*cover = res.Candidate.ImageURL
}
