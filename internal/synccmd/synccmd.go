// Package synccmd implements the sync and assign commands: one pipeline
// per source site, all sharing the resolver, catalog client, sync engine
// and task runner.
package synccmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/deepghs/anime-sites/internal/config"
	"github.com/deepghs/anime-sites/internal/httpx"
	"github.com/deepghs/anime-sites/internal/hub"
	"github.com/deepghs/anime-sites/internal/images"
	"github.com/deepghs/anime-sites/internal/llm"
	"github.com/deepghs/anime-sites/internal/mal"
	"github.com/deepghs/anime-sites/internal/resolver"
)

// Options are the common flags of every sync pipeline.
type Options struct {
	Repository  string
	Resync      bool
	ConfigFile  string
	Provider    string
	Model       string
	Concurrency int
	DeploySpan  time.Duration
	UploadSpan  time.Duration
}

// pipeline bundles the collaborators shared by all site pipelines.
type pipeline struct {
	cfg      config.Config
	session  *httpx.Session
	hub      *hub.Client
	catalog  *mal.Client
	resolver *resolver.Resolver
	fetcher  *images.Fetcher
	workDir  string
}

// newPipeline wires the shared collaborators and creates the snapshot
// work directory. The returned cleanup removes it.
func newPipeline(opts Options, sessionOpts ...httpx.Option) (*pipeline, func(), error) {
	if opts.Repository == "" {
		return nil, nil, fmt.Errorf("repository is required")
	}
	if err := config.RequireEnv("HF_TOKEN"); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	if opts.Provider != "" {
		cfg.Provider = opts.Provider
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.DeploySpan > 0 {
		cfg.DeploySpan = config.Duration(opts.DeploySpan)
	}
	if opts.UploadSpan > 0 {
		cfg.UploadSpan = config.Duration(opts.UploadSpan)
	}

	provider, err := llm.New(cfg.Provider)
	if err != nil {
		return nil, nil, err
	}

	session := httpx.NewSession(sessionOpts...)
	catalog := mal.NewClient(session)

	res := resolver.New(catalog, provider, cfg.Model)
	res.Attempts = cfg.ValTimes
	res.MinVotes = cfg.MinVotes

	workDir, err := os.MkdirTemp("", "anime-sites-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(workDir) }

	return &pipeline{
		cfg:      cfg,
		session:  session,
		hub:      hub.NewClient(os.Getenv("HF_TOKEN")),
		catalog:  catalog,
		resolver: res,
		fetcher:  images.NewFetcher(session),
		workDir:  workDir,
	}, cleanup, nil
}

func (p *pipeline) deploySpan() time.Duration {
	return time.Duration(p.cfg.DeploySpan)
}

func (p *pipeline) uploadSpan() time.Duration {
	return time.Duration(p.cfg.UploadSpan)
}

// jsonText serializes nested row data into its JSON column value.
func jsonText(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
