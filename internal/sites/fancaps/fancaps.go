// Package fancaps enumerates fancaps items from the prebuilt bangumi index
// published in a companion dataset repository; the site itself is not
// crawled live.
package fancaps

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/deepghs/anime-sites/internal/hub"
	"github.com/deepghs/anime-sites/internal/sites"
)

const (
	// indexRepo is the dataset repository carrying the bangumi index.
	indexRepo = "deepghs/fancaps_index"
	indexFile = "bangumi.json"
)

// EpisodeEntry is one episode of a bangumi index entry.
type EpisodeEntry struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Bangumi is one entry of the fancaps index.
type Bangumi struct {
	ID       int64          `json:"id"`
	Title    string         `json:"title"`
	URL      string         `json:"url"`
	Episodes []EpisodeEntry `json:"episodes"`
}

// Site is the fancaps adapter.
type Site struct {
	hub *hub.Client
}

// New creates the adapter over a hub client.
func New(client *hub.Client) *Site {
	return &Site{hub: client}
}

// ListBangumis downloads and decodes the bangumi index.
func (s *Site) ListBangumis(ctx context.Context) ([]Bangumi, error) {
	text, err := s.hub.ReadText(ctx, indexRepo, indexFile)
	if err != nil {
		return nil, &sites.FetchError{URL: indexRepo + "/" + indexFile, Err: err}
	}

	var bangumis []Bangumi
	if err := json.Unmarshal([]byte(text), &bangumis); err != nil {
		return nil, &sites.FetchError{
			URL: indexRepo + "/" + indexFile,
			Err: fmt.Errorf("malformed bangumi index: %w", err),
		}
	}
	if len(bangumis) == 0 {
		return nil, &sites.ValidationError{Site: "fancaps", Reason: "empty bangumi index"}
	}
	return bangumis, nil
}

// Item projects one bangumi entry into the normalized source item.
func (b *Bangumi) Item() *sites.SourceItem {
	episodes := make([]sites.Episode, 0, len(b.Episodes))
	for _, ep := range b.Episodes {
		episodes = append(episodes, sites.Episode{Name: ep.Title})
	}
	return &sites.SourceItem{
		PageID:   strconv.FormatInt(b.ID, 10),
		Title:    b.Title,
		URL:      b.URL,
		Episodes: episodes,
	}
}
