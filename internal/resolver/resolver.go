// Package resolver assigns a canonical MyAnimeList ID to a crawled source
// item, either deterministically from an explicit link on the page or
// probabilistically through repeated LLM judgments with majority-vote
// confirmation.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deepghs/anime-sites/internal/llm"
	"github.com/deepghs/anime-sites/internal/mal"
	"github.com/deepghs/anime-sites/internal/sites"
)

// Catalog is the slice of the catalog client the resolver needs.
type Catalog interface {
	SearchAnime(ctx context.Context, title string) ([]mal.Candidate, error)
	GetAnimeFull(ctx context.Context, malID int64) (*mal.Candidate, error)
}

// Resolution is the final decision for one item: the winning judgment plus
// the matched catalog record when one exists.
type Resolution struct {
	Judgment
	Candidate *mal.Candidate
}

// Resolver drives the identity resolution procedure.
type Resolver struct {
	Catalog     Catalog
	Provider    llm.Provider
	Model       string
	Temperature float64

	// Attempts is how many independent judgments are sampled per item and
	// MinVotes is the agreement threshold a catalog ID must reach.
	Attempts int
	MinVotes int

	// MaxParseTries bounds the retries of one judgment call when the reply
	// does not parse.
	MaxParseTries int
}

// New creates a resolver with the default vote configuration.
func New(catalog Catalog, provider llm.Provider, model string) *Resolver {
	return &Resolver{
		Catalog:       catalog,
		Provider:      provider,
		Model:         model,
		Temperature:   1.0,
		Attempts:      5,
		MinVotes:      4,
		MaxParseTries: 5,
	}
}

// Resolve decides the canonical ID for one source item. Items carrying an
// explicit catalog link resolve deterministically; everything else goes
// through the majority-vote procedure against the search candidates.
func (r *Resolver) Resolve(ctx context.Context, item *sites.SourceItem) (*Resolution, error) {
	if item.MALID != 0 {
		return r.resolveFromLink(ctx, item)
	}

	candidates, err := r.Catalog.SearchAnime(ctx, item.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to search candidates for %q: %w", item.Title, err)
	}
	return r.resolveByVote(ctx, item, candidates)
}

// resolveByVote samples Attempts independent judgments and tallies votes by
// catalog ID in first-seen order. Null votes do not count toward the
// threshold but the first null judgment becomes the fallback resolution.
func (r *Resolver) resolveByVote(ctx context.Context, item *sites.SourceItem, candidates []mal.Candidate) (*Resolution, error) {
	if r.Attempts < 1 || r.MinVotes < 1 || r.MinVotes > r.Attempts {
		return nil, fmt.Errorf("invalid vote configuration: attempts=%d, min votes=%d", r.Attempts, r.MinVotes)
	}

	counts := make(map[int64]int)
	firstByID := make(map[int64]*Resolution)
	var order []int64
	var firstNull *Resolution
	var firstSeen *Resolution

	for i := 0; i < r.Attempts; i++ {
		slog.Info("Sampling judgment", "title", item.Title, "attempt", i+1, "total", r.Attempts)

		res, err := r.attempt(ctx, item, candidates)
		if err != nil {
			return nil, err
		}
		if firstSeen == nil {
			firstSeen = res
		}
		if res.MalID == nil {
			if firstNull == nil {
				firstNull = res
			}
			continue
		}

		id := *res.MalID
		if _, ok := counts[id]; !ok {
			order = append(order, id)
			firstByID[id] = res
		}
		counts[id]++
	}

	for _, id := range order {
		if counts[id] >= r.MinVotes {
			win := firstByID[id]
			slog.Info("Match confirmed", "title", item.Title, "mal_id", id, "votes", counts[id], "reason", win.Reason)
			return win, nil
		}
	}

	if firstNull != nil {
		slog.Warn("Match failed", "title", item.Title, "reason", firstNull.Reason)
		return firstNull, nil
	}

	reason := fmt.Sprintf("Cannot determine which anime it is due to the split vote across %d attempts: %s",
		r.Attempts, formatVotes(order, counts))
	slog.Warn("Match failed", "title", item.Title, "reason", reason)
	var year *int64
	if firstSeen != nil {
		year = firstSeen.Year
	}
	return &Resolution{
		Judgment: Judgment{Year: year, Reason: reason},
	}, nil
}

// attempt performs one judgment call, retrying the full request while the
// reply does not parse. A returned mal_id not present in the candidate list
// is demoted to an explicit no-match.
func (r *Resolver) attempt(ctx context.Context, item *sites.SourceItem, candidates []mal.Candidate) (*Resolution, error) {
	byID := make(map[int64]*mal.Candidate, len(candidates))
	for i := range candidates {
		byID[candidates[i].MalID] = &candidates[i]
	}
	message := buildMessage(item, candidates)

	for try := 1; try <= r.MaxParseTries; try++ {
		reply, err := r.Provider.Complete(ctx, llm.Config{
			Model:       r.Model,
			Temperature: r.Temperature,
			System:      systemText,
			Prompt:      message,
		})
		if err != nil {
			slog.Error("Judgment call failed", "try", fmt.Sprintf("%d/%d", try, r.MaxParseTries), "error", err)
			continue
		}

		j, err := ParseReply(reply)
		if err != nil {
			slog.Error("Failed to parse judgment reply", "try", fmt.Sprintf("%d/%d", try, r.MaxParseTries), "error", err)
			continue
		}

		if j.MalID != nil {
			cand, known := byID[*j.MalID]
			if !known {
				// Hallucinated identifier: treat as explicit no-match.
				return &Resolution{
					Judgment: Judgment{Year: j.Year, Reason: j.Reason},
				}, nil
			}
			if cand.Year != nil {
				j.Year = cand.Year
			}
			return &Resolution{Judgment: *j, Candidate: cand}, nil
		}
		return &Resolution{Judgment: *j}, nil
	}

	return nil, fmt.Errorf("unable to get judgment for %q after %d attempts", item.Title, r.MaxParseTries)
}

// resolveFromLink resolves deterministically from the catalog link embedded
// on the source page.
func (r *Resolver) resolveFromLink(ctx context.Context, item *sites.SourceItem) (*Resolution, error) {
	cand, err := r.Catalog.GetAnimeFull(ctx, item.MALID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch linked record #%d: %w", item.MALID, err)
	}

	return &Resolution{
		Judgment: Judgment{
			MalID:  &cand.MalID,
			Title:  &cand.Title,
			Year:   candidateYear(cand, item),
			Reason: fmt.Sprintf("Source page %s links to mal #%d directly", item.URL, item.MALID),
		},
		Candidate: cand,
	}, nil
}

// ResolveManual is the operator override path: the catalog ID is supplied
// directly and the probabilistic procedure is bypassed.
func (r *Resolver) ResolveManual(ctx context.Context, item *sites.SourceItem, malID int64) (*Resolution, error) {
	cand, err := r.Catalog.GetAnimeFull(ctx, malID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record #%d: %w", malID, err)
	}

	return &Resolution{
		Judgment: Judgment{
			MalID:  &cand.MalID,
			Title:  &cand.Title,
			Year:   candidateYear(cand, item),
			Reason: fmt.Sprintf("Admin specified %s to mal #%d", item.URL, malID),
		},
		Candidate: cand,
	}, nil
}

// candidateYear applies the year precedence: the candidate's own year
// field, then the year of its aired-from date, then the year of the item's
// earliest release, then null.
func candidateYear(cand *mal.Candidate, item *sites.SourceItem) *int64 {
	if cand.Year != nil {
		return cand.Year
	}
	if cand.AiredFrom != "" {
		if t, err := time.Parse(time.RFC3339, cand.AiredFrom); err == nil {
			year := int64(t.Year())
			return &year
		}
	}
	if t := item.EarliestRelease(); !t.IsZero() {
		year := int64(t.Year())
		return &year
	}
	return nil
}

func formatVotes(order []int64, counts map[int64]int) string {
	parts := make([]string, 0, len(order))
	for _, id := range order {
		parts = append(parts, fmt.Sprintf("#%d x%d", id, counts[id]))
	}
	return strings.Join(parts, ", ")
}
