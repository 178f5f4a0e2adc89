package resolver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/deepghs/anime-sites/internal/llm"
	"github.com/deepghs/anime-sites/internal/mal"
	"github.com/deepghs/anime-sites/internal/sites"
)

// scriptedProvider replays canned replies in order.
type scriptedProvider struct {
	replies []string
	calls   int
}

func (p *scriptedProvider) Complete(ctx context.Context, config llm.Config) (string, error) {
	if p.calls >= len(p.replies) {
		return "", fmt.Errorf("no scripted reply for call %d", p.calls+1)
	}
	reply := p.replies[p.calls]
	p.calls++
	return reply, nil
}

type fakeCatalog struct {
	results []mal.Candidate
	full    map[int64]*mal.Candidate
}

func (c *fakeCatalog) SearchAnime(ctx context.Context, title string) ([]mal.Candidate, error) {
	return c.results, nil
}

func (c *fakeCatalog) GetAnimeFull(ctx context.Context, malID int64) (*mal.Candidate, error) {
	cand, ok := c.full[malID]
	if !ok {
		return nil, fmt.Errorf("no record #%d", malID)
	}
	return cand, nil
}

func i64(v int64) *int64 { return &v }

func matchReply(id int64, reason string) string {
	return fmt.Sprintf("mal_id: %d\ntitle: Some Title\nyear: 2020\nreason: %s", id, reason)
}

func nullReply(reason string) string {
	return "mal_id: null\ntitle: null\nyear: null\nreason: " + reason
}

func testItem() *sites.SourceItem {
	return &sites.SourceItem{PageID: "some-show", Title: "Some Show", URL: "https://example.com/shows/some-show/"}
}

func testCandidates() []mal.Candidate {
	return []mal.Candidate{
		{MalID: 100, Title: "Some Show", Type: "tv", Year: i64(2019), Raw: []byte(`{"mal_id":100}`)},
		{MalID: 200, Title: "Some Show 2nd Season", Type: "tv", Raw: []byte(`{"mal_id":200}`)},
	}
}

func newTestResolver(catalog Catalog, provider llm.Provider) *Resolver {
	r := New(catalog, provider, "test-model")
	return r
}

func TestResolveByVoteMajorityWins(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		matchReply(100, "first agreeing judgment"),
		matchReply(100, "second agreeing judgment"),
		matchReply(200, "dissenting judgment"),
		matchReply(100, "third agreeing judgment"),
		matchReply(100, "fourth agreeing judgment"),
	}}
	r := newTestResolver(&fakeCatalog{results: testCandidates()}, provider)

	res, err := r.Resolve(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.MalID == nil || *res.MalID != 100 {
		t.Fatalf("expected mal_id 100, got %v", res.MalID)
	}
	// The first judgment for the winning ID is kept verbatim.
	if res.Reason != "first agreeing judgment" {
		t.Errorf("reason = %q, want first agreeing judgment", res.Reason)
	}
	// The candidate's own year overrides the judged year.
	if res.Year == nil || *res.Year != 2019 {
		t.Errorf("year = %v, want 2019", res.Year)
	}
	if res.Candidate == nil || res.Candidate.MalID != 100 {
		t.Errorf("candidate = %+v, want #100", res.Candidate)
	}
}

func TestResolveByVoteBelowThresholdFallsBackToFirstNull(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		matchReply(100, "a"),
		matchReply(100, "b"),
		nullReply("nothing fits well enough"),
		nullReply("still nothing"),
		matchReply(200, "c"),
	}}
	r := newTestResolver(&fakeCatalog{results: testCandidates()}, provider)

	res, err := r.Resolve(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.MalID != nil {
		t.Fatalf("expected no match, got mal_id %d", *res.MalID)
	}
	if res.Reason != "nothing fits well enough" {
		t.Errorf("reason = %q, want the first null judgment", res.Reason)
	}
}

func TestResolveByVoteSplitWithoutNullSynthesizesReason(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		matchReply(100, "a"),
		matchReply(200, "b"),
		matchReply(100, "c"),
		matchReply(200, "d"),
		matchReply(100, "e"),
	}}
	r := newTestResolver(&fakeCatalog{results: testCandidates()}, provider)

	res, err := r.Resolve(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.MalID != nil {
		t.Fatalf("expected no match, got mal_id %d", *res.MalID)
	}
	if !strings.Contains(res.Reason, "split vote") {
		t.Errorf("reason = %q, want a split-vote explanation", res.Reason)
	}
	if !strings.Contains(res.Reason, "#100 x3") || !strings.Contains(res.Reason, "#200 x2") {
		t.Errorf("reason = %q, want the per-ID tallies", res.Reason)
	}
	// Year of the first attempt carries over; candidate #100 has year 2019.
	if res.Year == nil || *res.Year != 2019 {
		t.Errorf("year = %v, want 2019", res.Year)
	}
}

func TestResolveRejectsInvalidVoteBounds(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		minVotes int
	}{
		{"zero attempts", 0, 4},
		{"zero votes", 5, 0},
		{"votes above attempts", 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(&fakeCatalog{results: testCandidates()}, &scriptedProvider{})
			r.Attempts = tt.attempts
			r.MinVotes = tt.minVotes
			if _, err := r.Resolve(context.Background(), testItem()); err == nil {
				t.Fatal("expected error for invalid vote bounds")
			}
		})
	}
}

func TestAttemptDemotesHallucinatedID(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		matchReply(999, "made up"),
		matchReply(999, "made up"),
		matchReply(999, "made up"),
		matchReply(999, "made up"),
		matchReply(999, "made up"),
	}}
	r := newTestResolver(&fakeCatalog{results: testCandidates()}, provider)

	res, err := r.Resolve(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// #999 is not in the candidate list so every vote is demoted to null.
	if res.MalID != nil {
		t.Fatalf("expected no match, got mal_id %d", *res.MalID)
	}
	if res.Candidate != nil {
		t.Errorf("expected no candidate, got %+v", res.Candidate)
	}
}

func TestAttemptRetriesUntilParseSucceeds(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		"I think it is Some Show!",
		"mal_id: maybe 100",
		matchReply(100, "parsed on the third try"),
	}}
	r := newTestResolver(&fakeCatalog{results: testCandidates()}, provider)
	r.Attempts = 1
	r.MinVotes = 1

	res, err := r.Resolve(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.MalID == nil || *res.MalID != 100 {
		t.Fatalf("expected mal_id 100, got %v", res.MalID)
	}
	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3", provider.calls)
	}
}

func TestAttemptFailsAfterParseRetries(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		"garbage", "garbage", "garbage", "garbage", "garbage",
	}}
	r := newTestResolver(&fakeCatalog{results: testCandidates()}, provider)
	r.Attempts = 1
	r.MinVotes = 1

	if _, err := r.Resolve(context.Background(), testItem()); err == nil {
		t.Fatal("expected error after exhausting parse retries")
	}
	if provider.calls != r.MaxParseTries {
		t.Errorf("provider calls = %d, want %d", provider.calls, r.MaxParseTries)
	}
}

func TestResolveFromLinkBypassesVote(t *testing.T) {
	provider := &scriptedProvider{}
	catalog := &fakeCatalog{full: map[int64]*mal.Candidate{
		300: {MalID: 300, Title: "Linked Show", Type: "tv", AiredFrom: "2015-04-05T00:00:00+00:00"},
	}}
	r := newTestResolver(catalog, provider)

	item := testItem()
	item.MALID = 300
	res, err := r.Resolve(context.Background(), item)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.MalID == nil || *res.MalID != 300 {
		t.Fatalf("expected mal_id 300, got %v", res.MalID)
	}
	// No year field, so the aired-from year applies.
	if res.Year == nil || *res.Year != 2015 {
		t.Errorf("year = %v, want 2015", res.Year)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}
}

func TestResolveManual(t *testing.T) {
	catalog := &fakeCatalog{full: map[int64]*mal.Candidate{
		400: {MalID: 400, Title: "Pinned Show", Type: "movie", Year: i64(2011)},
	}}
	r := newTestResolver(catalog, &scriptedProvider{})

	res, err := r.ResolveManual(context.Background(), testItem(), 400)
	if err != nil {
		t.Fatalf("ResolveManual failed: %v", err)
	}
	if res.MalID == nil || *res.MalID != 400 {
		t.Fatalf("expected mal_id 400, got %v", res.MalID)
	}
	want := "Admin specified https://example.com/shows/some-show/ to mal #400"
	if res.Reason != want {
		t.Errorf("reason = %q, want %q", res.Reason, want)
	}
}
