package sync

import (
	"strings"
	"testing"
)

func TestWriteReport(t *testing.T) {
	id := int64(52991)
	year := int64(2023)
	entries := []Entry{
		{
			PageID:    "sousou-no-frieren",
			MalID:     &id,
			Title:     "Sousou no Frieren",
			URL:       "https://subsplease.org/shows/sousou-no-frieren/",
			Year:      &year,
			Reason:    "Exact title match.",
			CoverURL:  "https://cdn.myanimelist.net/images/anime/frieren.jpg",
			CoverPath: "images/sousou-no-frieren.jpg",
		},
		{
			PageID: "mystery-show",
			Title:  "Mystery Show",
			URL:    "https://subsplease.org/shows/mystery-show/",
			Reason: "No candidate fits.",
		},
	}

	var sb strings.Builder
	if err := WriteReport(&sb, "subsplease", entries); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	out := sb.String()

	if !strings.HasPrefix(out, "---\n") {
		t.Error("report missing front matter")
	}
	for _, want := range []string{
		"size_categories:\n- n<1K",
		"- subsplease\n- myanimelist",
		"# Matched",
		"1 matched record(s) in total, 1 shown.",
		"#52991",
		"![sousou-no-frieren](images/sousou-no-frieren.jpg)",
		"[Sousou no Frieren](https://subsplease.org/shows/sousou-no-frieren/)",
		"# Unmatched",
		"1 unmatched record(s) in total, 1 shown.",
		"mystery-show",
		"No candidate fits.",
		"N/A",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestWriteReportEmpty(t *testing.T) {
	var sb strings.Builder
	if err := WriteReport(&sb, "fancaps", nil); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "0 matched record(s) in total") {
		t.Errorf("unexpected report:\n%s", out)
	}
}

func TestSizeCategory(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "n<1K"},
		{999, "n<1K"},
		{1000, "1K<n<10K"},
		{99_999, "10K<n<100K"},
		{500_000, "100K<n<1M"},
		{2_000_000, "1M<n<10M"},
	}
	for _, tt := range tests {
		if got := sizeCategory(tt.n); got != tt.want {
			t.Errorf("sizeCategory(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestCapRows(t *testing.T) {
	if got := capRows(3); got != 3 {
		t.Errorf("capRows(3) = %d", got)
	}
	if got := capRows(maxReportRows + 100); got != maxReportRows {
		t.Errorf("capRows over limit = %d, want %d", got, maxReportRows)
	}
}
