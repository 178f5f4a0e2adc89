package resolver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepghs/anime-sites/internal/mal"
	"github.com/deepghs/anime-sites/internal/sites"
)

// maxEpisodeTitles bounds how many episode titles are serialized into the
// judgment prompt for one item.
const maxEpisodeTitles = 50

const systemText = `You are an anime information matching assistant. I will provide the title of
an anime crawled from a fansub index site (possibly abbreviated or romanized),
optionally its synopsis and a sample of its episode titles, and the search
results retrieved from the MyAnimeList website (as JSON objects). Determine
which one of the search results corresponds to the anime, and output its
mal_id, title and year.

Matching policy:
1. Prefer exact matches on the title, its aliases, or names in other
   languages. Keep in mind the crawled title may use an alias the search
   result does not list.
2. Episode counts and airing status are corroborating signals only: the
   crawled episode list may be incomplete, so never reject a match on
   episode count alone.
3. When a synopsis is provided, check that it is essentially consistent
   with the matched search result.
4. Return at most one match. If several results are plausible, pick the
   single most precise one (for example the specific season). If none can
   be matched, say so rather than forcing a wrong answer.

For the year field:
1. It should be an integer.
2. If the matched search result carries a year, use it.
3. Otherwise take the year of the 'aired.from' value of the matched search
   result, if present.
4. Otherwise infer the year from the provided episode information: the year
   in which the first episode was released.
5. Only if there is truly no signal anywhere, return null.

When a match is found, reply in exactly this format:

mal_id: xxxxx (an integer)
title: xxxxxxxxxx (a string)
year: xxxx (an integer)
reason: xxxxxx

When no match is found, reply in exactly this format:

mal_id: null
title: null
year: xxxx or null (always try your best to infer the year, even without a match)
reason: xxxxxxxxx

DO NOT OUTPUT ANYTHING ELSE. THE OUTPUT IS PROCESSED BY AN AUTOMATED SCRIPT.
WHETHER OR NOT A MATCH IS FOUND, ALWAYS DESCRIBE THE REASON FOR YOUR ANSWER.`

// buildMessage renders the bounded natural-language description of one item
// together with the candidate list.
func buildMessage(item *sites.SourceItem, candidates []mal.Candidate) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Anime Title: %q\n\n", item.Title)

	if len(item.Episodes) > 0 {
		shown := item.Episodes
		if len(shown) > maxEpisodeTitles {
			shown = shown[:maxEpisodeTitles]
		}
		fmt.Fprintf(&sb, "Episode Titles (%d episodes in total, only first %d are shown):\n",
			len(item.Episodes), len(shown))
		for _, ep := range shown {
			name := ep.Name
			if name == "" {
				name = ep.Label
			}
			fmt.Fprintf(&sb, "- %q\n", name)
		}
		sb.WriteString("\n")
	}

	if item.Synopsis != "" {
		fmt.Fprintf(&sb, "Anime Synopsis:\n%s\n\n", item.Synopsis)
	}
	if item.Hints != "" {
		fmt.Fprintf(&sb, "%s\n\n", item.Hints)
	}

	sb.WriteString("Search Result:\n")
	sb.WriteString(serializeCandidates(candidates))
	sb.WriteString("\n")

	return sb.String()
}

func serializeCandidates(candidates []mal.Candidate) string {
	raws := make([]json.RawMessage, 0, len(candidates))
	for _, c := range candidates {
		raws = append(raws, c.Raw)
	}
	data, err := json.MarshalIndent(raws, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
