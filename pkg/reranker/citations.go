package reranker

import (
	"regexp"
	"strconv"
)

// Citation marks that the model's answer referenced the memory shown at a
// given position. Reward is binary: 1 cited, 0 not.
type Citation struct {
	Index  int
	Reward float64
}

// citationMarker matches explicit reference markers like [0] or [12].
var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// ParseCitations scans the model's answer for reference markers indexing
// into the shown list of length shown. Malformed or out-of-range markers are
// ignored; the worst case is an empty citation list, never an error.
// Duplicate markers collapse to one citation.
func ParseCitations(answer string, shown int) []Citation {
	if shown <= 0 || answer == "" {
		return nil
	}

	cited := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 0 || idx >= shown {
			continue
		}
		cited[idx] = true
	}

	if len(cited) == 0 {
		return nil
	}

	citations := make([]Citation, 0, len(cited))
	for idx := 0; idx < shown; idx++ {
		if cited[idx] {
			citations = append(citations, Citation{Index: idx, Reward: 1})
		}
	}
	return citations
}

// rewards expands a citation list into a per-rank reward vector for the
// shown selection.
func rewards(citations []Citation, shown int) []float64 {
	out := make([]float64, shown)
	for _, c := range citations {
		if c.Index >= 0 && c.Index < shown {
			out[c.Index] = c.Reward
		}
	}
	return out
}
