package search

import (
	"slices"
	"sort"

	"github.com/streed/snapnotes/internal/constants"
	"github.com/streed/snapnotes/internal/models"
	"github.com/streed/snapnotes/internal/vectorindex"
)

// Aggregate collapses per-vector hits into at most n notes ranked by their
// best similarity. Only candidates with at least one hit are kept; they are
// returned as copies carrying Similarity, and equal scores keep candidate
// order. n <= 0 means constants.DefaultResultLimit.
func Aggregate(hits []vectorindex.Hit, candidates []*models.Note, n int) []*models.Note {
	if n <= 0 {
		n = constants.DefaultResultLimit
	}

	best := make(map[string]float64, len(hits))
	for _, h := range hits {
		if s, ok := best[h.Metadata.NoteID]; !ok || h.Similarity > s {
			best[h.Metadata.NoteID] = h.Similarity
		}
	}

	results := []*models.Note{}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		score, ok := best[c.ID]
		if !ok {
			continue
		}
		note := *c
		note.ImageURIs = slices.Clone(c.ImageURIs)
		note.Similarity = &score
		results = append(results, &note)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Similarity > *results[j].Similarity
	})
	if len(results) > n {
		results = results[:n]
	}
	return results
}
