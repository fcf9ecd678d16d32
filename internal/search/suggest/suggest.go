// Package suggest produces alternate-term suggestions for low-recall
// queries. The similarity heuristic is deliberately crude (character
// containment, not edit distance); it sits behind the Strategy interface so
// it can be replaced without touching callers.
package suggest

import (
	"sort"
	"strings"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/scorer"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/tokenizer"
)

const (
	maxSuggestions      = 3
	similarityThreshold = 0.6
	maxSimilarNames     = 2
)

// Strategy proposes alternate terms for a query that returned few results.
type Strategy interface {
	Propose(term string, candidates []scorer.Candidate) []string
}

// Generator combines strategies, deduplicates, and truncates to at most
// three suggestions. It triggers only below a hit threshold and above a
// minimum term length.
type Generator struct {
	belowHits  int
	minTermLen int
	strategies []Strategy
}

// New creates a Generator with the default strategies: edit-adjacent
// truncation and name-containment similarity.
func New(belowHits, minTermLen int) *Generator {
	if belowHits <= 0 {
		belowHits = 5
	}
	if minTermLen <= 0 {
		minTermLen = 3
	}
	return &Generator{
		belowHits:  belowHits,
		minTermLen: minTermLen,
		strategies: []Strategy{editAdjacent{}, nameSimilarity{}},
	}
}

// Suggest returns up to three deduplicated suggestions, or nil when the
// query recalled enough results or the term is too short. It never fails on
// empty candidate sets.
func (g *Generator) Suggest(term string, resultCount int, candidates []scorer.Candidate) []string {
	term = strings.TrimSpace(term)
	if resultCount >= g.belowHits || len([]rune(term)) < g.minTermLen {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, s := range g.strategies {
		for _, proposal := range s.Propose(term, candidates) {
			key := tokenizer.Fold(proposal)
			if key == "" || key == tokenizer.Fold(term) {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, proposal)
			if len(out) == maxSuggestions {
				return out
			}
		}
	}
	return out
}

// editAdjacent proposes the term with its last and second-to-last characters
// removed. Cheap typo tolerance without full edit-distance computation.
type editAdjacent struct{}

func (editAdjacent) Propose(term string, _ []scorer.Candidate) []string {
	runes := []rune(term)
	if len(runes) <= 4 {
		return nil
	}
	dropLast := string(runes[:len(runes)-1])
	dropSecondLast := string(runes[:len(runes)-2]) + string(runes[len(runes)-1])
	return []string{dropLast, dropSecondLast}
}

// nameSimilarity keeps candidate names whose containment similarity with the
// term exceeds the threshold: the fraction of term characters present in the
// folded name.
type nameSimilarity struct{}

type scoredName struct {
	name  string
	score float64
}

func (nameSimilarity) Propose(term string, candidates []scorer.Candidate) []string {
	runes := []rune(tokenizer.Fold(term))
	if len(runes) == 0 {
		return nil
	}
	var scored []scoredName
	seen := make(map[string]struct{})
	for _, c := range candidates {
		name := c.Doc.Name
		folded := tokenizer.Fold(name)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		contained := 0
		for _, r := range runes {
			if strings.ContainsRune(folded, r) {
				contained++
			}
		}
		sim := float64(contained) / float64(len(runes))
		if sim > similarityThreshold {
			scored = append(scored, scoredName{name: name, score: sim})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].name < scored[j].name
	})
	if len(scored) > maxSimilarNames {
		scored = scored[:maxSimilarNames]
	}
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.name)
	}
	return out
}
