// Package scorer executes a query against the index, computing a ranked
// candidate set from weighted per-field matches and name bonuses.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/index"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/tokenizer"
)

// Weights is the relevance configuration table. Field weights must be
// monotonic: higher-signal fields dominate ties.
type Weights struct {
	Name            float64 `yaml:"name"`
	Searchable      float64 `yaml:"searchable"`
	Description     float64 `yaml:"description"`
	Category        float64 `yaml:"category"`
	Vendor          float64 `yaml:"vendor"`
	ExactNameBonus  float64 `yaml:"exactNameBonus"`
	PrefixNameBonus float64 `yaml:"prefixNameBonus"`
}

// DefaultWeights returns the production weight table.
func DefaultWeights() Weights {
	return Weights{
		Name:            10,
		Searchable:      5,
		Description:     3,
		Category:        2,
		Vendor:          1,
		ExactNameBonus:  15,
		PrefixNameBonus: 10,
	}
}

// Validate rejects weight tables where a lower-signal field outweighs a
// higher-signal one.
func (w Weights) Validate() error {
	ordered := []float64{w.Name, w.Searchable, w.Description, w.Category, w.Vendor}
	for i := 1; i < len(ordered); i++ {
		if ordered[i] > ordered[i-1] {
			return fmt.Errorf("field weights must be monotonically non-increasing, got %v", ordered)
		}
	}
	if w.ExactNameBonus < w.PrefixNameBonus {
		return fmt.Errorf("exact-name bonus %v must not be below prefix-name bonus %v", w.ExactNameBonus, w.PrefixNameBonus)
	}
	return nil
}

func (w Weights) forField(f index.Field) float64 {
	switch f {
	case index.FieldName:
		return w.Name
	case index.FieldSearchable:
		return w.Searchable
	case index.FieldDescription:
		return w.Description
	case index.FieldCategory:
		return w.Category
	case index.FieldVendor:
		return w.Vendor
	default:
		return 0
	}
}

// Candidate is one scored document. Ephemeral: produced per query and
// discarded after response formatting.
type Candidate struct {
	Doc             catalog.Document
	FieldMatches    []string
	RawScore        float64
	NormalizedScore float64
}

// Options controls scoring behaviour.
type Options struct {
	// IncludeAll returns every document unscored for an empty term. Used
	// only by the index-export path, never by end-user queries.
	IncludeAll bool
}

// Scorer runs queries against an index with a fixed weight table.
type Scorer struct {
	weights Weights
}

func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Search returns candidates ordered by normalized score descending, then
// document id ascending. For a fixed index and term repeated calls produce
// identical orderings and scores.
func (s *Scorer) Search(ix *index.Index, term string, opts Options) []Candidate {
	trimmed := strings.TrimSpace(term)
	words := tokenizer.Terms(trimmed)
	if len(words) == 0 {
		if !opts.IncludeAll {
			return nil
		}
		return allUnscored(ix)
	}

	raw := make(map[string]float64)
	matches := make(map[string][]string)

	for _, f := range index.Fields {
		weight := s.weights.forField(f)
		if weight == 0 {
			continue
		}
		full, fuzzy := matchField(ix, f, words)
		for _, id := range full {
			raw[id] += weight
			matches[id] = append(matches[id], string(f))
		}
		for _, id := range fuzzy {
			raw[id] += weight / 2
			matches[id] = append(matches[id], string(f))
		}
	}

	folded := tokenizer.Fold(trimmed)
	for id := range raw {
		name := ix.FoldedName(id)
		switch {
		case name == folded:
			raw[id] += s.weights.ExactNameBonus
		case strings.HasPrefix(name, folded):
			raw[id] += s.weights.PrefixNameBonus
		}
	}

	if len(raw) == 0 {
		return nil
	}

	ids := make([]string, 0, len(raw))
	var maxRaw float64
	for id, score := range raw {
		ids = append(ids, id)
		if score > maxRaw {
			maxRaw = score
		}
	}
	sort.Strings(ids)

	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		doc, ok := ix.Doc(id)
		if !ok {
			continue
		}
		score := raw[id]
		out = append(out, Candidate{
			Doc:             doc,
			FieldMatches:    matches[id],
			RawScore:        score,
			NormalizedScore: math.Round(score/maxRaw*10*100) / 100,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NormalizedScore != out[j].NormalizedScore {
			return out[i].NormalizedScore > out[j].NormalizedScore
		}
		return out[i].Doc.ID < out[j].Doc.ID
	})
	return out
}

// matchField returns the ids matching every query word in field f. The first
// slice holds full prefix matches earning the field weight; the second holds
// documents reachable only through substring containment, earning half
// weight. Words shorter than two runes take the exact-prefix path only.
func matchField(ix *index.Index, f index.Field, words []string) (full, fuzzy []string) {
	var fullSet, looseSet map[string]struct{}
	for i, w := range words {
		prefix := toSet(ix.LookupPrefix(f, w))
		loose := prefix
		if utf8.RuneCountInString(w) >= 2 {
			loose = union(prefix, toSet(ix.LookupContains(f, w)))
		}
		if i == 0 {
			fullSet, looseSet = prefix, loose
		} else {
			fullSet = intersect(fullSet, prefix)
			looseSet = intersect(looseSet, loose)
		}
		if len(looseSet) == 0 {
			return nil, nil
		}
	}
	for id := range looseSet {
		if _, ok := fullSet[id]; ok {
			full = append(full, id)
		} else {
			fuzzy = append(fuzzy, id)
		}
	}
	sort.Strings(full)
	sort.Strings(fuzzy)
	return full, fuzzy
}

func allUnscored(ix *index.Index) []Candidate {
	out := make([]Candidate, 0, ix.Len())
	for _, id := range ix.IDs() {
		doc, _ := ix.Doc(id)
		out = append(out, Candidate{Doc: doc})
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(map[string]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
