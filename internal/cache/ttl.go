package cache

import (
	"time"
	"unicode/utf8"
)

// PopularitySource classifies terms whose freshness window should be
// extended. Tracked externally by the popularity tracker.
type PopularitySource interface {
	IsPopular(term string) bool
}

// TTLPolicy computes the dynamic freshness and staleness windows for a cache
// entry at store time. Short terms churn more and get shorter windows;
// longer, rarer terms keep theirs longer, and popular terms are boosted.
// The stale window is a fixed multiple of the fresh window so a failing
// background refresh cannot keep stale data live indefinitely.
type TTLPolicy struct {
	BaseFresh       time.Duration
	StaleMultiplier int
	PopularBoost    int
	Popularity      PopularitySource
}

// Windows returns the fresh and stale durations for the given query term.
func (p TTLPolicy) Windows(term string) (fresh, stale time.Duration) {
	base := p.BaseFresh
	if base <= 0 {
		base = time.Minute
	}
	switch n := utf8.RuneCountInString(term); {
	case n < 4:
		fresh = base
	case n <= 8:
		fresh = 2 * base
	default:
		fresh = 5 * base
	}
	if p.Popularity != nil && p.Popularity.IsPopular(term) {
		boost := p.PopularBoost
		if boost <= 1 {
			boost = 2
		}
		fresh *= time.Duration(boost)
	}
	mult := p.StaleMultiplier
	if mult <= 1 {
		mult = 10
	}
	stale = fresh * time.Duration(mult)
	return fresh, stale
}
