// Package popularity tracks query-term frequency in a decaying window. The
// cache TTL policy consults it to extend freshness windows for hot terms,
// and events are optionally published to Kafka for offline analytics.
package popularity

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/tokenizer"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/kafka"
)

// QueryEvent records one served search query.
type QueryEvent struct {
	Term       string    `json:"term"`
	TotalHits  int       `json:"total_hits"`
	CacheState string    `json:"cache_state"`
	LatencyMs  int64     `json:"latency_ms"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const decayInterval = time.Hour

// Tracker counts folded terms and halves all counters once per decay
// interval, so popularity reflects recent traffic rather than all-time
// volume. Publishing to Kafka is buffered and lossy: a full buffer drops
// the event rather than blocking a request.
type Tracker struct {
	mu        sync.Mutex
	counts    map[string]int
	lastDecay time.Time
	minHits   int
	clk       clock.Clock
	producer  *kafka.Producer
	eventCh   chan QueryEvent
	done      chan struct{}
	logger    *slog.Logger
}

// NewTracker creates a Tracker. producer may be nil, in which case events
// are counted locally but not published.
func NewTracker(minHits int, clk clock.Clock, producer *kafka.Producer) *Tracker {
	if minHits <= 0 {
		minHits = 50
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Tracker{
		counts:    make(map[string]int),
		lastDecay: clk.Now(),
		minHits:   minHits,
		clk:       clk,
		producer:  producer,
		eventCh:   make(chan QueryEvent, 10000),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "popularity-tracker"),
	}
}

// Start launches the background publisher. It is a no-op without a
// producer.
func (t *Tracker) Start(ctx context.Context) {
	if t.producer == nil {
		close(t.done)
		return
	}
	go func() {
		defer close(t.done)
		for {
			select {
			case event, ok := <-t.eventCh:
				if !ok {
					return
				}
				if err := t.producer.Publish(ctx, kafka.Event{
					Key:   event.Term,
					Value: event,
				}); err != nil {
					t.logger.Error("failed to publish query event", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	t.logger.Info("query event publisher started", "buffer_size", cap(t.eventCh))
}

// Record counts the query term and enqueues the event for publishing.
func (t *Tracker) Record(event QueryEvent) {
	term := tokenizer.Fold(strings.TrimSpace(event.Term))
	if term == "" {
		return
	}
	t.mu.Lock()
	t.decayLocked()
	t.counts[term]++
	t.mu.Unlock()

	if t.producer == nil {
		return
	}
	select {
	case t.eventCh <- event:
	default:
		t.logger.Warn("query event dropped (buffer full)")
	}
}

// IsPopular reports whether the folded term crossed the windowed hit
// threshold.
func (t *Tracker) IsPopular(term string) bool {
	folded := tokenizer.Fold(strings.TrimSpace(term))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decayLocked()
	return t.counts[folded] >= t.minHits
}

// decayLocked halves every counter once per interval, dropping terms that
// reach zero. Callers hold t.mu.
func (t *Tracker) decayLocked() {
	now := t.clk.Now()
	for now.Sub(t.lastDecay) >= decayInterval {
		for term, n := range t.counts {
			if n <= 1 {
				delete(t.counts, term)
			} else {
				t.counts[term] = n / 2
			}
		}
		t.lastDecay = t.lastDecay.Add(decayInterval)
	}
}

// Close stops accepting events and waits for the publisher to drain.
func (t *Tracker) Close() {
	close(t.eventCh)
	<-t.done
}
