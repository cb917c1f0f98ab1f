package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"vintedwatch/monitor-service/internal/model"
	"vintedwatch/monitor-service/internal/notify"
	"vintedwatch/monitor-service/internal/pricing"
	"vintedwatch/monitor-service/internal/store"
)

// Fetcher is the engine's view of the catalog client.
type Fetcher interface {
	Fetch(ctx context.Context, search model.SearchDefinition) ([]model.Listing, error)
}

// Engine evaluates every active search once per cycle. Searches run
// concurrently and share only the seen store; a per-search lock guarantees
// no two evaluations of the same search ever overlap, so the
// check-seen-then-mark sequence cannot race with itself.
type Engine struct {
	fetcher    Fetcher
	registry   store.SearchRegistry
	seen       store.SeenStore
	sink       notify.Sink
	log        *zap.Logger
	maxPerTick int

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-search overlap guard
}

// New constructs an Engine. maxPerTick bounds notifications per search per
// cycle; values below 1 fall back to the default of 5.
func New(fetcher Fetcher, registry store.SearchRegistry, seen store.SeenStore, sink notify.Sink, log *zap.Logger, maxPerTick int) *Engine {
	if maxPerTick < 1 {
		maxPerTick = 5
	}
	return &Engine{
		fetcher:    fetcher,
		registry:   registry,
		seen:       seen,
		sink:       sink,
		log:        log.With(zap.String("component", "engine")),
		maxPerTick: maxPerTick,
		locks:      make(map[string]*sync.Mutex),
	}
}

// RunCycle evaluates all active searches and blocks until every evaluation
// started by this cycle has finished. A search still busy from a previous
// cycle is skipped, never double-started.
func (e *Engine) RunCycle(ctx context.Context) {
	defs, err := e.registry.List(ctx)
	if err != nil {
		e.log.Error("cannot load searches, skipping cycle", zap.Error(err))
		return
	}
	if len(defs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, def := range defs {
		lock := e.searchLock(def.ID)
		if !lock.TryLock() {
			e.log.Warn("previous evaluation still running, skipping",
				zap.String("search_id", def.ID))
			continue
		}

		wg.Add(1)
		go func(def model.SearchDefinition) {
			defer wg.Done()
			defer lock.Unlock()
			e.evaluate(ctx, def)
		}(def)
	}
	wg.Wait()
}

func (e *Engine) searchLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks[id] == nil {
		e.locks[id] = &sync.Mutex{}
	}
	return e.locks[id]
}

// evaluate runs one pass for one search. Any failure here affects only this
// search; the next scheduled cycle is the retry.
func (e *Engine) evaluate(ctx context.Context, def model.SearchDefinition) {
	log := e.log.With(zap.String("search_id", def.ID))

	listings, err := e.fetcher.Fetch(ctx, def)
	if err != nil {
		log.Warn("fetch failed, skipping search this cycle", zap.Error(err))
		return
	}

	notified := 0
	for _, l := range listings { // upstream order: newest first
		if notified >= e.maxPerTick {
			break
		}

		seen, err := e.seen.Has(ctx, def.ID, l.ID)
		if err != nil {
			// Without a trustworthy seen check we cannot notify safely.
			log.Error("seen store unavailable, aborting search this cycle", zap.Error(err))
			return
		}
		if seen {
			continue
		}

		if !Matches(def, l) {
			continue
		}

		cost, err := pricing.Estimate(l.Price)
		if err != nil {
			log.Warn("listing has unusable price, skipping it",
				zap.String("listing_id", l.ID), zap.Error(err))
			continue
		}

		n := model.Notification{
			SearchID: def.ID,
			Channel:  def.Channel,
			Listing:  l,
			Cost:     cost,
		}

		// Best-effort send, then mark. A crash between the two re-sends on
		// restart: delivery is at-least-once, never lost.
		if err := e.sink.Send(ctx, n); err != nil {
			log.Warn("notification send failed",
				zap.String("listing_id", l.ID), zap.Error(err))
		}

		if err := e.seen.Mark(ctx, def.ID, l.ID); err != nil {
			log.Error("cannot persist seen mark, aborting search this cycle",
				zap.String("listing_id", l.ID), zap.Error(err))
			return
		}
		notified++
	}

	if notified > 0 {
		log.Info("cycle complete", zap.Int("notified", notified), zap.Int("fetched", len(listings)))
	}
}
