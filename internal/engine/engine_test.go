package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"vintedwatch/monitor-service/internal/engine"
	"vintedwatch/monitor-service/internal/model"
	"vintedwatch/monitor-service/internal/store"
)

// fakeFetcher serves canned listings per search id, or a canned error.
type fakeFetcher struct {
	mu       sync.Mutex
	listings map[string][]model.Listing
	fail     map[string]error
	calls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		listings: make(map[string][]model.Listing),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, def model.SearchDefinition) ([]model.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[def.ID]++
	if err := f.fail[def.ID]; err != nil {
		return nil, err
	}
	return f.listings[def.ID], nil
}

// fakeSink records every notification it is handed.
type fakeSink struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (s *fakeSink) Send(ctx context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeSink) sentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sent))
	for _, n := range s.sent {
		ids = append(ids, n.Listing.ID)
	}
	return ids
}

// failingSeen wraps a SeenStore and fails every Mark.
type failingSeen struct {
	store.SeenStore
}

func (f *failingSeen) Mark(ctx context.Context, searchID, listingID string) error {
	return errors.New("disk full")
}

func newTestStore(t *testing.T) *store.JSONStore {
	t.Helper()
	s, err := store.NewJSONStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return s
}

func addSearch(t *testing.T, s store.SearchRegistry, def model.SearchDefinition) model.SearchDefinition {
	t.Helper()
	if def.Channel == "" {
		def.Channel = "123"
	}
	created, err := s.Add(context.Background(), def)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return created
}

// ── RunCycle — matching, dedup, idempotence ────────────────────────────────

func TestRunCycle_PriceFilterScenario(t *testing.T) {
	// search {keyword: nike, maxPrice: 40} against two hoodies: only the
	// one under price is notified.
	st := newTestStore(t)
	def := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 40})

	fetcher := newFakeFetcher()
	fetcher.listings[def.ID] = []model.Listing{
		{ID: "1", Title: "Nike hoodie", Brand: "Nike", Size: "M", Price: 35},
		{ID: "2", Title: "Nike hoodie", Brand: "Nike", Size: "M", Price: 50},
	}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)
	eng.RunCycle(context.Background())

	got := sink.sentIDs()
	if len(got) != 1 || got[0] != "1" {
		t.Fatalf("notified ids = %v, want exactly [1]", got)
	}
}

func TestRunCycle_RetickProducesNoDuplicates(t *testing.T) {
	st := newTestStore(t)
	def := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 40})

	fetcher := newFakeFetcher()
	fetcher.listings[def.ID] = []model.Listing{
		{ID: "1", Title: "Nike hoodie", Price: 35},
	}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)

	eng.RunCycle(context.Background())
	eng.RunCycle(context.Background())
	eng.RunCycle(context.Background())

	if got := len(sink.sentIDs()); got != 1 {
		t.Fatalf("notified %d times across identical re-ticks, want 1", got)
	}
}

func TestRunCycle_SeenPairNeverRenotified(t *testing.T) {
	st := newTestStore(t)
	def := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 40})

	if err := st.Mark(context.Background(), def.ID, "1"); err != nil {
		t.Fatal(err)
	}

	fetcher := newFakeFetcher()
	fetcher.listings[def.ID] = []model.Listing{
		{ID: "1", Title: "Nike hoodie", Price: 35},
		{ID: "3", Title: "Nike cap", Price: 10},
	}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)
	eng.RunCycle(context.Background())

	got := sink.sentIDs()
	if len(got) != 1 || got[0] != "3" {
		t.Fatalf("notified ids = %v, want [3] — pre-seen listing must stay silent", got)
	}
}

func TestRunCycle_SameListingNotifiesEachSearch(t *testing.T) {
	// Seen-state is keyed per (search, listing): one listing may fire for
	// two searches with different destinations.
	st := newTestStore(t)
	a := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 40, Channel: "100"})
	b := addSearch(t, st, model.SearchDefinition{Keyword: "hoodie", MaxPrice: 40, Channel: "200"})

	l := model.Listing{ID: "1", Title: "Nike hoodie", Price: 35}
	fetcher := newFakeFetcher()
	fetcher.listings[a.ID] = []model.Listing{l}
	fetcher.listings[b.ID] = []model.Listing{l}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)
	eng.RunCycle(context.Background())

	if got := len(sink.sentIDs()); got != 2 {
		t.Fatalf("notified %d times, want 2 (once per search)", got)
	}
}

// ── RunCycle — ordering and caps ───────────────────────────────────────────

func TestRunCycle_PreservesUpstreamOrder(t *testing.T) {
	st := newTestStore(t)
	def := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 100})

	fetcher := newFakeFetcher()
	fetcher.listings[def.ID] = []model.Listing{
		{ID: "9", Title: "nike a", Price: 10},
		{ID: "8", Title: "nike b", Price: 10},
		{ID: "7", Title: "nike c", Price: 10},
	}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)
	eng.RunCycle(context.Background())

	got := sink.sentIDs()
	want := []string{"9", "8", "7"}
	if len(got) != len(want) {
		t.Fatalf("notified ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("notified ids = %v, want newest-first %v", got, want)
		}
	}
}

func TestRunCycle_PerTickCap(t *testing.T) {
	st := newTestStore(t)
	def := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 100})

	fetcher := newFakeFetcher()
	for i := 0; i < 8; i++ {
		fetcher.listings[def.ID] = append(fetcher.listings[def.ID],
			model.Listing{ID: string(rune('a' + i)), Title: "nike", Price: 10})
	}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 3)

	eng.RunCycle(context.Background())
	if got := len(sink.sentIDs()); got != 3 {
		t.Fatalf("first cycle notified %d, want cap of 3", got)
	}

	// The remainder drains on subsequent cycles.
	eng.RunCycle(context.Background())
	eng.RunCycle(context.Background())
	if got := len(sink.sentIDs()); got != 8 {
		t.Fatalf("after three cycles notified %d, want all 8", got)
	}
}

// ── RunCycle — failure handling ────────────────────────────────────────────

func TestRunCycle_FetchFailureIsolatedPerSearch(t *testing.T) {
	st := newTestStore(t)
	a := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 40})
	b := addSearch(t, st, model.SearchDefinition{Keyword: "zara", MaxPrice: 40})

	fetcher := newFakeFetcher()
	fetcher.fail[a.ID] = errors.New("upstream 429")
	fetcher.listings[b.ID] = []model.Listing{
		{ID: "5", Title: "Zara coat", Price: 20},
	}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)
	eng.RunCycle(context.Background())

	got := sink.sentIDs()
	if len(got) != 1 || got[0] != "5" {
		t.Fatalf("notified ids = %v, want [5] despite the other search failing", got)
	}

	// The failed search left no seen marks behind.
	seen, err := st.Has(context.Background(), a.ID, "5")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("failed fetch must not advance seen state")
	}
}

func TestRunCycle_FetchFailureLeavesSeenUnchangedAndRetriesNextTick(t *testing.T) {
	st := newTestStore(t)
	def := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 40})

	fetcher := newFakeFetcher()
	fetcher.fail[def.ID] = errors.New("HTTP 429")

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)
	eng.RunCycle(context.Background())

	if len(sink.sentIDs()) != 0 {
		t.Fatal("failed fetch must emit zero notifications")
	}

	// Next tick the upstream recovers and the listing goes out.
	fetcher.mu.Lock()
	delete(fetcher.fail, def.ID)
	fetcher.listings[def.ID] = []model.Listing{{ID: "1", Title: "Nike hoodie", Price: 35}}
	fetcher.mu.Unlock()

	eng.RunCycle(context.Background())
	if got := sink.sentIDs(); len(got) != 1 || got[0] != "1" {
		t.Fatalf("notified ids after recovery = %v, want [1]", got)
	}
}

func TestRunCycle_MarkFailureStopsSearchAdvance(t *testing.T) {
	st := newTestStore(t)
	def := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 40})

	fetcher := newFakeFetcher()
	fetcher.listings[def.ID] = []model.Listing{
		{ID: "1", Title: "Nike hoodie", Price: 35},
		{ID: "2", Title: "Nike cap", Price: 15},
	}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, &failingSeen{SeenStore: st}, sink, zap.NewNop(), 5)
	eng.RunCycle(context.Background())

	// The first send was already attempted when the mark failed; the
	// evaluation then stops instead of racing ahead of its own state.
	if got := len(sink.sentIDs()); got != 1 {
		t.Fatalf("notified %d listings with a broken seen store, want 1 then abort", got)
	}
}

// blockingFetcher parks the first fetch for one search until released,
// so a test can hold an evaluation open across cycles.
type blockingFetcher struct {
	mu       sync.Mutex
	listings map[string][]model.Listing
	calls    map[string]int
	blockID  string
	entered  chan struct{}
	release  chan struct{}
}

func newBlockingFetcher(blockID string) *blockingFetcher {
	return &blockingFetcher{
		listings: make(map[string][]model.Listing),
		calls:    make(map[string]int),
		blockID:  blockID,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (f *blockingFetcher) Fetch(ctx context.Context, def model.SearchDefinition) ([]model.Listing, error) {
	f.mu.Lock()
	f.calls[def.ID]++
	first := f.calls[def.ID] == 1
	listings := f.listings[def.ID]
	f.mu.Unlock()

	if def.ID == f.blockID && first {
		close(f.entered)
		<-f.release
	}
	return listings, nil
}

func (f *blockingFetcher) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestRunCycle_BusySearchIsNeverDoubleStarted(t *testing.T) {
	// While search A's first evaluation is still in flight, a second cycle
	// must skip A entirely (no concurrent fetch, no duplicate notification)
	// yet still evaluate search B.
	st := newTestStore(t)
	a := addSearch(t, st, model.SearchDefinition{Keyword: "nike", MaxPrice: 40})
	b := addSearch(t, st, model.SearchDefinition{Keyword: "zara", MaxPrice: 40})

	fetcher := newBlockingFetcher(a.ID)
	fetcher.listings[a.ID] = []model.Listing{{ID: "1", Title: "Nike hoodie", Price: 35}}
	fetcher.listings[b.ID] = []model.Listing{{ID: "5", Title: "Zara coat", Price: 20}}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)

	firstDone := make(chan struct{})
	go func() {
		eng.RunCycle(context.Background())
		close(firstDone)
	}()
	<-fetcher.entered // first cycle is now parked inside A's fetch

	// Further cycles run to completion while A is still busy. B's first
	// evaluation may itself still be winding down, so cycle until B has
	// demonstrably been re-evaluated; dedup keeps the counts exact.
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount(b.ID) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second evaluation of the idle search never ran")
		}
		eng.RunCycle(context.Background())
	}

	if got := fetcher.callCount(a.ID); got != 1 {
		t.Fatalf("busy search fetched %d times, want 1 (overlap guard failed)", got)
	}

	close(fetcher.release)
	<-firstDone

	// Across both cycles each listing notified exactly once.
	counts := make(map[string]int)
	for _, id := range sink.sentIDs() {
		counts[id]++
	}
	if counts["1"] != 1 || counts["5"] != 1 {
		t.Fatalf("notification counts = %v, want exactly one per listing", counts)
	}
}

func TestRunCycle_PartialListingDegradesGracefully(t *testing.T) {
	// A listing with missing optional fields must not abort the pass for
	// the listings after it.
	st := newTestStore(t)
	def := addSearch(t, st, model.SearchDefinition{Keyword: "hoodie", MaxPrice: 40})

	fetcher := newFakeFetcher()
	fetcher.listings[def.ID] = []model.Listing{
		{ID: "1", Title: "Plain hoodie", Brand: "Unknown", Size: "Unknown", Price: 0},
		{ID: "2", Title: "Nike hoodie", Brand: "Nike", Size: "M", Price: 35},
	}

	sink := &fakeSink{}
	eng := engine.New(fetcher, st, st, sink, zap.NewNop(), 5)
	eng.RunCycle(context.Background())

	if got := len(sink.sentIDs()); got != 2 {
		t.Fatalf("notified %d, want 2 — defaulted fields still notify", got)
	}
}
