package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stockmaster/stocksync/internal/schema"
)

// latency summarises per-operation durations.
type latency struct {
	Count int
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

func summarise(durations []time.Duration) latency {
	if len(durations) == 0 {
		return latency{}
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	at := func(p float64) time.Duration {
		return sorted[int(float64(len(sorted)-1)*p)]
	}
	return latency{
		Count: len(sorted),
		Mean:  total / time.Duration(len(sorted)),
		P50:   at(0.50),
		P95:   at(0.95),
		Max:   sorted[len(sorted)-1],
	}
}

// TestStore_ConcurrentReadersAndWriters simulates the UI reading slots while
// sync commits land. Every read must see a complete value from some commit,
// and the final products and categories must come from the same commit.
func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	const (
		writers         = 4
		commitsPerWrite = 15
		readers         = 8
		readsPerReader  = 40
	)

	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				writeDurs []time.Duration
				readDurs  []time.Duration
			)
			errs := make(chan error, writers+readers)

			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					durs := make([]time.Duration, 0, commitsPerWrite)
					for i := 0; i < commitsPerWrite; i++ {
						gen := w*1000 + i
						value := []byte(fmt.Sprintf(`[{"id":%d,"gen":%d}]`, gen, gen))
						start := time.Now()
						err := st.PutAll(ctx, map[schema.Slot][]byte{
							schema.SlotProducts:   value,
							schema.SlotCategories: value,
						})
						durs = append(durs, time.Since(start))
						if err != nil {
							errs <- fmt.Errorf("writer %d commit %d: %w", w, i, err)
							return
						}
					}
					mu.Lock()
					writeDurs = append(writeDurs, durs...)
					mu.Unlock()
				}(w)
			}

			for r := 0; r < readers; r++ {
				wg.Add(1)
				go func(r int) {
					defer wg.Done()
					durs := make([]time.Duration, 0, readsPerReader)
					for i := 0; i < readsPerReader; i++ {
						start := time.Now()
						v, ok, err := st.Get(ctx, schema.SlotProducts)
						durs = append(durs, time.Since(start))
						if err != nil {
							errs <- fmt.Errorf("reader %d read %d: %w", r, i, err)
							return
						}
						if !ok {
							continue
						}
						var records []map[string]int
						if err := json.Unmarshal(v, &records); err != nil || len(records) != 1 {
							errs <- fmt.Errorf("reader %d saw a torn value %q", r, v)
							return
						}
					}
					mu.Lock()
					readDurs = append(readDurs, durs...)
					mu.Unlock()
				}(r)
			}

			wg.Wait()
			close(errs)
			for err := range errs {
				t.Error(err)
			}

			products, _, _ := st.Get(ctx, schema.SlotProducts)
			categories, _, _ := st.Get(ctx, schema.SlotCategories)
			if string(products) != string(categories) {
				t.Errorf("final slots come from different commits: products=%s categories=%s", products, categories)
			}

			ws, rs := summarise(writeDurs), summarise(readDurs)
			t.Logf("writes: n=%d mean=%v p50=%v p95=%v max=%v", ws.Count, ws.Mean, ws.P50, ws.P95, ws.Max)
			t.Logf("reads:  n=%d mean=%v p50=%v p95=%v max=%v", rs.Count, rs.Mean, rs.P50, rs.P95, rs.Max)
		})
	}
}

func TestSummarise(t *testing.T) {
	durs := []time.Duration{5, 1, 4, 2, 3}
	got := summarise(durs)
	if got.Count != 5 || got.Mean != 3 || got.P50 != 3 || got.Max != 5 {
		t.Errorf("summarise() = %+v", got)
	}
	if (summarise(nil) != latency{}) {
		t.Error("summarise(nil) should be zero")
	}
}
