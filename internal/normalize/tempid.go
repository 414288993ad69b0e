package normalize

import "github.com/stockmaster/stocksync/internal/schema"

// assignIDs returns one id per record. Records without a usable id get a
// temporary negative id strictly below every id already present in the
// collection, counting down in input order. The result depends only on raw,
// so repeated normalization of the same records yields the same ids.
func assignIDs(raw []schema.Record) []int64 {
	ids := make([]int64, len(raw))
	var lowest int64
	for i, r := range raw {
		id, ok := getInt(r, "id")
		if !ok || id == 0 {
			continue
		}
		ids[i] = id
		if id < lowest {
			lowest = id
		}
	}

	next := lowest - 1
	for i := range ids {
		if ids[i] == 0 {
			ids[i] = next
			next--
		}
	}
	return ids
}
