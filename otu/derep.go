package otu

import (
	"sort"
	"strconv"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/traverse"
)

// Unique is one dereplicated sequence: a distinct trimmed sequence with
// its total abundance, member read IDs, and per-sample counts. Count ==
// len(ReadIDs) always holds.
type Unique struct {
	// Label is the stable name ("Uniq1", "Uniq2", ...) assigned in the
	// final abundance-sorted order.
	Label string
	Seq   string
	Count int
	// ReadIDs lists member reads in ingestion order.
	ReadIDs   []string
	PerSample map[string]int
}

// Dereplicate groups accepted reads by exact trimmed sequence. The
// sequence space is sharded by hash across workers; the merged result
// is sorted by descending abundance with a lexicographic tie-break on
// the sequence, the order the greedy clustering engine requires, then
// labeled. The same read set always produces the same uniques in the
// same order regardless of parallelism.
func Dereplicate(reads []Read, parallelism int) ([]Unique, error) {
	nShard := 4 * parallelism
	buckets := make([][]int, nShard)
	for i := range reads {
		h := farm.Hash64([]byte(reads[i].Trimmed()))
		shard := int(h % uint64(nShard))
		buckets[shard] = append(buckets[shard], i)
	}

	shardUniques := make([][]Unique, nShard)
	err := traverse.Each(nShard, func(shard int) error {
		group := map[string]*Unique{}
		var order []string
		for _, idx := range buckets[shard] {
			r := &reads[idx]
			seq := r.Trimmed()
			u := group[seq]
			if u == nil {
				u = &Unique{Seq: seq, PerSample: map[string]int{}}
				group[seq] = u
				order = append(order, seq)
			}
			u.Count++
			u.ReadIDs = append(u.ReadIDs, r.ID)
			u.PerSample[r.Sample]++
		}
		uniques := make([]Unique, 0, len(order))
		for _, seq := range order {
			uniques = append(uniques, *group[seq])
		}
		shardUniques[shard] = uniques
		return nil
	})
	if err != nil {
		return nil, err
	}

	var uniques []Unique
	for _, su := range shardUniques {
		uniques = append(uniques, su...)
	}
	sort.Slice(uniques, func(i, j int) bool {
		if uniques[i].Count != uniques[j].Count {
			return uniques[i].Count > uniques[j].Count
		}
		return uniques[i].Seq < uniques[j].Seq
	})
	for i := range uniques {
		uniques[i].Label = "Uniq" + strconv.Itoa(i+1)
	}
	return uniques, nil
}

// PartitionBySize splits abundance-sorted uniques into those meeting
// the minimum unique size and those below it. The slice order is
// preserved in both halves.
func PartitionBySize(uniques []Unique, minSize int) (kept, dropped []Unique) {
	for _, u := range uniques {
		if u.Count >= minSize {
			kept = append(kept, u)
		} else {
			dropped = append(dropped, u)
		}
	}
	return kept, dropped
}
