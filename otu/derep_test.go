package otu

import (
	"fmt"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// acceptedRead builds a fully-trimmed read for dereplication tests.
func acceptedRead(id, sample, seq string) Read {
	return Read{ID: id, Seq: seq, Qual: qual('I', len(seq)), Sample: sample, TrimEnd: len(seq)}
}

func TestDereplicate(t *testing.T) {
	reads := []Read{
		acceptedRead("r1", "s1", "AAAA"),
		acceptedRead("r2", "s2", "CCCC"),
		acceptedRead("r3", "s1", "AAAA"),
		acceptedRead("r4", "s1", "GGGG"),
		acceptedRead("r5", "s2", "AAAA"),
		acceptedRead("r6", "s2", "CCCC"),
	}
	uniques, err := Dereplicate(reads, 2)
	require.NoError(t, err)
	require.Len(t, uniques, 3)

	expect.EQ(t, uniques[0], Unique{
		Label:     "Uniq1",
		Seq:       "AAAA",
		Count:     3,
		ReadIDs:   []string{"r1", "r3", "r5"},
		PerSample: map[string]int{"s1": 2, "s2": 1},
	})
	expect.EQ(t, uniques[1].Label, "Uniq2")
	expect.EQ(t, uniques[1].Seq, "CCCC")
	expect.EQ(t, uniques[1].Count, 2)
	// Singleton last, after the abundance tie-break.
	expect.EQ(t, uniques[2].Label, "Uniq3")
	expect.EQ(t, uniques[2].Seq, "GGGG")
	expect.EQ(t, uniques[2].Count, 1)

	for _, u := range uniques {
		expect.EQ(t, u.Count, len(u.ReadIDs))
	}
}

// Equal-abundance uniques sort lexicographically by sequence so the
// engine submission order is reproducible.
func TestDereplicateTieBreak(t *testing.T) {
	reads := []Read{
		acceptedRead("r1", "s1", "TTTT"),
		acceptedRead("r2", "s1", "AAAA"),
		acceptedRead("r3", "s1", "CCCC"),
	}
	uniques, err := Dereplicate(reads, 3)
	require.NoError(t, err)
	require.Len(t, uniques, 3)
	expect.EQ(t, uniques[0].Seq, "AAAA")
	expect.EQ(t, uniques[1].Seq, "CCCC")
	expect.EQ(t, uniques[2].Seq, "TTTT")
}

// Dereplication is idempotent and its output is independent of the
// worker count.
func TestDereplicateDeterminism(t *testing.T) {
	var reads []Read
	for i := 0; i < 200; i++ {
		seq := fmt.Sprintf("ACGT%04d", i%17)
		reads = append(reads, acceptedRead(fmt.Sprintf("r%d", i), fmt.Sprintf("s%d", i%3), seq))
	}
	want, err := Dereplicate(reads, 1)
	require.NoError(t, err)
	for _, parallelism := range []int{1, 4, 16} {
		got, err := Dereplicate(reads, parallelism)
		require.NoError(t, err)
		expect.EQ(t, got, want, "parallelism: %d", parallelism)
	}
}

func TestPartitionBySize(t *testing.T) {
	uniques := []Unique{
		{Label: "Uniq1", Count: 5},
		{Label: "Uniq2", Count: 2},
		{Label: "Uniq3", Count: 1},
	}
	kept, dropped := PartitionBySize(uniques, 2)
	require.Len(t, kept, 2)
	require.Len(t, dropped, 1)
	expect.EQ(t, kept[0].Label, "Uniq1")
	expect.EQ(t, kept[1].Label, "Uniq2")
	expect.EQ(t, dropped[0].Label, "Uniq3")

	kept, dropped = PartitionBySize(uniques, 1)
	expect.EQ(t, len(kept), 3)
	expect.EQ(t, len(dropped), 0)
}
