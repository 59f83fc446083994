package otu

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func mustBarcodeMap(t *testing.T, tsv string) *BarcodeMap {
	bm, err := ReadBarcodeMap(strings.NewReader(tsv))
	require.NoError(t, err)
	return bm
}

func TestReadBarcodeMap(t *testing.T) {
	bm := mustBarcodeMap(t, "# sample\tbarcode\nsample2\tTTTT\nsample1\taaaa\n")
	expect.EQ(t, bm.Len(), 2)
	expect.EQ(t, bm.Samples(), []string{"sample1", "sample2"})

	for _, bad := range []string{
		"",
		"sample1\tAAAA\nsample1\tTTTT\n",
		"sample1\tAAAA\nsample2\tAAAA\n",
		"sample1\tAANA\n",
		"sample1\t\n",
		// Prefix-nested barcodes make exact matches ambiguous.
		"sample1\tAAAA\nsample2\tAAAAT\n",
		"sample1\tAAAAT\nsample2\tAAAA\n",
	} {
		_, err := ReadBarcodeMap(strings.NewReader(bad))
		expect.True(t, err != nil, "input: %q", bad)
	}
}

func TestBarcodeMatch(t *testing.T) {
	bm := mustBarcodeMap(t, "sample1\tAAAA\nsample2\tTTTT\n")
	tests := []struct {
		seq        string
		tolerance  int
		wantSample string
		wantReason Reason
	}{
		{"AAAAGGGG", 0, "sample1", ReasonNone},
		{"TTTTGGGG", 0, "sample2", ReasonNone},
		{"AATAGGGG", 0, "", ReasonNoBarcode},
		{"AATAGGGG", 1, "sample1", ReasonNone},
		{"GGGGGGGG", 1, "", ReasonNoBarcode},
	}
	for _, test := range tests {
		sample, _, reason := bm.match(test.seq, test.tolerance)
		expect.EQ(t, sample, test.wantSample, "seq: %s", test.seq)
		expect.EQ(t, reason, test.wantReason, "seq: %s", test.seq)
	}
}

// A read one edit from two different barcodes must go to the unmatched
// bin, never be assigned arbitrarily.
func TestBarcodeMatchAmbiguous(t *testing.T) {
	bm := mustBarcodeMap(t, "sample1\tAAAT\nsample2\tAAAG\n")
	sample, _, reason := bm.match("AAACGGGG", 1)
	expect.EQ(t, sample, "")
	expect.EQ(t, reason, ReasonAmbiguousBarcode)
	// At distance 1 from only one barcode the tie disappears.
	sample, _, reason = bm.match("AAATGGGG", 1)
	expect.EQ(t, sample, "sample1")
	expect.EQ(t, reason, ReasonNone)
}

func TestDemultiplex(t *testing.T) {
	bm := mustBarcodeMap(t, "sample1\tAAAA\nsample2\tTTTT\n")
	reads := []Read{
		{ID: "r1", Seq: "AAAAGGGG", Qual: "IIIIIIII", TrimEnd: 8},
		{ID: "r2", Seq: "CCCCGGGG", Qual: "IIIIIIII", TrimEnd: 8},
		{ID: "r3", Seq: "TTTTGGGG", Qual: "IIIIIIII", TrimEnd: 8},
	}
	for parallelism := 1; parallelism <= 4; parallelism++ {
		assigned, discards, stats, err := Demultiplex(reads, bm, DefaultOpts, parallelism)
		require.NoError(t, err)
		require.Len(t, assigned, 2)
		expect.EQ(t, assigned[0].Sample, "sample1")
		expect.EQ(t, assigned[0].Barcode, "AAAA")
		expect.EQ(t, assigned[1].Sample, "sample2")
		require.Len(t, discards, 1)
		expect.EQ(t, discards[0], Discard{ReadID: "r2", Reason: ReasonNoBarcode})
		expect.EQ(t, stats.Reads, 3)
		expect.EQ(t, stats.Demuxed, 2)
		expect.EQ(t, stats.NoBarcode, 1)
	}
}
