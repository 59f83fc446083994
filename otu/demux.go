package otu

import (
	"io"
	"sort"
	"strings"

	"github.com/grailbio/amplicon/util"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// BarcodeMap is the sample <-> barcode table driving demultiplexing.
// Entries keep their file order; Samples() reports them alphabetically
// for output.
type BarcodeMap struct {
	entries []barcodeEntry
}

type barcodeEntry struct {
	Sample  string
	Barcode string
}

// ReadBarcodeMap parses a two-column TSV (sample, barcode). '#' lines
// are comments. Sample names and barcodes must both be unique, and
// barcodes must be non-empty GATC strings.
func ReadBarcodeMap(r io.Reader) (*BarcodeMap, error) {
	tr := tsv.NewReader(r)
	tr.Comment = '#'
	bm := &BarcodeMap{}
	seenSample := map[string]bool{}
	seenBarcode := map[string]bool{}
	for {
		var row struct {
			Sample  string
			Barcode string
		}
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "reading barcode map")
		}
		if row.Sample == "" || row.Barcode == "" {
			return nil, errors.Errorf("barcode map: empty sample or barcode in row %+v", row)
		}
		row.Barcode = strings.ToUpper(row.Barcode)
		if strings.Trim(row.Barcode, "GATC") != "" {
			return nil, errors.Errorf("barcode map: barcode %q for sample %s contains non-GATC bases", row.Barcode, row.Sample)
		}
		if seenSample[row.Sample] {
			return nil, errors.Errorf("barcode map: duplicate sample %s", row.Sample)
		}
		if seenBarcode[row.Barcode] {
			return nil, errors.Errorf("barcode map: duplicate barcode %s", row.Barcode)
		}
		// Prefix-nested barcodes would make an exact match ambiguous.
		for _, e := range bm.entries {
			if strings.HasPrefix(e.Barcode, row.Barcode) || strings.HasPrefix(row.Barcode, e.Barcode) {
				return nil, errors.Errorf("barcode map: barcodes %s (%s) and %s (%s) are prefix-nested",
					e.Barcode, e.Sample, row.Barcode, row.Sample)
			}
		}
		seenSample[row.Sample] = true
		seenBarcode[row.Barcode] = true
		bm.entries = append(bm.entries, barcodeEntry(row))
	}
	if len(bm.entries) == 0 {
		return nil, errors.New("barcode map: no entries")
	}
	return bm, nil
}

// Samples returns all sample names in alphabetical order.
func (bm *BarcodeMap) Samples() []string {
	samples := make([]string, len(bm.entries))
	for i, e := range bm.entries {
		samples[i] = e.Sample
	}
	sort.Strings(samples)
	return samples
}

// Len returns the number of (sample, barcode) pairs.
func (bm *BarcodeMap) Len() int { return len(bm.entries) }

// String renders the map in file order, for fingerprinting.
func (bm *BarcodeMap) String() string {
	var sb strings.Builder
	for _, e := range bm.entries {
		sb.WriteString(e.Sample)
		sb.WriteByte('\t')
		sb.WriteString(e.Barcode)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// match assigns a read sequence to a sample. An exact barcode prefix
// wins outright (exact ties are impossible: ReadBarcodeMap rejects
// duplicate and prefix-nested barcodes). With
// a nonzero tolerance the nearest barcode by prefix edit distance wins;
// a tie at the minimum distance is ambiguous and the read goes to the
// unmatched bin rather than being guessed.
func (bm *BarcodeMap) match(seq string, tolerance int) (sample, barcode string, reason Reason) {
	for _, e := range bm.entries {
		if strings.HasPrefix(seq, e.Barcode) {
			return e.Sample, e.Barcode, ReasonNone
		}
	}
	if tolerance == 0 {
		return "", "", ReasonNoBarcode
	}
	best := tolerance + 1
	bestIdx := -1
	tie := false
	for i, e := range bm.entries {
		dist, _ := util.PrefixDistance(e.Barcode, seq)
		if dist < best {
			best, bestIdx, tie = dist, i, false
		} else if dist == best {
			tie = true
		}
	}
	if bestIdx < 0 {
		return "", "", ReasonNoBarcode
	}
	if tie {
		return "", "", ReasonAmbiguousBarcode
	}
	e := bm.entries[bestIdx]
	return e.Sample, e.Barcode, ReasonNone
}

// Demultiplex assigns every read to a sample, or to the unmatched bin
// with a reason code. Reads are processed in parallel batches and the
// outputs merged in batch order, so the result is independent of worker
// scheduling.
func Demultiplex(reads []Read, bm *BarcodeMap, opts Opts, parallelism int) ([]Read, []Discard, Stats, error) {
	type batchOut struct {
		reads    []Read
		discards []Discard
		stats    Stats
	}
	outs := make([]batchOut, parallelism)
	err := traverse.Each(parallelism, func(jobIdx int) error {
		start := (jobIdx * len(reads)) / parallelism
		end := ((jobIdx + 1) * len(reads)) / parallelism
		out := &outs[jobIdx]
		for _, r := range reads[start:end] {
			out.stats.Reads++
			sample, barcode, reason := bm.match(r.Seq, opts.BarcodeMismatch)
			if reason != ReasonNone {
				out.stats.countDiscard(reason)
				out.discards = append(out.discards, Discard{ReadID: r.ID, Reason: reason})
				continue
			}
			r.Sample = sample
			r.Barcode = barcode
			out.stats.Demuxed++
			out.reads = append(out.reads, r)
		}
		return nil
	})
	if err != nil {
		return nil, nil, Stats{}, err
	}
	var (
		assigned []Read
		discards []Discard
		stats    Stats
	)
	for _, out := range outs {
		assigned = append(assigned, out.reads...)
		discards = append(discards, out.discards...)
		stats = stats.Merge(out.stats)
	}
	return assigned, discards, stats, nil
}
