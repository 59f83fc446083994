package otu

import (
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/amplicon/cluster"
	"github.com/grailbio/amplicon/encoding/fasta"
	"github.com/grailbio/base/tsv"
)

// TableRow is one OTU's per-sample counts.
type TableRow struct {
	OTUID  string
	RepSeq string
	Counts map[string]int
	// Total is the sum of Counts, the row sort key.
	Total int
}

// Table is the final sample x OTU count matrix plus the per-sample
// count of accepted reads that landed in no OTU. Rows are ordered by
// descending total with a lexicographic tie-break on OTU ID; samples
// are alphabetical.
type Table struct {
	Samples    []string
	Rows       []TableRow
	Unassigned map[string]int
}

// BuildTable inflates the engine's cluster membership through the
// dereplication reverse index into per-sample read counts. Every
// accepted read is accounted for: reads of a clustered unique land in
// exactly one cell, and reads of chimeric, unclustered, or
// low-abundance uniques are tallied as unassigned for their sample.
func BuildTable(result cluster.Result, kept, dropped []Unique, samples []string) *Table {
	t := &Table{
		Samples:    append([]string(nil), samples...),
		Unassigned: map[string]int{},
	}
	sort.Strings(t.Samples)

	rows := map[string]*TableRow{}
	for _, otu := range result.OTUs {
		rows[otu.ID] = &TableRow{OTUID: otu.ID, RepSeq: otu.RepSeq, Counts: map[string]int{}}
	}
	for _, u := range kept {
		otuID, ok := result.Assignment[u.Label]
		if !ok {
			for sample, n := range u.PerSample {
				t.Unassigned[sample] += n
			}
			continue
		}
		row := rows[otuID]
		for sample, n := range u.PerSample {
			row.Counts[sample] += n
			row.Total += n
		}
	}
	for _, u := range dropped {
		for sample, n := range u.PerSample {
			t.Unassigned[sample] += n
		}
	}

	for _, row := range rows {
		t.Rows = append(t.Rows, *row)
	}
	sort.Slice(t.Rows, func(i, j int) bool {
		if t.Rows[i].Total != t.Rows[j].Total {
			return t.Rows[i].Total > t.Rows[j].Total
		}
		return t.Rows[i].OTUID < t.Rows[j].OTUID
	})
	return t
}

// AssignedReads returns the number of reads counted in some table cell.
func (t *Table) AssignedReads() int {
	n := 0
	for _, row := range t.Rows {
		n += row.Total
	}
	return n
}

// UnassignedReads returns the number of accepted reads in no OTU.
func (t *Table) UnassignedReads() int {
	n := 0
	for _, v := range t.Unassigned {
		n += v
	}
	return n
}

// WriteTo writes the table as TSV: a '#'-prefixed header row, then one
// row per OTU with its representative sequence and per-sample counts.
func (t *Table) WriteTo(w io.Writer) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("#OTU ID")
	tw.WriteString("representative")
	for _, sample := range t.Samples {
		tw.WriteString(sample)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, row := range t.Rows {
		tw.WriteString(row.OTUID)
		tw.WriteString(row.RepSeq)
		for _, sample := range t.Samples {
			tw.WriteUint32(uint32(row.Counts[sample]))
		}
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteRepresentatives writes the representative sequence of every OTU
// as FASTA, in table row order, optionally with abundance annotations.
func (t *Table) WriteRepresentatives(w io.Writer, sizeAnnotations bool) error {
	fw := fasta.NewWriter(w)
	for _, row := range t.Rows {
		label := row.OTUID
		if sizeAnnotations {
			label = fasta.SizeLabel(row.OTUID, row.Total)
		}
		rec := fasta.Record{Label: label, Seq: row.RepSeq}
		if err := fw.Write(&rec); err != nil {
			return err
		}
	}
	return nil
}

// WriteDiscards writes the discard log as TSV (read id, sample, reason).
func WriteDiscards(w io.Writer, discards []Discard) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("#read_id")
	tw.WriteString("sample")
	tw.WriteString("reason")
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, d := range discards {
		tw.WriteString(d.ReadID)
		tw.WriteString(d.Sample)
		tw.WriteString(d.Reason.String())
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteReport writes the human-readable end-of-run summary.
// sampleReads holds the per-sample demultiplexed read counts.
func WriteReport(w io.Writer, runID string, stats Stats, sampleReads map[string]int, t *Table) error {
	var err error
	printf := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	printf("run\t%s\n", runID)
	printf("reads\t%d\n", stats.Reads)
	printf("demultiplexed\t%d\n", stats.Demuxed)
	for _, sample := range t.Samples {
		printf("demultiplexed[%s]\t%d\n", sample, sampleReads[sample])
	}
	printf("no_barcode\t%d\n", stats.NoBarcode)
	printf("ambiguous_barcode\t%d\n", stats.AmbiguousBarcode)
	printf("no_primer\t%d\n", stats.NoPrimer)
	printf("too_short\t%d\n", stats.TooShort)
	printf("low_quality\t%d\n", stats.LowQuality)
	printf("accepted\t%d\n", stats.Accepted)
	printf("unique_sequences\t%d\n", stats.Uniques)
	printf("low_abundance_uniques\t%d\n", stats.LowAbundanceUniques)
	printf("chimeras\t%d\n", stats.Chimeras)
	printf("otus\t%d\n", stats.OTUs)
	printf("assigned_reads\t%d\n", stats.Assigned)
	printf("unassigned_reads\t%d\n", stats.Unassigned)
	for _, sample := range t.Samples {
		printf("unassigned[%s]\t%d\n", sample, t.Unassigned[sample])
	}
	return err
}
