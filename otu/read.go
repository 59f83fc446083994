// Package otu implements an amplicon-sequencing OTU pipeline: it
// demultiplexes raw reads by barcode, trims primers and low-quality
// tails, dereplicates the survivors into abundance-annotated unique
// sequences, hands those to an external clustering engine, and maps
// every read back through the cluster assignment into a sample x OTU
// count table.
//
// Per-read failures (no barcode, no primer, too short, low quality)
// are reason codes aggregated into Stats, never errors; only malformed
// input and engine failures abort a run.
package otu

import (
	"github.com/pkg/errors"
)

// Read is one sequencing read and its provenance through the pipeline.
// Seq and Qual are the raw, untrimmed values; TrimStart/TrimEnd are the
// half-open window selected by the trim stage. Sample and Barcode are
// filled in by demultiplexing. A Read is never modified after it enters
// dereplication.
type Read struct {
	ID   string
	Seq  string
	Qual string // ASCII Phred+33, same length as Seq

	Sample  string
	Barcode string

	TrimStart int
	TrimEnd   int

	// Index is the read's position in the ingested input, used to keep
	// parallel stage output deterministic.
	Index int
}

// NewRead validates the length invariant and returns a Read covering
// the whole sequence.
func NewRead(id, seq, qual string, index int) (Read, error) {
	if len(seq) != len(qual) {
		return Read{}, errors.Errorf("read %s: sequence length %d != quality length %d", id, len(seq), len(qual))
	}
	return Read{ID: id, Seq: seq, Qual: qual, TrimEnd: len(seq), Index: index}, nil
}

// Trimmed returns the accepted subsequence.
func (r *Read) Trimmed() string { return r.Seq[r.TrimStart:r.TrimEnd] }

// TrimmedQual returns the quality string over the accepted subsequence.
func (r *Read) TrimmedQual() string { return r.Qual[r.TrimStart:r.TrimEnd] }

// Reason classifies why a read was dropped from the pipeline.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonNoBarcode: no sample barcode matched within tolerance.
	ReasonNoBarcode
	// ReasonAmbiguousBarcode: two or more barcodes tied within tolerance.
	ReasonAmbiguousBarcode
	// ReasonNoPrimer: the forward primer was absent and the policy is to
	// discard such reads.
	ReasonNoPrimer
	// ReasonTooShort: trimmed length below the truncation or minimum
	// length threshold.
	ReasonTooShort
	// ReasonLowQuality: expected errors over the trimmed window exceed
	// the threshold.
	ReasonLowQuality
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoBarcode:
		return "no_barcode"
	case ReasonAmbiguousBarcode:
		return "ambiguous_barcode"
	case ReasonNoPrimer:
		return "no_primer"
	case ReasonTooShort:
		return "too_short"
	case ReasonLowQuality:
		return "low_quality"
	}
	return "unknown"
}

// Discard records one dropped read for the end-of-run report.
type Discard struct {
	ReadID string
	Sample string // empty when dropped before demultiplexing succeeded
	Reason Reason
}
