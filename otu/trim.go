package otu

import (
	"math"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/amplicon/util"
	"github.com/grailbio/base/traverse"
)

// trimOne applies the fixed trim/filter order to a demultiplexed read:
// barcode removal, primer trim, fixed-length truncation, expected-error
// filter, minimum length. It returns the read with final trim
// coordinates, or a discard reason.
func trimOne(r Read, opts Opts) (Read, Reason) {
	start := 0
	if r.Barcode != "" {
		if strings.HasPrefix(r.Seq, r.Barcode) {
			start = len(r.Barcode)
		} else {
			// Fuzzy barcode match: consume the read prefix the barcode
			// actually occupied, which may differ from its length.
			_, prefixLen := util.PrefixDistance(r.Barcode, r.Seq)
			start = prefixLen
		}
	}
	if opts.Primer != "" {
		window := r.Seq[start:]
		if len(window) < len(opts.Primer) {
			return Read{}, ReasonTooShort
		}
		window = window[:len(opts.Primer)]
		mismatches, err := matchr.Hamming(opts.Primer, window)
		if err == nil && mismatches <= opts.PrimerMismatch {
			start += len(opts.Primer)
		} else if opts.PrimerPolicy == PrimerDiscard {
			return Read{}, ReasonNoPrimer
		}
	}
	end := len(r.Seq)
	if opts.TruncLen > 0 {
		if end-start < opts.TruncLen {
			return Read{}, ReasonTooShort
		}
		end = start + opts.TruncLen
	}
	if expectedErrors(r.Qual[start:end]) > opts.MaxEE {
		return Read{}, ReasonLowQuality
	}
	if end-start < opts.MinLength {
		return Read{}, ReasonTooShort
	}
	r.TrimStart = start
	r.TrimEnd = end
	return r, ReasonNone
}

// expectedErrors sums per-base error probabilities over an ASCII
// Phred+33 quality string.
func expectedErrors(qual string) float64 {
	var ee float64
	for i := 0; i < len(qual); i++ {
		q := float64(qual[i] - 33)
		ee += math.Pow(10, -q/10)
	}
	return ee
}

// TrimFilter trims primers and truncates demultiplexed reads, then
// applies the quality and length filters. Accepted reads come back with
// final trim coordinates; everything else lands in the discard log.
// Batches are merged in order, so output order follows input order.
func TrimFilter(reads []Read, opts Opts, parallelism int) ([]Read, []Discard, Stats, error) {
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
			trimmed, reason := trimOne(r, opts)
			if reason != ReasonNone {
				out.stats.countDiscard(reason)
				out.discards = append(out.discards, Discard{ReadID: r.ID, Sample: r.Sample, Reason: reason})
				continue
			}
			out.stats.Accepted++
			out.reads = append(out.reads, trimmed)
		}
		return nil
	})
	if err != nil {
		return nil, nil, Stats{}, err
	}
	var (
		accepted []Read
		discards []Discard
		stats    Stats
	)
	for _, out := range outs {
		accepted = append(accepted, out.reads...)
		discards = append(discards, out.discards...)
		stats = stats.Merge(out.stats)
	}
	return accepted, discards, stats, nil
}
