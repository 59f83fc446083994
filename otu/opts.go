package otu

import (
	"time"

	"github.com/pkg/errors"
)

// PrimerPolicy decides what happens to a read whose forward primer is
// not found within tolerance.
type PrimerPolicy int

const (
	// PrimerDiscard drops primer-less reads with ReasonNoPrimer.
	PrimerDiscard PrimerPolicy = iota
	// PrimerKeep passes primer-less reads through untrimmed.
	PrimerKeep
)

type Opts struct {
	// BarcodeMismatch is the max edit distance for barcode matching.
	// Zero requires an exact prefix match.
	BarcodeMismatch int

	// Primer is the forward primer expected right after the barcode.
	// Empty disables primer trimming.
	Primer string
	// PrimerMismatch is the max Hamming distance over the primer window.
	PrimerMismatch int
	PrimerPolicy   PrimerPolicy

	// TruncLen truncates accepted reads to a fixed post-trim length;
	// reads shorter than this are discarded. Zero disables truncation.
	TruncLen int
	// MaxEE is the expected-error ceiling (sum of per-base error
	// probabilities) over the trimmed window.
	MaxEE float64
	// MinLength rejects reads whose trimmed length falls below it.
	MinLength int

	// Identity is the clustering similarity threshold as a fraction.
	Identity float64
	// ChimeraFilter excludes chimera-flagged sequences from all OTUs.
	ChimeraFilter bool
	// MinUniqueSize drops unique sequences with fewer member reads
	// before clustering; their reads are tallied as unassigned.
	MinUniqueSize int
	// SizeAnnotations carries ";size=N;" abundance annotations on the
	// representative sequences written to the output FASTA.
	SizeAnnotations bool
	// KeepFiltered writes the accepted, trimmed reads as FASTQ next to
	// the other outputs.
	KeepFiltered bool

	// Parallelism is the per-stage worker count. Zero means one worker
	// per CPU.
	Parallelism int
	// EngineTimeout bounds the external clustering engine invocation.
	EngineTimeout time.Duration
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	BarcodeMismatch: 0,             // -barcode-mismatch
	PrimerMismatch:  2,             // -primer-mismatch
	PrimerPolicy:    PrimerKeep,    // -require-primer flips to PrimerDiscard
	TruncLen:        250,           // -trunc-len
	MaxEE:           1.0,           // -max-ee
	MinLength:       50,            // -min-length
	Identity:        0.97,          // -identity
	ChimeraFilter:   true,          // -chimera-filter
	MinUniqueSize:   2,             // -min-unique-size
	SizeAnnotations: true,          // -size-annotations
	EngineTimeout:   2 * time.Hour, // -engine-timeout
}

// Validate rejects out-of-range settings before the pipeline starts.
func (o *Opts) Validate() error {
	if o.BarcodeMismatch < 0 {
		return errors.Errorf("barcode mismatch tolerance must be >= 0, got %d", o.BarcodeMismatch)
	}
	if o.PrimerMismatch < 0 {
		return errors.Errorf("primer mismatch tolerance must be >= 0, got %d", o.PrimerMismatch)
	}
	if o.TruncLen < 0 {
		return errors.Errorf("truncation length must be >= 0, got %d", o.TruncLen)
	}
	if o.MaxEE <= 0 {
		return errors.Errorf("expected-error threshold must be > 0, got %v", o.MaxEE)
	}
	if o.MinLength < 0 {
		return errors.Errorf("minimum length must be >= 0, got %d", o.MinLength)
	}
	if o.Identity <= 0 || o.Identity > 1 {
		return errors.Errorf("cluster identity must be in (0, 1], got %v", o.Identity)
	}
	if o.MinUniqueSize < 1 {
		return errors.Errorf("minimum unique size must be >= 1, got %d", o.MinUniqueSize)
	}
	if o.Parallelism < 0 {
		return errors.Errorf("parallelism must be >= 0, got %d", o.Parallelism)
	}
	if o.EngineTimeout <= 0 {
		return errors.Errorf("engine timeout must be > 0, got %v", o.EngineTimeout)
	}
	return nil
}
