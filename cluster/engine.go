// Package cluster defines the boundary to the external sequence
// clustering engine. The pipeline treats the engine as a pure function:
// the same input and config must yield the same cluster assignment. Any
// engine failure (non-zero exit, timeout, unparsable output) is fatal to
// the run; no partial clustering result is ever returned.
package cluster

import (
	"context"
	"fmt"
)

// Input is one abundance-annotated sequence submitted for clustering.
// Inputs must be sorted in descending order of abundance before
// submission; the engine's greedy clustering is order-sensitive.
type Input struct {
	// Label is the sequence name, including its ";size=N;" annotation.
	Label string
	Seq   string
}

// Config selects the clustering behavior.
type Config struct {
	// Identity is the cluster similarity threshold as a fraction in (0, 1].
	Identity float64
	// ChimeraFilter excludes chimera-flagged sequences from all clusters.
	// When false, a chimera with a viable parent cluster is assigned to
	// that cluster instead of being dropped.
	ChimeraFilter bool
}

// OTU is one cluster produced by the engine. An OTU always has at least
// one member; clusters emptied by chimera filtering are dropped by the
// result parser, never returned.
type OTU struct {
	// ID is the engine-assigned label, e.g. "OTU_1".
	ID string
	// RepSeq is the representative (centroid) sequence, normalized to
	// upper-case GATC with engine padding stripped.
	RepSeq string
	// Members lists the input labels assigned to this OTU, without their
	// size annotations, in input order.
	Members []string
}

// Result is a complete, parsed clustering outcome.
type Result struct {
	// OTUs in engine output order.
	OTUs []OTU
	// Assignment maps each clustered input name (without size annotation)
	// to its OTU ID. Inputs flagged as chimeric or otherwise unassigned
	// are absent.
	Assignment map[string]string
	// Chimeras lists input names flagged as chimeric, in input order.
	Chimeras []string
}

// Engine clusters dereplicated sequences into OTUs.
type Engine interface {
	Cluster(ctx context.Context, inputs []Input, cfg Config) (Result, error)
}

// Error describes a fatal engine failure.
type Error struct {
	Op     string
	Err    error
	Stderr string
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("clustering engine %s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("clustering engine %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ValidateConfig rejects out-of-range settings before the pipeline
// starts.
func ValidateConfig(cfg Config) error {
	if cfg.Identity <= 0 || cfg.Identity > 1 {
		return fmt.Errorf("cluster identity must be in (0, 1], got %v", cfg.Identity)
	}
	return nil
}
