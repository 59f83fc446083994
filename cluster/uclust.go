package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/grailbio/amplicon/encoding/fasta"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// UClust invokes a USEARCH-compatible clustering executable as a
// subprocess. It serializes the abundance-sorted input to FASTA, runs the
// engine's greedy OTU clustering with de novo chimera detection, and
// parses the UPARSE tabbed output and representative FASTA back into a
// Result.
type UClust struct {
	// Path is the engine executable, e.g. "usearch".
	Path string
	// ExtraArgs are appended verbatim to the engine command line.
	ExtraArgs []string
	// KeepWorkDir retains the temporary work directory for debugging.
	KeepWorkDir bool
}

var _ Engine = (*UClust)(nil)

// commandArgs builds the engine command line for the given work
// directory and config. Separated out so the flag translation (identity
// fraction to OTU radius percent) is testable without a subprocess.
func (u *UClust) commandArgs(dir string, cfg Config) []string {
	// Radius percent, rounded to a tenth so 0.97 renders as 3, not as
	// the float64 representation error of 100-97.
	radius := math.Round((1-cfg.Identity)*1000) / 10
	args := []string{
		"-cluster_otus", filepath.Join(dir, "input.fa"),
		"-otu_radius_pct", fmt.Sprintf("%g", radius),
		"-relabel", "OTU_",
		"-sizein", "-sizeout",
		"-uparseout", filepath.Join(dir, "clusters.up"),
		"-otus", filepath.Join(dir, "otus.fa"),
	}
	return append(args, u.ExtraArgs...)
}

// Cluster implements Engine. The context bounds the engine run; on
// timeout or non-zero exit no partial result is returned.
func (u *UClust) Cluster(ctx context.Context, inputs []Input, cfg Config) (Result, error) {
	if err := ValidateConfig(cfg); err != nil {
		return Result{}, err
	}
	dir, err := ioutil.TempDir("", "bio-otu-uclust")
	if err != nil {
		return Result{}, errors.Wrap(err, "creating engine work dir")
	}
	if !u.KeepWorkDir {
		defer os.RemoveAll(dir) // nolint: errcheck
	} else {
		vlog.Infof("uclust: keeping work dir %s", dir)
	}

	if err := writeInput(filepath.Join(dir, "input.fa"), inputs); err != nil {
		return Result{}, err
	}

	args := u.commandArgs(dir, cfg)
	vlog.VI(1).Infof("uclust: %s %s", u.Path, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, u.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = ctx.Err()
		}
		vlog.Errorf("uclust: %s failed: %v", u.Path, err)
		return Result{}, &Error{Op: "cluster_otus", Err: err, Stderr: trimStderr(stderr.String())}
	}

	up, err := os.Open(filepath.Join(dir, "clusters.up"))
	if err != nil {
		return Result{}, &Error{Op: "cluster_otus", Err: errors.Wrap(err, "missing uparse output")}
	}
	defer up.Close() // nolint: errcheck
	repsFile, err := os.Open(filepath.Join(dir, "otus.fa"))
	if err != nil {
		return Result{}, &Error{Op: "cluster_otus", Err: errors.Wrap(err, "missing representative output")}
	}
	defer repsFile.Close() // nolint: errcheck
	reps, err := fasta.ReadAll(repsFile)
	if err != nil {
		return Result{}, &Error{Op: "cluster_otus", Err: err}
	}
	result, err := parseResult(up, reps, cfg)
	if err != nil {
		return Result{}, &Error{Op: "cluster_otus", Err: err}
	}
	vlog.VI(1).Infof("uclust: %d inputs -> %d OTUs, %d chimeras",
		len(inputs), len(result.OTUs), len(result.Chimeras))
	return result, nil
}

func writeInput(path string, inputs []Input) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "writing engine input")
	}
	w := fasta.NewWriter(f)
	for i := range inputs {
		rec := fasta.Record{Label: inputs[i].Label, Seq: inputs[i].Seq}
		if err := w.Write(&rec); err != nil {
			_ = f.Close()
			return errors.Wrap(err, "writing engine input")
		}
	}
	return f.Close()
}

// trimStderr keeps the tail of the engine's stderr; USEARCH prints a
// license banner before any diagnostic.
func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	const max = 512
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}
