package otu

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/google/uuid"
	"github.com/grailbio/amplicon/cluster"
	"github.com/grailbio/amplicon/encoding/fasta"
	"github.com/grailbio/amplicon/encoding/fastq"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// State is the orchestrator's position in the stage sequence.
type State int

const (
	StateIngest State = iota
	StateDemultiplex
	StateTrimFilter
	StateDereplicate
	StateCluster
	StateBuildTable
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIngest:
		return "Ingest"
	case StateDemultiplex:
		return "Demultiplex"
	case StateTrimFilter:
		return "TrimFilter"
	case StateDereplicate:
		return "Dereplicate"
	case StateCluster:
		return "Cluster"
	case StateBuildTable:
		return "BuildTable"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	}
	return "unknown"
}

// Pipeline runs the full raw-reads-to-OTU-table pipeline. Stages run
// sequentially; completed stage artifacts are cached by fingerprint
// under OutPrefix+".cache" so a re-run with an unchanged config prefix
// skips straight to the first changed stage.
type Pipeline struct {
	Opts   Opts
	Engine cluster.Engine

	// FastqPath is the raw read input, FASTQ, optionally gzipped.
	FastqPath string
	// BarcodePath is the sample <-> barcode TSV.
	BarcodePath string
	// OutPrefix prefixes every output and cache path.
	OutPrefix string

	state State
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID     string
	Stats     Stats
	Table     *Table
	TablePath string
	RepsPath  string
}

// State returns the pipeline's current (or terminal) state.
func (p *Pipeline) State() State { return p.state }

func (p *Pipeline) fail(err error) error {
	stage := p.state
	p.state = StateFailed
	return errors.Wrapf(err, "stage %s", stage)
}

// Run executes the pipeline to completion. Per-read failures are
// absorbed into Stats; any returned error means the run reached Failed
// and no table file was written.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	if err := p.Opts.Validate(); err != nil {
		return nil, err
	}
	parallelism := p.Opts.Parallelism
	if parallelism == 0 {
		parallelism = runtime.NumCPU()
	}
	runID := uuid.New().String()
	log.Printf("otu: run %s starting (input %s, parallelism %d)", runID, p.FastqPath, parallelism)

	cache, err := newArtifactCache(p.OutPrefix + ".cache")
	if err != nil {
		return nil, err
	}

	// Ingest. Unreadable or malformed input is the one pre-engine fatal
	// failure.
	p.state = StateIngest
	bm, err := p.readBarcodes()
	if err != nil {
		return nil, p.fail(err)
	}
	reads, seed, err := p.ingest()
	if err != nil {
		return nil, p.fail(err)
	}
	var stats Stats

	// Demultiplex.
	p.state = StateDemultiplex
	fpDemux := stageFingerprint("demux", demuxConfig(p.Opts, bm), seed)
	var demuxed stageArtifact
	ok, err := cache.lookup("demux", fpDemux, &demuxed)
	if err != nil {
		return nil, err
	}
	if !ok {
		demuxed.Reads, demuxed.Discards, demuxed.Stats, err = Demultiplex(reads, bm, p.Opts, parallelism)
		if err != nil {
			return nil, err
		}
		if err := cache.store("demux", fpDemux, &demuxed); err != nil {
			return nil, err
		}
	}
	stats = stats.Merge(demuxed.Stats)
	log.Printf("otu: demultiplexed %d/%d reads", stats.Demuxed, stats.Reads)

	// TrimFilter.
	p.state = StateTrimFilter
	fpTrim := stageFingerprint("trimfilter", trimConfig(p.Opts), fpDemux)
	var trimmed stageArtifact
	ok, err = cache.lookup("trimfilter", fpTrim, &trimmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		trimmed.Reads, trimmed.Discards, trimmed.Stats, err = TrimFilter(demuxed.Reads, p.Opts, parallelism)
		if err != nil {
			return nil, err
		}
		if err := cache.store("trimfilter", fpTrim, &trimmed); err != nil {
			return nil, err
		}
	}
	stats = stats.Merge(trimmed.Stats)
	log.Printf("otu: accepted %d/%d demultiplexed reads", stats.Accepted, stats.Demuxed)
	if p.Opts.KeepFiltered {
		if err := writeFileAtomic(p.OutPrefix+".filtered.fastq", func(w io.Writer) error {
			return writeFiltered(w, trimmed.Reads)
		}); err != nil {
			return nil, err
		}
	}

	// Dereplicate.
	p.state = StateDereplicate
	fpDerep := stageFingerprint("dereplicate", "", fpTrim)
	var derep derepArtifact
	ok, err = cache.lookup("dereplicate", fpDerep, &derep)
	if err != nil {
		return nil, err
	}
	if !ok {
		derep.Uniques, err = Dereplicate(trimmed.Reads, parallelism)
		if err != nil {
			return nil, err
		}
		if err := cache.store("dereplicate", fpDerep, &derep); err != nil {
			return nil, err
		}
	}
	kept, dropped := PartitionBySize(derep.Uniques, p.Opts.MinUniqueSize)
	stats.Uniques = len(derep.Uniques)
	stats.LowAbundanceUniques = len(dropped)
	log.Printf("otu: %d unique sequences, %d below minimum size", stats.Uniques, stats.LowAbundanceUniques)

	// Cluster. Engine failure, timeout, or unparsable output is fatal;
	// no partial result is accepted.
	p.state = StateCluster
	fpCluster := stageFingerprint("cluster", clusterConfig(p.Opts), fpDerep)
	var clustered clusterArtifact
	ok, err = cache.lookup("cluster", fpCluster, &clustered)
	if err != nil {
		return nil, err
	}
	if !ok {
		cctx, cancel := context.WithTimeout(ctx, p.Opts.EngineTimeout)
		clustered.Result, err = p.Engine.Cluster(cctx, clusterInputs(kept), cluster.Config{
			Identity:      p.Opts.Identity,
			ChimeraFilter: p.Opts.ChimeraFilter,
		})
		cancel()
		if err != nil {
			return nil, p.fail(err)
		}
		if err := cache.store("cluster", fpCluster, &clustered); err != nil {
			return nil, err
		}
	}
	stats.Chimeras = len(clustered.Result.Chimeras)

	// BuildTable and write the outputs.
	p.state = StateBuildTable
	table := BuildTable(clustered.Result, kept, dropped, bm.Samples())
	stats.OTUs = len(table.Rows)
	stats.Assigned = table.AssignedReads()
	stats.Unassigned = table.UnassignedReads()

	result := &RunResult{
		RunID:     runID,
		Stats:     stats,
		Table:     table,
		TablePath: p.OutPrefix + ".otu_table.txt",
		RepsPath:  p.OutPrefix + ".otus.fa",
	}
	sampleReads := map[string]int{}
	for i := range demuxed.Reads {
		sampleReads[demuxed.Reads[i].Sample]++
	}
	discards := append(append([]Discard(nil), demuxed.Discards...), trimmed.Discards...)
	if err := p.writeOutputs(result, sampleReads, discards); err != nil {
		return nil, err
	}
	p.state = StateDone
	log.Printf("otu: run %s done: %d OTUs, %d assigned, %d unassigned reads", runID, stats.OTUs, stats.Assigned, stats.Unassigned)
	log.Printf("otu: wrote %s, %s, %s.report.txt, %s.discards.txt", result.TablePath, result.RepsPath, p.OutPrefix, p.OutPrefix)
	return result, nil
}

// stageArtifact is the cached output of the demultiplex and trim/filter
// stages.
type stageArtifact struct {
	Reads    []Read
	Discards []Discard
	Stats    Stats
}

type derepArtifact struct {
	Uniques []Unique
}

type clusterArtifact struct {
	Result cluster.Result
}

func demuxConfig(opts Opts, bm *BarcodeMap) string {
	return "tol=" + strconv.Itoa(opts.BarcodeMismatch) + "\n" + bm.String()
}

func trimConfig(opts Opts) string {
	return fmt.Sprintf("primer=%s mismatch=%d policy=%d trunclen=%d maxee=%g minlen=%d",
		opts.Primer, opts.PrimerMismatch, opts.PrimerPolicy, opts.TruncLen, opts.MaxEE, opts.MinLength)
}

func clusterConfig(opts Opts) string {
	return fmt.Sprintf("identity=%g chimera=%t minsize=%d", opts.Identity, opts.ChimeraFilter, opts.MinUniqueSize)
}

// clusterInputs renders abundance-sorted uniques in the engine's input
// form, with size annotations.
func clusterInputs(kept []Unique) []cluster.Input {
	inputs := make([]cluster.Input, len(kept))
	for i, u := range kept {
		inputs[i] = cluster.Input{Label: fasta.SizeLabel(u.Label, u.Count), Seq: u.Seq}
	}
	return inputs
}

// writeFiltered renders accepted reads as FASTQ over their trimmed
// windows only, the form the downstream stages see.
func writeFiltered(w io.Writer, reads []Read) error {
	fw := fastq.NewWriter(w)
	for i := range reads {
		r := &reads[i]
		rec := fastq.Read{ID: r.ID, Seq: r.Trimmed(), Qual: r.TrimmedQual()}
		if err := fw.Write(&rec); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) readBarcodes() (*BarcodeMap, error) {
	f, err := os.Open(p.BarcodePath)
	if err != nil {
		return nil, errors.Wrap(err, "opening barcode map")
	}
	defer f.Close() // nolint: errcheck
	return ReadBarcodeMap(f)
}

// ingest loads the raw reads and seeds the artifact fingerprint chain
// with a content hash of the input file.
func (p *Pipeline) ingest() ([]Read, Fingerprint, error) {
	raw, err := os.Open(p.FastqPath)
	if err != nil {
		return nil, Fingerprint{}, errors.Wrap(err, "opening input")
	}
	defer raw.Close() // nolint: errcheck
	seed, err := inputFingerprint(raw)
	if err != nil {
		return nil, Fingerprint{}, err
	}
	if _, err := raw.Seek(0, io.SeekStart); err != nil {
		return nil, Fingerprint{}, errors.Wrap(err, "rewinding input")
	}

	var in io.Reader = raw
	if u := compress.NewReaderPath(in, p.FastqPath); u != nil {
		in = u
	}
	var (
		reads []Read
		rec   fastq.Read
	)
	scanner := fastq.NewScanner(in)
	for scanner.Scan(&rec) {
		r, err := NewRead(rec.ID, rec.Seq, rec.Qual, len(reads))
		if err != nil {
			return nil, Fingerprint{}, err
		}
		reads = append(reads, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, Fingerprint{}, err
	}
	log.Debug.Printf("otu: ingested %d reads from %s", len(reads), p.FastqPath)
	return reads, seed, nil
}

// writeOutputs writes the table, representative FASTA, report, and
// discard log. Each file is written to a temp path and renamed so a
// failed run never leaves a partial output behind.
func (p *Pipeline) writeOutputs(result *RunResult, sampleReads map[string]int, discards []Discard) error {
	if err := writeFileAtomic(result.TablePath, func(w io.Writer) error {
		return result.Table.WriteTo(w)
	}); err != nil {
		return err
	}
	if err := writeFileAtomic(result.RepsPath, func(w io.Writer) error {
		return result.Table.WriteRepresentatives(w, p.Opts.SizeAnnotations)
	}); err != nil {
		return err
	}
	if err := writeFileAtomic(p.OutPrefix+".discards.txt", func(w io.Writer) error {
		return WriteDiscards(w, discards)
	}); err != nil {
		return err
	}
	return writeFileAtomic(p.OutPrefix+".report.txt", func(w io.Writer) error {
		return WriteReport(w, result.RunID, result.Stats, sampleReads, result.Table)
	})
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := ioutil.TempFile(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	defer os.Remove(tmp.Name()) // nolint: errcheck
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "writing %s", path)
}
