package otu

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/amplicon/cluster"
	"github.com/grailbio/amplicon/encoding/fastq"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0666))
}

// fastqOf renders reads as FASTQ with uniform Q40 qualities.
func fastqOf(reads ...[2]string) string {
	var sb strings.Builder
	for _, r := range reads {
		sb.WriteString("@" + r[0] + "\n")
		sb.WriteString(r[1] + "\n")
		sb.WriteString("+\n")
		sb.WriteString(strings.Repeat("I", len(r[1])) + "\n")
	}
	return sb.String()
}

func testPipeline(t *testing.T, dir string, engine cluster.Engine, fastq string) *Pipeline {
	writeFile(t, filepath.Join(dir, "reads.fastq"), fastq)
	writeFile(t, filepath.Join(dir, "barcodes.tsv"), "sample1\tAAAA\nsample2\tTTTT\n")
	opts := DefaultOpts
	opts.TruncLen = 0
	opts.MinLength = 0
	opts.MinUniqueSize = 1
	opts.Parallelism = 2
	return &Pipeline{
		Opts:        opts,
		Engine:      engine,
		FastqPath:   filepath.Join(dir, "reads.fastq"),
		BarcodePath: filepath.Join(dir, "barcodes.tsv"),
		OutPrefix:   filepath.Join(dir, "run"),
	}
}

// Two samples, three identical reads each, an engine that puts
// everything in one cluster: the table must have a single OTU row with
// count 3 for each sample.
func TestPipelineRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const insert = "ACGTACGTACGTACGT"
	fq := fastqOf(
		[2]string{"a1", "AAAA" + insert},
		[2]string{"a2", "AAAA" + insert},
		[2]string{"a3", "AAAA" + insert},
		[2]string{"b1", "TTTT" + insert},
		[2]string{"b2", "TTTT" + insert},
		[2]string{"b3", "TTTT" + insert},
	)
	engine := &cluster.Fake{Assign: func(string) string { return "OTU_1" }}
	p := testPipeline(t, dir, engine, fq)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	expect.EQ(t, p.State(), StateDone)

	require.Len(t, result.Table.Rows, 1)
	row := result.Table.Rows[0]
	expect.EQ(t, row.OTUID, "OTU_1")
	expect.EQ(t, row.RepSeq, insert)
	expect.EQ(t, row.Counts, map[string]int{"sample1": 3, "sample2": 3})
	expect.EQ(t, result.Stats.Assigned, 6)
	expect.EQ(t, result.Stats.Unassigned, 0)

	// The engine saw one abundance-annotated unique.
	require.Len(t, engine.Calls, 1)
	require.Len(t, engine.Calls[0], 1)
	expect.EQ(t, engine.Calls[0][0].Label, "Uniq1;size=6;")

	tableBytes, err := ioutil.ReadFile(result.TablePath)
	require.NoError(t, err)
	expect.EQ(t, string(tableBytes),
		"#OTU ID\trepresentative\tsample1\tsample2\nOTU_1\t"+insert+"\t3\t3\n")
	_, err = os.Stat(result.RepsPath)
	expect.EQ(t, err, nil)
	_, err = os.Stat(p.OutPrefix + ".report.txt")
	expect.EQ(t, err, nil)
}

// Every ingested read ends up in exactly one disposition bucket.
func TestPipelineDispositionPartition(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const insert = "ACGTACGTACGTACGT"
	fq := fastqOf(
		[2]string{"a1", "AAAA" + insert},
		[2]string{"a2", "AAAA" + insert},
		[2]string{"x1", "GGGG" + insert}, // no barcode
		[2]string{"b1", "TTTT" + insert},
	)
	// One low-quality read in sample2.
	fq += "@b2\nTTTT" + insert + "\n+\n" + strings.Repeat("#", 4+len(insert)) + "\n"

	engine := &cluster.Fake{Assign: func(string) string { return "OTU_1" }}
	p := testPipeline(t, dir, engine, fq)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	s := result.Stats
	expect.EQ(t, s.Reads, 5)
	discarded := s.NoBarcode + s.AmbiguousBarcode + s.NoPrimer + s.TooShort + s.LowQuality
	expect.EQ(t, discarded, 2)
	expect.EQ(t, s.Reads, s.Assigned+s.Unassigned+discarded)
	expect.EQ(t, s.Assigned, 3)
}

// With KeepFiltered set the accepted reads are persisted as FASTQ over
// their trimmed windows, barcode removed.
func TestPipelineKeepFiltered(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const insert = "ACGTACGTACGTACGT"
	fq := fastqOf(
		[2]string{"a1", "AAAA" + insert},
		[2]string{"x1", "GGGG" + insert}, // no barcode, not persisted
		[2]string{"b1", "TTTT" + insert},
	)
	p := testPipeline(t, dir, &cluster.Fake{Assign: func(string) string { return "OTU_1" }}, fq)
	p.Opts.KeepFiltered = true
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	f, err := os.Open(p.OutPrefix + ".filtered.fastq")
	require.NoError(t, err)
	defer f.Close()
	var (
		reads []fastq.Read
		rec   fastq.Read
	)
	sc := fastq.NewScanner(f)
	for sc.Scan(&rec) {
		reads = append(reads, rec)
	}
	require.NoError(t, sc.Err())
	require.Len(t, reads, 2)
	expect.EQ(t, reads[0], fastq.Read{ID: "a1", Seq: insert, Qual: strings.Repeat("I", len(insert))})
	expect.EQ(t, reads[1].ID, "b1")
	expect.EQ(t, reads[1].Seq, insert)
}

// The table bytes are identical regardless of the worker count.
func TestPipelineParallelismDeterminism(t *testing.T) {
	const insert1 = "ACGTACGTACGTACGT"
	const insert2 = "TGCATGCATGCATGCA"
	fq := fastqOf(
		[2]string{"a1", "AAAA" + insert1},
		[2]string{"a2", "AAAA" + insert2},
		[2]string{"a3", "AAAA" + insert1},
		[2]string{"b1", "TTTT" + insert2},
		[2]string{"b2", "TTTT" + insert1},
	)
	assign := func(name string) string {
		if name == "Uniq1" {
			return "OTU_1"
		}
		return "OTU_2"
	}
	var want string
	for _, parallelism := range []int{1, 4, 16} {
		dir, cleanup := testutil.TempDir(t, "", "")
		p := testPipeline(t, dir, &cluster.Fake{Assign: assign}, fq)
		p.Opts.Parallelism = parallelism
		result, err := p.Run(context.Background())
		require.NoError(t, err)
		tableBytes, err := ioutil.ReadFile(result.TablePath)
		require.NoError(t, err)
		if want == "" {
			want = string(tableBytes)
		}
		expect.EQ(t, string(tableBytes), want, "parallelism: %d", parallelism)
		cleanup()
	}
}

// An engine failure leaves the run in Failed with no table file.
func TestPipelineEngineFailure(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	fq := fastqOf([2]string{"a1", "AAAA" + "ACGTACGT"})
	engine := &cluster.Fake{Err: errors.New("engine exploded")}
	p := testPipeline(t, dir, engine, fq)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	expect.EQ(t, p.State(), StateFailed)
	expect.True(t, strings.Contains(err.Error(), "Cluster"), "err: %v", err)

	_, statErr := os.Stat(p.OutPrefix + ".otu_table.txt")
	expect.True(t, os.IsNotExist(statErr))
}

// Unreadable input fails the run from Ingest.
func TestPipelineBadInput(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	p := testPipeline(t, dir, &cluster.Fake{}, "@r1\nACGT\n+\nII\n") // qual too short
	_, err := p.Run(context.Background())
	require.Error(t, err)
	expect.EQ(t, p.State(), StateFailed)
}

// Changing only the cluster identity must recompute the cluster stage
// while reusing the demultiplex, trim, and dereplication artifacts.
func TestPipelineCacheReuse(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const insert = "ACGTACGTACGTACGT"
	fq := fastqOf(
		[2]string{"a1", "AAAA" + insert},
		[2]string{"b1", "TTTT" + insert},
	)
	engine := &cluster.Fake{Assign: func(string) string { return "OTU_1" }}
	p := testPipeline(t, dir, engine, fq)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, engine.Calls, 1)
	firstArtifacts := cacheEntries(t, p.OutPrefix+".cache")
	expect.EQ(t, len(firstArtifacts), 4)

	// Same config: everything is cached, the engine is not re-invoked.
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	expect.EQ(t, len(engine.Calls), 1)

	// New identity: only the cluster stage fingerprint changes.
	p.Opts.Identity = 0.95
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	expect.EQ(t, len(engine.Calls), 2)
	secondArtifacts := cacheEntries(t, p.OutPrefix+".cache")
	expect.EQ(t, len(secondArtifacts), 5)
	for _, name := range firstArtifacts {
		expect.True(t, contains(secondArtifacts, name), "lost artifact %s", name)
	}
}

func cacheEntries(t *testing.T, dir string) []string {
	infos, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
