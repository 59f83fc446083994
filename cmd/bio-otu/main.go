package main

/*
bio-otu builds a sample x OTU count table from raw multiplexed amplicon
reads: it demultiplexes by barcode, trims primers, quality-filters,
dereplicates, clusters through an external USEARCH-compatible engine,
and maps every read back to its cluster.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grailbio/amplicon/cluster"
	"github.com/grailbio/amplicon/otu"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
)

var (
	barcodeMismatch = flag.Int("barcode-mismatch", otu.DefaultOpts.BarcodeMismatch, "Maximum barcode edit distance; 0 requires an exact match")
	primer          = flag.String("primer", otu.DefaultOpts.Primer, "Forward primer sequence expected after the barcode; empty disables primer trimming")
	primerMismatch  = flag.Int("primer-mismatch", otu.DefaultOpts.PrimerMismatch, "Maximum primer mismatches within the primer window")
	requirePrimer   = flag.Bool("require-primer", false, "Discard reads whose primer is not found; default passes them through untrimmed")
	truncLen        = flag.Int("trunc-len", otu.DefaultOpts.TruncLen, "Truncate accepted reads to this post-trim length, discarding shorter reads; 0 disables")
	maxEE           = flag.Float64("max-ee", otu.DefaultOpts.MaxEE, "Maximum expected errors over the trimmed read")
	minLength       = flag.Int("min-length", otu.DefaultOpts.MinLength, "Minimum trimmed read length")
	identity        = flag.Float64("identity", otu.DefaultOpts.Identity, "Cluster similarity threshold as a fraction in (0, 1]")
	chimeraFilter   = flag.Bool("chimera-filter", otu.DefaultOpts.ChimeraFilter, "Exclude chimera-flagged sequences from all OTUs")
	minUniqueSize   = flag.Int("min-unique-size", otu.DefaultOpts.MinUniqueSize, "Drop unique sequences with fewer member reads before clustering")
	sizeAnnotations = flag.Bool("size-annotations", otu.DefaultOpts.SizeAnnotations, "Carry ;size=N; abundance annotations on output representatives")
	keepFiltered    = flag.Bool("keep-filtered", false, "Write the accepted, trimmed reads as FASTQ next to the other outputs")
	parallelism     = flag.Int("parallelism", 0, "Maximum number of simultaneous per-stage workers; 0 = runtime.NumCPU()")
	engineTimeout   = flag.Duration("engine-timeout", otu.DefaultOpts.EngineTimeout, "Timeout for the external clustering engine invocation")
	enginePath      = flag.String("engine", "usearch", "External clustering engine executable")
	engineArgs      = flag.String("engine-args", "", "Extra whitespace-separated arguments appended to the engine command line")
	keepWorkDir     = flag.Bool("keep-work-dir", false, "Retain the engine's temporary work directory for debugging")
	outPrefix       = flag.String("out", "bio-otu", "Output path prefix")
)

func bioOTUUsage() {
	fmt.Printf("Usage: %s [OPTIONS] fastqpath barcodepath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioOTUUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 2 {
		log.Fatalf("Expected 2 positional arguments (fastqpath and barcodepath), got '%s'", strings.Join(flag.Args(), " "))
	}
	ctx := vcontext.Background()

	opts := otu.Opts{
		BarcodeMismatch: *barcodeMismatch,
		Primer:          strings.ToUpper(*primer),
		PrimerMismatch:  *primerMismatch,
		PrimerPolicy:    otu.PrimerKeep,
		TruncLen:        *truncLen,
		MaxEE:           *maxEE,
		MinLength:       *minLength,
		Identity:        *identity,
		ChimeraFilter:   *chimeraFilter,
		MinUniqueSize:   *minUniqueSize,
		SizeAnnotations: *sizeAnnotations,
		KeepFiltered:    *keepFiltered,
		Parallelism:     *parallelism,
		EngineTimeout:   *engineTimeout,
	}
	if *requirePrimer {
		opts.PrimerPolicy = otu.PrimerDiscard
	}
	engine := &cluster.UClust{
		Path:        *enginePath,
		ExtraArgs:   strings.Fields(*engineArgs),
		KeepWorkDir: *keepWorkDir,
	}
	p := &otu.Pipeline{
		Opts:        opts,
		Engine:      engine,
		FastqPath:   flag.Arg(0),
		BarcodePath: flag.Arg(1),
		OutPrefix:   *outPrefix,
	}
	start := time.Now()
	result, err := p.Run(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("run %s finished in %s: %d OTUs in %s", result.RunID, time.Since(start), len(result.Table.Rows), result.TablePath)
}
