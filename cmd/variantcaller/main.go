// Command variantcaller is the CLI entrypoint: it parses options with
// the standard flag package, wires the candidate generator, reassembler,
// haplotype generator, likelihood model, selected caller, phaser, and
// realigner into one per-region pipeline, and writes the resulting call
// set as VCF.
//
// run() returns an error that main() renders and maps to an exit code,
// so a failed invocation produces a where/why/help triple instead of a
// raw panic stack trace.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/exascience/pargo/parallel"
	"github.com/google/uuid"

	"github.com/exascience/variantcaller/advisory"
	"github.com/exascience/variantcaller/caller"
	"github.com/exascience/variantcaller/candidates"
	"github.com/exascience/variantcaller/errs"
	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/phase"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/readpipeline"
	"github.com/exascience/variantcaller/realign"
	"github.com/exascience/variantcaller/reference"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
	"github.com/exascience/variantcaller/vcf"
)

// ReadSource supplies the per-sample reads overlapping a window. The
// engine itself is agnostic to the alignment file format; a real
// deployment plugs in a BAM/CRAM reader here.
type ReadSource func(w region.Region) (map[string][]*read.AlignedRead, error)

// defaultMinVariantPosterior is the Phred-scale quality below which a
// non-reference call is dropped rather than emitted, absent
// --min-variant-posterior.
const defaultMinVariantPosterior = 20.0

// defaultMinRefcallPosterior keeps reference confidence blocks cheap to
// emit without flooding the output with no-confidence sites.
const defaultMinRefcallPosterior = 0.5 * 10 // Phred scale

// tempDirPrefix is the working-directory basename
// createWorkingDirectory numbers on collision.
const tempDirPrefix = "variantcaller"

type options struct {
	referencePath     string
	outputPath        string
	callerMode        string
	normalSample      string
	maternal          string
	paternal          string
	pedigreeFile      string
	minMapQ           int
	minBaseQ          int
	minCandidateReads int
	minPhaseScore     float64
	defaultPloidy     int
	maxCacheBytes     int64
	contigOrder       string
	assembleAll       bool

	maxVariantSize     int
	kmerSizes          string
	parsedKmers        []int
	minKmerPrune       int
	maxBubbles         int
	minBubbleScore     float64
	maxAssembleRegion  int
	maxAssembleOverlap int

	maxClones         int
	minCloneFrequency float64

	minVariantPosterior float64
	refcall             bool
	minRefcallPosterior float64
	sitesOnly           bool
	maxGenotypes        int
	maxJointGenotypes   int

	threads           int
	maxOpenReadFiles  int
	targetWorkingMem  int64
	workingDirectory  string

	externalVariants string

	denovoSNVRate      float64
	denovoIndelRate    float64
	minDenovoPosterior float64

	somaticSNVRate              float64
	somaticIndelRate             float64
	minExpectedSomaticFrequency float64
	credibleMass                float64
	minCredibleSomaticFrequency float64
	tumourGermlineConcentration float64
	minSomaticPosterior         float64
	maxSomaticHaplotypes        int
	normalContaminationRisk     string
}

func parseFlags(args []string) (*options, []string, error) {
	fs := flag.NewFlagSet("variantcaller", flag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.referencePath, "reference", "", "reference FASTA path (requires a companion .fai)")
	fs.StringVar(&o.outputPath, "output", "-", "output VCF path, or - for stdout")
	fs.StringVar(&o.callerMode, "caller", "", "individual, population, trio, cancer, polyclone, or cell (default: inferred)")
	fs.StringVar(&o.normalSample, "normal-sample", "", "normal sample name (selects cancer mode)")
	fs.StringVar(&o.maternal, "maternal-sample", "", "maternal sample name (selects trio mode)")
	fs.StringVar(&o.paternal, "paternal-sample", "", "paternal sample name (selects trio mode)")
	fs.StringVar(&o.pedigreeFile, "pedigree", "", "PLINK-style .fam pedigree file (selects trio mode)")
	fs.IntVar(&o.minMapQ, "min-mapping-quality", 20, "minimum read mapping quality")
	fs.IntVar(&o.minBaseQ, "min-base-quality", 20, "minimum base quality counted as good")
	fs.IntVar(&o.minCandidateReads, "min-supporting-reads", 2, "minimum supporting reads for a candidate variant")
	fs.Float64Var(&o.minPhaseScore, "min-phase-score", 0.9, "minimum agreement fraction to join two sites into one phase set")
	fs.IntVar(&o.defaultPloidy, "ploidy", 2, "default ploidy for samples/contigs with no override")
	fs.Int64Var(&o.maxCacheBytes, "max-reference-cache-bytes", 64<<20, "bound on the decoded reference-window cache")
	fs.StringVar(&o.contigOrder, "contig-output-order", "", "comma-separated contig order for VCF output (default: reference order)")
	fs.BoolVar(&o.assembleAll, "assemble-all", false, "always run the local reassembler, ignoring the assembly-trigger frequency")
	fs.IntVar(&o.maxVariantSize, "max-variant-size", 200, "discard candidate variants larger than this")
	fs.StringVar(&o.kmerSizes, "kmer-sizes", "25,35,55", "comma-separated k-mer size cascade for the local reassembler")
	fs.IntVar(&o.minKmerPrune, "min-kmer-prune", 2, "prune assembly k-mers observed fewer times than this")
	fs.IntVar(&o.maxBubbles, "max-bubbles", 30, "cap on scored assembly bubbles kept per bin")
	fs.Float64Var(&o.minBubbleScore, "min-bubble-score", 0.1, "discard assembly bubbles scoring below this")
	fs.IntVar(&o.maxAssembleRegion, "max-region-to-assemble", 400, "assembly bin size in bases")
	fs.IntVar(&o.maxAssembleOverlap, "max-assemble-region-overlap", 50, "overlap between adjacent assembly bins")

	fs.Float64Var(&o.minVariantPosterior, "min-variant-posterior", defaultMinVariantPosterior, "Phred-scale quality floor below which a non-reference call is dropped")
	fs.BoolVar(&o.refcall, "refcall", false, "emit homozygous-reference confidence blocks alongside variant calls")
	fs.Float64Var(&o.minRefcallPosterior, "min-refcall-posterior", defaultMinRefcallPosterior, "Phred-scale quality floor for a --refcall block")
	fs.BoolVar(&o.sitesOnly, "sites-only", false, "omit per-sample genotype columns from the written VCF")
	fs.IntVar(&o.maxGenotypes, "max-genotypes", 0, "cap per-sample genotype enumeration (0: unbounded)")
	fs.IntVar(&o.maxJointGenotypes, "max-joint-genotypes", 0, "cap genotype enumeration in population/trio modes (0: unbounded)")

	fs.IntVar(&o.threads, "threads", 0, "number of worker goroutines (0: runtime default)")
	fs.IntVar(&o.maxOpenReadFiles, "max-open-read-files", 0, "bound on concurrently in-flight per-window read loads (0: unbounded)")
	fs.Int64Var(&o.targetWorkingMem, "target-working-memory", 0, "advisory working-memory budget in bytes (0: unbounded)")
	fs.StringVar(&o.workingDirectory, "working-directory", "", "parent directory for the run's numbered temp directory (default: os.TempDir())")

	fs.StringVar(&o.externalVariants, "external-variants", "", "VCF file of external candidate variants to fold into candidate generation")

	fs.Float64Var(&o.denovoSNVRate, "denovo-snv-mutation-rate", 0, "trio mode: per-site de-novo SNV prior (0: package default)")
	fs.Float64Var(&o.denovoIndelRate, "denovo-indel-mutation-rate", 0, "trio mode: per-site de-novo indel prior (0: package default)")
	fs.Float64Var(&o.minDenovoPosterior, "min-denovo-posterior", 0, "trio mode: minimum de-novo posterior mass for a DENOVO annotation (0: package default)")

	fs.Float64Var(&o.somaticSNVRate, "somatic-snv-mutation-rate", 0, "cancer mode: per-site somatic SNV prior (0: package default)")
	fs.Float64Var(&o.somaticIndelRate, "somatic-indel-mutation-rate", 0, "cancer mode: per-site somatic indel prior (0: package default)")
	fs.Float64Var(&o.minExpectedSomaticFrequency, "min-expected-somatic-frequency", 0, "cancer mode: floor on considered somatic allele fractions (0: package default)")
	fs.Float64Var(&o.credibleMass, "credible-mass", 0, "cancer mode: probability mass of the somatic credible interval (0: package default)")
	fs.Float64Var(&o.minCredibleSomaticFrequency, "min-credible-somatic-frequency", 0, "cancer mode: minimum credible-interval lower bound for a SOMATIC annotation (0: package default)")
	fs.Float64Var(&o.tumourGermlineConcentration, "tumour-germline-concentration", 0, "cancer mode: somatic-prior tempering concentration (0: package default)")
	fs.Float64Var(&o.minSomaticPosterior, "min-somatic-posterior", 0, "cancer mode: minimum combined somatic posterior for a SOMATIC annotation (0: package default)")
	fs.IntVar(&o.maxSomaticHaplotypes, "max-somatic-haplotypes", 0, "cancer mode: cap on screened somatic candidate haplotypes (0: package default)")
	fs.StringVar(&o.normalContaminationRisk, "normal-contamination-risk", "low", "cancer mode: low or high tolerance for alt support in the normal sample")

	fs.IntVar(&o.maxClones, "max-clones", 0, "polyclone mode: cap on modeled clones (0: package default)")
	fs.Float64Var(&o.minCloneFrequency, "min-clone-frequency", 0, "polyclone mode: smallest clone fraction worth modeling (0: package default)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return o, fs.Args(), nil
}

func main() {
	start := time.Now()
	opts, regionArgs, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2) // flag already printed its own usage message
	}

	if err := run(opts, regionArgs); err != nil {
		fmt.Fprintln(os.Stderr, errs.Render(err))
		os.Exit(errs.ExitCode(err))
	}
	log.Printf("variantcaller: completed in %s", time.Since(start))
}

func run(opts *options, regionArgs []string) error {
	if opts.referencePath == "" {
		return errs.User("cli", "missing required -reference flag")
	}
	genome, err := reference.Open(opts.referencePath, opts.maxCacheBytes)
	if err != nil {
		return errs.System("reference", "failed to open reference", err)
	}
	defer genome.Close()

	advisories := advisory.NewChannel()
	defer func() {
		summary, counts := advisories.Summary()
		for _, a := range summary {
			log.Printf("variantcaller: warning (%s, %d occurrence(s)): %s", a.Kind, counts[a.Kind], a.Message)
		}
	}()
	if opts.maxCacheBytes < 1<<20 {
		advisories.Warn(advisory.KindSmallReferenceCache, "",
			fmt.Sprintf("reference cache of %d bytes is below 1 MB and will thrash on whole-contig runs", opts.maxCacheBytes))
	}

	windows, err := resolveWindows(regionArgs, genome)
	if err != nil {
		return err
	}

	ploidies := ploidy.New(opts.defaultPloidy)
	if err := ploidies.Validate(); err != nil {
		return errs.User("ploidy", err.Error())
	}

	opts.parsedKmers, err = parseKmerSizes(opts.kmerSizes)
	if err != nil {
		return errs.User("cli", err.Error())
	}

	var externalVariants []variant.Variant
	if opts.externalVariants != "" {
		f, err := os.Open(opts.externalVariants)
		if err != nil {
			return errs.System("cli", "failed to open external-variants file", err)
		}
		externalVariants, err = vcf.ReadVariants(f)
		f.Close()
		if err != nil {
			return errs.User("cli", fmt.Sprintf("invalid external-variants file: %v", err))
		}
	}

	if opts.threads > 0 {
		runtime.GOMAXPROCS(opts.threads)
	}

	caller.MaxGenotypesPerSample = opts.maxGenotypes
	caller.MaxJointGenotypes = opts.maxJointGenotypes

	workBase := opts.workingDirectory
	if workBase == "" {
		workBase = os.TempDir()
	}
	workDir, err := createWorkingDirectory(workBase, tempDirPrefix)
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)
	log.Printf("variantcaller: working directory %s", workDir)

	concurrentReadBound := opts.maxOpenReadFiles
	if concurrentReadBound == 0 && opts.targetWorkingMem > 0 {
		concurrentReadBound = estimatedReadConcurrency(opts.targetWorkingMem)
	}
	var readSem chan struct{}
	if concurrentReadBound > 0 {
		readSem = make(chan struct{}, concurrentReadBound)
	}
	source := boundedReadSource(emptyReadSource, readSem)

	callSet := &vcf.CallSet{RunID: uuid.New().String()}
	log.Printf("variantcaller: run %s", callSet.RunID)

	groups := groupByContig(windows)
	var mu sync.Mutex
	var firstErr error
	parallel.Range(0, len(groups), 0, func(low, high int) {
		for gi := low; gi < high; gi++ {
			g := groups[gi]
			localSet := &vcf.CallSet{}
			var localHistory []float64
			for _, w := range g.windows {
				mu.Lock()
				aborted := firstErr != nil
				mu.Unlock()
				if aborted {
					return
				}
				if err := callWindow(opts, genome, ploidies, source, externalVariants, advisories, w, localSet, &localHistory); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
			mu.Lock()
			callSet.Calls = append(callSet.Calls, localSet.Calls...)
			callSet.Phases = append(callSet.Phases, localSet.Phases...)
			for _, s := range localSet.Samples {
				callSet.Samples = appendUnique(callSet.Samples, s)
			}
			mu.Unlock()
		}
	})
	if firstErr != nil {
		return firstErr
	}
	callSet.Sort()
	if opts.sitesOnly {
		callSet.StripGenotypes()
	}

	var contigOrder []string
	if opts.contigOrder != "" {
		contigOrder = splitCommaList(opts.contigOrder)
	} else {
		contigOrder = genome.Contigs()
	}

	stagedPath := filepath.Join(workDir, "output.vcf")
	staged, err := os.Create(stagedPath)
	if err != nil {
		return errs.System("cli", "failed to create staged output file", err)
	}
	if err := vcf.WriteVCF(staged, callSet, contigOrder); err != nil {
		staged.Close()
		return errs.System("cli", "failed to write output", err)
	}
	if err := staged.Close(); err != nil {
		return errs.System("cli", "failed to close staged output file", err)
	}

	return publishOutput(stagedPath, opts.outputPath)
}

// publishOutput copies the staged VCF at stagedPath to its final
// destination: stdout for "-", or a created file otherwise. Staging
// through the working directory first means a failure partway through
// rendering never leaves a truncated file at the real destination.
func publishOutput(stagedPath, outputPath string) error {
	staged, err := os.Open(stagedPath)
	if err != nil {
		return errs.System("cli", "failed to reopen staged output file", err)
	}
	defer staged.Close()

	out := os.Stdout
	if outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return errs.System("cli", "failed to create output file", err)
		}
		defer f.Close()
		out = f
	}
	if _, err := io.Copy(out, staged); err != nil {
		return errs.System("cli", "failed to publish output", err)
	}
	return nil
}

// createWorkingDirectory creates a fresh directory under base named
// prefix, or prefix-2, prefix-3, ... up to a 10,000-name limit on
// collision.
func createWorkingDirectory(base, prefix string) (string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", errs.System("cli", "failed to create working-directory parent "+base, err)
	}
	const tempDirNameCountLimit = 10000
	for n := 1; n <= tempDirNameCountLimit; n++ {
		name := prefix
		if n > 1 {
			name = fmt.Sprintf("%s-%d", prefix, n)
		}
		candidate := filepath.Join(base, name)
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", errs.System("cli", "failed to create working directory "+candidate, err)
		}
	}
	return "", errs.User("cli", fmt.Sprintf("too many existing %s-* directories under %s (limit %d)", prefix, base, tempDirNameCountLimit))
}

// bytesPerInFlightWindow approximates one window's worth of loaded
// reads plus working state, for estimatedReadConcurrency to convert
// --target-working-memory into a concurrency bound when
// --max-open-read-files is left unset. There is no real read cache to
// size precisely, so the constant is a coarse per-window estimate
// rather than a measured figure.
const bytesPerInFlightWindow = 64 << 20

func estimatedReadConcurrency(targetWorkingMem int64) int {
	n := int(targetWorkingMem / bytesPerInFlightWindow)
	if n < 1 {
		return 1
	}
	return n
}

// contigWindows groups a contig's windows together so the worker pool
// can process each contig's windows sequentially, phasing state is
// inherently ordered within a contig, while different contigs run
// concurrently.
type contigWindows struct {
	contig  string
	windows []region.Region
}

func groupByContig(windows []region.Region) []contigWindows {
	var order []string
	byContig := map[string][]region.Region{}
	for _, w := range windows {
		if _, ok := byContig[w.Contig]; !ok {
			order = append(order, w.Contig)
		}
		byContig[w.Contig] = append(byContig[w.Contig], w)
	}
	out := make([]contigWindows, len(order))
	for i, c := range order {
		out[i] = contigWindows{contig: c, windows: byContig[c]}
	}
	return out
}

// boundedReadSource wraps source with an optional semaphore bounding
// how many windows load reads concurrently, the nearest real resource
// this module has to throttle via --max-open-read-files, since
// ReadSource has no actual file descriptors to count yet (see
// DESIGN.md).
func boundedReadSource(source ReadSource, sem chan struct{}) ReadSource {
	if sem == nil {
		return source
	}
	return func(w region.Region) (map[string][]*read.AlignedRead, error) {
		sem <- struct{}{}
		defer func() { <-sem }()
		return source(w)
	}
}

// callWindow runs the full per-region pipeline over w: filter reads,
// generate candidate variants, build haplotypes, run the selected
// caller, phase the resulting calls, and realign reads against the
// winning haplotypes, appending the calls and phase sets to callSet.
// candidateCountHistory accumulates each window's candidate count so
// later windows can detect unusually dense regions relative to their
// neighbors.
func callWindow(opts *options, genome reference.Genome, ploidies *ploidy.Map, source ReadSource, externalVariants []variant.Variant, advisories *advisory.Channel, w region.Region, callSet *vcf.CallSet, candidateCountHistory *[]float64) error {
	readsPerSample, err := source(w)
	if err != nil {
		return errs.System("reads", "failed to load reads for window "+w.String(), err)
	}
	if len(readsPerSample) == 0 {
		return nil
	}

	pipelineCfg := readpipeline.Config{
		MinMappingQuality: byte(opts.minMapQ),
		GoodBaseQuality:   byte(opts.minBaseQ),
	}
	preds := readpipeline.BuildPredicates(pipelineCfg)
	var allReads []*read.AlignedRead
	for sample, reads := range readsPerSample {
		filtered := readpipeline.Run(pipelineCfg, nil, preds, reads, int64(w.Begin))
		readsPerSample[sample] = filtered
		allReads = append(allReads, filtered...)
	}
	if len(allReads) == 0 {
		return nil
	}

	mode, err := caller.Select(caller.PedigreeHint{
		ExplicitMode:   opts.callerMode,
		NormalSample:   opts.normalSample,
		MaternalSample: opts.maternal,
		PaternalSample: opts.paternal,
		PedigreeFile:   opts.pedigreeFile,
		Samples:        sampleNames(readsPerSample),
		Trio: caller.Trio{
			SNVDenovoRate:      opts.denovoSNVRate,
			IndelDenovoRate:    opts.denovoIndelRate,
			MinDenovoPosterior: opts.minDenovoPosterior,
		},
		Cancer: caller.Cancer{
			SomaticSNVRate:              opts.somaticSNVRate,
			SomaticIndelRate:            opts.somaticIndelRate,
			MinExpectedSomaticFrequency: opts.minExpectedSomaticFrequency,
			CredibleMass:                opts.credibleMass,
			MinCredibleSomaticFrequency: opts.minCredibleSomaticFrequency,
			TumourGermlineConcentration: opts.tumourGermlineConcentration,
			MinSomaticPosterior:         opts.minSomaticPosterior,
			MaxSomaticHaplotypes:        opts.maxSomaticHaplotypes,
			NormalContaminationRisk:     opts.normalContaminationRisk,
		},
		Polyclone: caller.Polyclone{
			MaxClones:         opts.maxClones,
			MinCloneFrequency: opts.minCloneFrequency,
		},
	})
	if err != nil {
		return err
	}

	refSeq, err := genome.Sequence(w.Contig, w.Begin, w.End)
	if err != nil {
		return errs.System("reference", "failed to read window sequence", err)
	}

	candCfg := candidates.DefaultConfig()
	candCfg.MinSupportingReads = opts.minCandidateReads
	candCfg.MinBaseQuality = byte(opts.minBaseQ)
	candCfg.MaxVariantSize = opts.maxVariantSize
	assemblyCfg := candidates.DefaultAssemblyConfig()
	assemblyCfg.TriggerFrequency = assemblerTriggerFrequency(mode, ploidies.Default())
	assemblyCfg.Always = opts.assembleAll
	assemblyCfg.Graph.KmerSizes = opts.parsedKmers
	assemblyCfg.Graph.MinKmerObservations = int32(opts.minKmerPrune)
	assemblyCfg.Graph.MaxBubbles = opts.maxBubbles
	assemblyCfg.Graph.MinBubbleScore = opts.minBubbleScore
	assemblyCfg.Graph.BinSize = opts.maxAssembleRegion
	assemblyCfg.Graph.BinOverlap = opts.maxAssembleOverlap
	windowExternal := externalInWindow(externalVariants, w)
	candidateVariants := candidates.GenerateActive(candCfg, assemblyCfg, w, refSeq, allReads, windowExternal)
	background := append([]float64(nil), (*candidateCountHistory)...)
	*candidateCountHistory = append(*candidateCountHistory, float64(len(candidateVariants)))
	if len(candidateVariants) == 0 {
		return nil
	}

	gen := haplotype.NewGenerator(haplotype.DefaultConfig())
	hapWindow := gen.Window(w)
	hapRefSeq, err := genome.Sequence(hapWindow.Contig, hapWindow.Begin, hapWindow.End)
	if err != nil {
		return errs.System("reference", "failed to read haplotype window sequence", err)
	}

	haplotypes := gen.Build(hapWindow, hapRefSeq, candidateVariants, background...)
	if len(haplotypes) == 0 {
		advisories.Warn(advisory.KindHaplotypeOverflow, w.String(),
			"candidate density exceeded the haplotype overflow limit; no calls emitted for this window")
		return nil
	}

	latents, err := mode.Infer(haplotypes, readsPerSample, likelihood.StandardErrorModel, ploidies)
	if err != nil {
		return err
	}
	calls, err := mode.CallVariants(latents, hapRefSeq, opts.minVariantPosterior)
	if err != nil {
		return err
	}
	if opts.refcall {
		calls = append(calls, caller.CallRefBlocks(latents, w, refSeq, opts.minRefcallPosterior)...)
	}
	if len(calls) == 0 {
		return nil
	}

	phaseCfg := phase.DefaultConfig()
	phaseCfg.MinPhaseScore = opts.minPhaseScore
	phases := phase.Decompose(phaseCfg, calls, allReads)

	rl := likelihood.Compute(likelihood.StandardErrorModel, haplotypes, allReads)
	for i := range rl.Reads {
		realign.Assign(realign.AssignmentConfig{Seed: 1}, i, haplotypes, rl, hapRefSeq, hapWindow.Begin)
	}

	callSet.Calls = append(callSet.Calls, calls...)
	callSet.Phases = append(callSet.Phases, phases...)
	for sample := range readsPerSample {
		callSet.Samples = appendUnique(callSet.Samples, sample)
	}
	return nil
}

// assemblerTriggerFrequency resolves the approximate allele fraction at
// which a window becomes assembly-worthy: the calling mode's own
// minimum somatic/clone fraction for the modes that chase subclonal
// alleles, otherwise an organism-ploidy default (higher ploidies dilute
// each allele's expected fraction).
func assemblerTriggerFrequency(mode caller.Caller, organismPloidy int) float64 {
	switch m := mode.(type) {
	case caller.Cancer:
		return m.MinSomaticAlleleFrequency()
	case caller.Polyclone:
		return m.MinCloneAlleleFrequency()
	}
	if organismPloidy < 4 {
		return 0.1
	}
	return 0.05
}

// externalInWindow filters externalVariants down to those overlapping
// w, the slice candidates.GenerateActive expects for its external-
// variant merge parameter.
func externalInWindow(externalVariants []variant.Variant, w region.Region) []variant.Variant {
	if len(externalVariants) == 0 {
		return nil
	}
	var out []variant.Variant
	for _, v := range externalVariants {
		if v.Ref.Region.Contig == w.Contig && v.Ref.Region.Begin < w.End && v.Ref.Region.End > w.Begin {
			out = append(out, v)
		}
	}
	return out
}

func sampleNames(readsPerSample map[string][]*read.AlignedRead) []string {
	var out []string
	for s := range readsPerSample {
		out = append(out, s)
	}
	return out
}

func appendUnique(samples []string, s string) []string {
	for _, existing := range samples {
		if existing == s {
			return samples
		}
	}
	return append(samples, s)
}

// emptyReadSource is the default ReadSource when no alignment file
// reader is wired in: every window yields zero reads, so the pipeline
// runs end to end and emits a header-only VCF rather than failing.
func emptyReadSource(region.Region) (map[string][]*read.AlignedRead, error) {
	return nil, nil
}

func resolveWindows(args []string, genome reference.Genome) ([]region.Region, error) {
	if len(args) == 0 {
		var out []region.Region
		for _, c := range genome.Contigs() {
			length, _ := genome.ContigLength(c)
			out = append(out, region.New(c, 0, length))
		}
		return out, nil
	}
	var out []region.Region
	for _, a := range args {
		r, err := region.Parse(a, true)
		if err != nil {
			return nil, errs.User("cli", fmt.Sprintf("invalid region %q: %v", a, err))
		}
		out = append(out, r)
	}
	return out, nil
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseKmerSizes parses the -kmer-sizes flag's comma-separated cascade.
func parseKmerSizes(s string) ([]int, error) {
	var out []int
	for _, part := range splitCommaList(s) {
		k, err := strconv.Atoi(part)
		if err != nil || k < 3 {
			return nil, fmt.Errorf("invalid k-mer size %q in -kmer-sizes", part)
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("-kmer-sizes names no k-mer sizes")
	}
	return out, nil
}
