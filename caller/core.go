// Package caller implements the six probabilistic calling modes,
// individual, population, trio, cancer, polyclone, cell, behind one
// shared Caller interface, plus the logic that selects which mode to run.
//
// The genotyping core, log10 genotype likelihoods over haplotype
// combinations, log-sum-exp posterior normalization, lives in core.go
// so the six modes share it; each mode contributes only its prior and
// its posterior-extraction semantics.
package caller

import (
	"math"
	"sort"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
	"github.com/exascience/variantcaller/vcf"
)

// Latents is the caller-mode-agnostic result of Infer: per-sample
// genotype posteriors over haplotype-index combinations, plus the
// haplotype set they were computed against. Each caller mode's
// CallVariants walks Latents to emit VariantCalls; the representation is
// shared so the phaser and realigner can consume any mode's output
// uniformly.
type Latents struct {
	Haplotypes []*haplotype.Haplotype
	// GenotypePosteriors[sample][i] is the log10 posterior of the i'th
	// enumerated genotype (see EnumerateGenotypes) for that sample.
	GenotypePosteriors map[string][]float64
	Genotypes          []Genotype
	// Annotations[sample], when present, is merged into the Info of every
	// VariantCall emitted from sample's winning genotype, the vehicle
	// Trio uses for DENOVO/DNP and Cancer for SOMATIC/somatic credible
	// bounds, so the shared callVariantsFromPosteriors tail end need not
	// know about any one mode's domain-specific posterior.
	Annotations map[string]map[string]interface{}
}

// Genotype is one combination of haplotype indices (with repetition,
// unordered) at a given ploidy.
type Genotype struct {
	HaplotypeIndices []int
}

// MaxGenotypesPerSample caps the combinatorics EnumerateGenotypes
// performs for a single sample's genotype enumeration (Individual,
// Cell, and Cancer's normal-sample pass); <= 0 means unbounded. Set
// once by the CLI's --max-genotypes flag before Infer runs.
var MaxGenotypesPerSample int

// MaxJointGenotypes caps the per-sample enumeration inside the
// multi-sample-aware modes (Population, Trio), which is where the
// combinatorics compound fastest since every sample's enumeration feeds
// a shared EM or transmission computation; <= 0 means unbounded. Set
// once by the CLI's --max-joint-genotypes flag before Infer runs.
var MaxJointGenotypes int

// EnumerateGenotypes returns every unordered combination-with-repetition
// of ploidy haplotype indices drawn from [0, numHaplotypes), the
// standard multi-allelic diploid-and-beyond genotype enumeration,
// capped at MaxGenotypesPerSample.
func EnumerateGenotypes(numHaplotypes, ploidy int) []Genotype {
	return enumerateGenotypesCapped(numHaplotypes, ploidy, MaxGenotypesPerSample)
}

// enumerateGenotypesCapped is EnumerateGenotypes generalized over which
// cap applies, so Population and Trio can enumerate against
// MaxJointGenotypes instead of MaxGenotypesPerSample.
func enumerateGenotypesCapped(numHaplotypes, ploidy, cap int) []Genotype {
	var out []Genotype
	var build func(start int, cur []int) bool
	build = func(start int, cur []int) bool {
		if len(cur) == ploidy {
			out = append(out, Genotype{HaplotypeIndices: append([]int(nil), cur...)})
			return cap > 0 && len(out) >= cap
		}
		for i := start; i < numHaplotypes; i++ {
			if build(i, append(cur, i)) {
				return true
			}
		}
		return false
	}
	build(0, nil)
	return out
}

// GenotypeLog10Likelihood computes the log10 likelihood of genotype g
// given per-haplotype per-read log10 likelihoods rl, assuming each read
// is drawn uniformly at random from the g.HaplotypeIndices alleles
// (the standard "average over which allele produced this read" model).
func GenotypeLog10Likelihood(g Genotype, haplotypes []*haplotype.Haplotype, rl likelihood.ReadLikelihoods) float64 {
	n := len(rl.Reads)
	if n == 0 {
		return 0
	}
	perAllele := make([][]float64, len(g.HaplotypeIndices))
	for i, hi := range g.HaplotypeIndices {
		perAllele[i] = rl.Of(haplotypes[hi])
	}
	log10Ploidy := math.Log10(float64(len(g.HaplotypeIndices)))
	var total float64
	for r := 0; r < n; r++ {
		vals := make([]float64, len(perAllele))
		for i := range perAllele {
			vals[i] = perAllele[i][r]
		}
		total += log10SumExp(vals) - log10Ploidy
	}
	return total
}

// log10SumExp computes log10(sum(10^v)) in a numerically stable way.
func log10SumExp(vals []float64) float64 {
	max := math.Inf(-1)
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, v := range vals {
		sum += math.Pow(10, v-max)
	}
	return max + math.Log10(sum)
}

// normalizeLog10Posteriors converts log10 likelihoods (already combined
// with any prior) into normalized log10 posteriors via log10SumExp.
func normalizeLog10Posteriors(log10Joint []float64) []float64 {
	norm := log10SumExp(log10Joint)
	out := make([]float64, len(log10Joint))
	for i, v := range log10Joint {
		out[i] = v - norm
	}
	return out
}

// FlatLog10Prior returns a uniform log10 prior over genotypes (used by
// modes with no informative prior, e.g. the first pass of the
// population caller before allele-frequency estimation).
func FlatLog10Prior(n int) []float64 {
	p := make([]float64, n)
	v := -math.Log10(float64(n))
	for i := range p {
		p[i] = v
	}
	return p
}

// bestGenotypeIndex returns the argmax of posteriors.
func bestGenotypeIndex(posteriors []float64) int {
	best, bestI := math.Inf(-1), 0
	for i, p := range posteriors {
		if p > best {
			best, bestI = p, i
		}
	}
	return bestI
}

// maxCallQuality bounds phredFromLog10Error's output: a genotype call's
// quality must come from posterior mass evaluated against real
// alternative hypotheses, never from the degenerate case where only one
// genotype was ever scored (log10ErrorOf's complement-of-nothing is
// -Inf, i.e. "zero error").
const maxCallQuality = 60.0

// phredFromLog10Error converts a log10 error probability into a Phred
// quality score, floored at 0 and capped at maxCallQuality.
func phredFromLog10Error(log10Err float64) float64 {
	q := -10 * log10Err
	switch {
	case q < 0:
		return 0
	case q > maxCallQuality || math.IsInf(q, 1):
		return maxCallQuality
	default:
		return q
	}
}

// isIndelHaplotype reports whether h carries any allele whose length
// differs from the reference span it replaces, used by Trio and Cancer
// to pick between their SNV and indel mutation-rate priors.
func isIndelHaplotype(h *haplotype.Haplotype) bool {
	for _, a := range h.Alleles {
		if uint32(len(a.Sequence)) != a.Region.End-a.Region.Begin {
			return true
		}
	}
	return false
}

// Caller is the common interface every calling mode implements: infer genotype latents from haplotypes and per-sample reads,
// then translate those latents into emitted variant calls.
type Caller interface {
	Name() string
	Infer(haplotypes []*haplotype.Haplotype, readsPerSample map[string][]*read.AlignedRead, model likelihood.ErrorModel, ploidies *ploidy.Map) (Latents, error)
	CallVariants(latents Latents, refSeq []byte, minQuality float64) ([]vcf.VariantCall, error)
}

// callVariantsFromPosteriors is the shared "turn per-sample genotype
// posteriors into VariantCalls" tail end of CallVariants: for each
// haplotype-encoded variant event, emit a record with one GenotypeCall
// per sample whose best-posterior genotype includes a non-reference
// haplotype at that site.
func callVariantsFromPosteriors(latents Latents, refSeq []byte, minQuality float64) []vcf.VariantCall {
	type siteKey struct {
		begin, end uint32
		alt        string
	}
	type siteAccum struct {
		call vcf.VariantCall
	}
	sites := map[siteKey]*siteAccum{}
	var order []siteKey

	samples := make([]string, 0, len(latents.GenotypePosteriors))
	for s := range latents.GenotypePosteriors {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	for _, sample := range samples {
		posteriors := latents.GenotypePosteriors[sample]
		best := bestGenotypeIndex(posteriors)
		g := latents.Genotypes[best]
		quality := phredFromLog10Error(log10ErrorOf(posteriors, best))
		if quality < minQuality {
			continue
		}
		events := map[siteKey][]int{} // alleleIndex within this variant's alt list, but we only support biallelic emission per haplotype event here
		for _, hi := range g.HaplotypeIndices {
			h := latents.Haplotypes[hi]
			for _, v := range h.Events(refSeq) {
				key := siteKey{begin: v.Ref.Region.Begin, end: v.Ref.Region.End, alt: string(v.Alt.Sequence)}
				events[key] = append(events[key], 1)
				acc, ok := sites[key]
				if !ok {
					acc = &siteAccum{call: vcf.VariantCall{Variant: v, Quality: quality, Filter: "PASS", Info: map[string]interface{}{}}}
					sites[key] = acc
					order = append(order, key)
				}
				for k, val := range latents.Annotations[sample] {
					acc.call.Info[k] = val
				}
			}
		}
		for key, alleleCount := range events {
			acc := sites[key]
			acc.call.Genotypes = append(acc.call.Genotypes, vcf.GenotypeCall{
				Sample:  sample,
				Alleles: genotypeAlleleCalls(len(g.HaplotypeIndices), len(alleleCount)),
				Quality: quality,
			})
		}
	}

	out := make([]vcf.VariantCall, 0, len(order))
	for _, key := range order {
		out = append(out, sites[key].call)
	}
	return out
}

// genotypeAlleleCalls builds a simple 0/1-style allele-index vector: alt
// count copies of allele 1, the remainder allele 0.
func genotypeAlleleCalls(ploidy, altCount int) []int {
	out := make([]int, ploidy)
	for i := 0; i < altCount && i < ploidy; i++ {
		out[i] = 1
	}
	return out
}

// log10ErrorOf estimates the log10 probability that the called genotype
// at `best` is wrong, as log10(1 - 10^posteriors[best]) computed safely
// via the complement over the rest of the distribution.
func log10ErrorOf(posteriors []float64, best int) float64 {
	var rest []float64
	for i, p := range posteriors {
		if i != best {
			rest = append(rest, p)
		}
	}
	if len(rest) == 0 {
		return math.Inf(-1)
	}
	return log10SumExp(rest)
}

// CallRefBlocks emits one homozygous-reference confidence record per
// sample whose winning genotype is entirely the reference haplotype
// with quality at or above minQuality, spanning the full window w,
// the --refcall counterpart to callVariantsFromPosteriors, which only
// ever emits sites a non-reference haplotype actually touches.
func CallRefBlocks(latents Latents, w region.Region, refSeq []byte, minQuality float64) []vcf.VariantCall {
	if len(latents.Haplotypes) == 0 || len(refSeq) == 0 {
		return nil
	}
	refIdx := referenceHaplotypeIndex(latents.Haplotypes)

	samples := make([]string, 0, len(latents.GenotypePosteriors))
	for s := range latents.GenotypePosteriors {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	var out []vcf.VariantCall
	for _, sample := range samples {
		posteriors := latents.GenotypePosteriors[sample]
		best := bestGenotypeIndex(posteriors)
		g := latents.Genotypes[best]
		if !isHomRef(g, refIdx) {
			continue
		}
		quality := phredFromLog10Error(log10ErrorOf(posteriors, best))
		if quality < minQuality {
			continue
		}
		v := variant.New(region.New(w.Contig, w.Begin, w.Begin+1), refSeq[:1], nil)
		out = append(out, vcf.VariantCall{
			Variant: v,
			Quality: quality,
			Filter:  "PASS",
			Info:    map[string]interface{}{"END": w.End},
			Genotypes: []vcf.GenotypeCall{{
				Sample:  sample,
				Alleles: []int{0, 0},
				Quality: quality,
			}},
		})
	}
	return out
}

// isHomRef reports whether every haplotype index in g is the reference
// haplotype at refIdx.
func isHomRef(g Genotype, refIdx int) bool {
	for _, hi := range g.HaplotypeIndices {
		if hi != refIdx {
			return false
		}
	}
	return true
}
