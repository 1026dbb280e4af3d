package caller

import (
	"math"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/vcf"
)

// Polyclone implements calling for a single mixed-clonality sample
// (e.g. a bacterial culture or an intra-host viral population) where the
// effective ploidy is not fixed in advance: instead of enumerating
// genotypes at one ploidy, it grows a clone set greedily from the
// reference haplotype, up to MaxClones haplotypes, scoring each trial set
// as an equal-weight mixture under a complexity penalty that disfavors
// unnecessary extra clones. Mixture proportions are not fitted, and
// subsets off the greedy path are not scored.
type Polyclone struct {
	MaxClones int
	// MinCloneFrequency is the smallest clone fraction worth modeling:
	// it bounds how many equal-weight clones can coexist and rejects
	// candidate clones whose read support falls below it. <= 0 selects
	// the default.
	MinCloneFrequency float64
}

func (Polyclone) Name() string { return "polyclone" }

const (
	defaultMaxClones         = 4
	defaultMinCloneFrequency = 0.01
)

// MinCloneAlleleFrequency resolves MinCloneFrequency to its default,
// for callers that need the threshold itself (e.g. the assembly
// trigger).
func (p Polyclone) MinCloneAlleleFrequency() float64 {
	if p.MinCloneFrequency > 0 {
		return p.MinCloneFrequency
	}
	return defaultMinCloneFrequency
}

func (p Polyclone) Infer(haplotypes []*haplotype.Haplotype, readsPerSample map[string][]*read.AlignedRead, model likelihood.ErrorModel, ploidies *ploidy.Map) (Latents, error) {
	if len(readsPerSample) != 1 {
		return Latents{}, errInvalidSampleCount("polyclone", 1, len(readsPerSample))
	}
	var sample string
	var reads []*read.AlignedRead
	for s, r := range readsPerSample {
		sample, reads = s, r
	}
	maxClones := p.MaxClones
	if maxClones <= 0 {
		maxClones = defaultMaxClones
	}
	if maxClones > len(haplotypes) {
		maxClones = len(haplotypes)
	}
	minFreq := p.MinCloneAlleleFrequency()
	// an equal-weight mixture of n clones puts 1/n on each, so any clone
	// count past 1/minFreq would model a fraction below the floor
	if bound := int(1 / minFreq); maxClones > bound {
		maxClones = bound
	}

	rl := likelihood.Compute(model, haplotypes, reads)

	// Greedily grow the clone set: start from the reference haplotype
	// alone, and at each step add whichever remaining haplotype most
	// improves the equal-weight mixture likelihood, stopping once an
	// additional clone's improvement no longer outweighs the added model
	// complexity (a fixed penalty of two log10-likelihood units per added
	// clone).
	refIdx := referenceHaplotypeIndex(haplotypes)
	refLikelihoods := rl.Of(haplotypes[refIdx])
	clones := []int{refIdx}
	bestLL := mixtureLog10Likelihood(clones, haplotypes, rl)
	const complexityPenalty = 2.0

	for len(clones) < maxClones {
		improved := false
		bestCandidate := -1
		bestCandidateLL := bestLL
		for hi := range haplotypes {
			if containsIndex(clones, hi) {
				continue
			}
			// a clone below the minimum fraction is noise, not a clone
			supporting, total := countSupportingReads(refLikelihoods, rl.Of(haplotypes[hi]))
			if total > 0 && float64(supporting)/float64(total) < minFreq {
				continue
			}
			trial := append(append([]int(nil), clones...), hi)
			ll := mixtureLog10Likelihood(trial, haplotypes, rl)
			if ll-complexityPenalty > bestLL && ll > bestCandidateLL {
				bestCandidateLL = ll
				bestCandidate = hi
				improved = true
			}
		}
		if !improved {
			break
		}
		clones = append(clones, bestCandidate)
		bestLL = bestCandidateLL
	}

	genotype := Genotype{HaplotypeIndices: clones}
	if len(clones) == 1 && clones[0] == refIdx {
		// Greedy growth never improved on the reference alone: there is
		// no second hypothesis to weigh this one against.
		return Latents{
			Haplotypes:         haplotypes,
			Genotypes:          []Genotype{genotype},
			GenotypePosteriors: map[string][]float64{sample: {0}},
		}, nil
	}

	refGenotype := Genotype{HaplotypeIndices: []int{refIdx}}
	refLL := mixtureLog10Likelihood([]int{refIdx}, haplotypes, rl)
	posteriors := normalizeLog10Posteriors([]float64{refLL, bestLL})
	return Latents{
		Haplotypes:         haplotypes,
		Genotypes:          []Genotype{refGenotype, genotype},
		GenotypePosteriors: map[string][]float64{sample: posteriors},
	}, nil
}

// mixtureLog10Likelihood scores an equal-weight mixture over the given
// haplotype indices against every read.
func mixtureLog10Likelihood(indices []int, haplotypes []*haplotype.Haplotype, rl likelihood.ReadLikelihoods) float64 {
	weight := math.Log10(1.0 / float64(len(indices)))
	var total float64
	for r := range rl.Reads {
		vals := make([]float64, len(indices))
		for i, hi := range indices {
			vals[i] = rl.Of(haplotypes[hi])[r] + weight
		}
		total += log10SumExp(vals)
	}
	return total
}

func (Polyclone) CallVariants(latents Latents, refSeq []byte, minQuality float64) ([]vcf.VariantCall, error) {
	return callVariantsFromPosteriors(latents, refSeq, minQuality), nil
}
