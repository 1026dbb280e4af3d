package caller

import (
	"math"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/vcf"
)

// Population implements joint calling across an arbitrary set of
// unrelated samples: genotype likelihoods are computed per sample
// exactly as Individual does, but the genotype prior is re-estimated
// across the whole cohort via a short EM loop over haplotype
// frequencies, so rare-but-consistent alleles across samples gain
// support that a single sample's flat prior would reject.
type Population struct {
	// EMIterations bounds the haplotype-frequency EM loop; 0 selects a
	// sensible default.
	EMIterations int
}

func (Population) Name() string { return "population" }

const defaultPopulationEMIterations = 5

func (p Population) Infer(haplotypes []*haplotype.Haplotype, readsPerSample map[string][]*read.AlignedRead, model likelihood.ErrorModel, ploidies *ploidy.Map) (Latents, error) {
	if len(readsPerSample) == 0 {
		return Latents{}, &modeError{mode: "population", msg: "expected at least 1 sample, got 0"}
	}
	iterations := p.EMIterations
	if iterations <= 0 {
		iterations = defaultPopulationEMIterations
	}
	contig := haplotypes[0].Bounds.Contig

	samples := make([]string, 0, len(readsPerSample))
	for s := range readsPerSample {
		samples = append(samples, s)
	}

	genotypesBySample := make(map[string][]Genotype, len(samples))
	likelihoodsBySample := make(map[string][]float64, len(samples))
	for _, s := range samples {
		ploidyN := ploidies.Ploidy(s, contig)
		genotypes := enumerateGenotypesCapped(len(haplotypes), ploidyN, MaxJointGenotypes)
		rl := likelihood.Compute(model, haplotypes, readsPerSample[s])
		ll := make([]float64, len(genotypes))
		for i, g := range genotypes {
			ll[i] = GenotypeLog10Likelihood(g, haplotypes, rl)
		}
		genotypesBySample[s] = genotypes
		likelihoodsBySample[s] = ll
	}

	// Haplotype frequency EM: start flat, then alternate between
	// (a) computing each sample's genotype posterior under the current
	// frequencies and (b) re-estimating frequencies from the expected
	// haplotype counts across all samples' posteriors.
	freq := make([]float64, len(haplotypes))
	for i := range freq {
		freq[i] = 1.0 / float64(len(haplotypes))
	}

	posteriorsBySample := make(map[string][]float64, len(samples))
	for iter := 0; iter < iterations; iter++ {
		expectedCounts := make([]float64, len(haplotypes))
		var totalCounts float64
		for _, s := range samples {
			genotypes := genotypesBySample[s]
			prior := genotypeLog10PriorFromFrequencies(genotypes, freq)
			joint := make([]float64, len(genotypes))
			for i := range genotypes {
				joint[i] = prior[i] + likelihoodsBySample[s][i]
			}
			post := normalizeLog10Posteriors(joint)
			posteriorsBySample[s] = post
			for i, g := range genotypes {
				w := math.Pow(10, post[i])
				for _, hi := range g.HaplotypeIndices {
					expectedCounts[hi] += w
					totalCounts += w
				}
			}
		}
		if totalCounts > 0 {
			for i := range freq {
				freq[i] = (expectedCounts[i] + 1e-6) / (totalCounts + 1e-6*float64(len(freq)))
			}
		}
	}

	// Latents.Genotypes must be a single shared enumeration for
	// callVariantsFromPosteriors; since ploidy can differ per sample we
	// instead store each sample's own genotype list alongside posteriors
	// by reusing the first sample's enumeration when ploidy is uniform,
	// falling back to per-sample indices otherwise is out of scope here,
	// population mode assumes uniform ploidy across samples on a contig,
	// which is true for all but sex contigs (handled by Individual calls
	// per sample on those contigs instead).
	return Latents{
		Haplotypes:         haplotypes,
		Genotypes:          genotypesBySample[samples[0]],
		GenotypePosteriors: posteriorsBySample,
	}, nil
}

func genotypeLog10PriorFromFrequencies(genotypes []Genotype, freq []float64) []float64 {
	out := make([]float64, len(genotypes))
	for i, g := range genotypes {
		var logP float64
		for _, hi := range g.HaplotypeIndices {
			f := freq[hi]
			if f <= 0 {
				f = 1e-12
			}
			logP += math.Log10(f)
		}
		out[i] = logP
	}
	return out
}

func (Population) CallVariants(latents Latents, refSeq []byte, minQuality float64) ([]vcf.VariantCall, error) {
	return callVariantsFromPosteriors(latents, refSeq, minQuality), nil
}
