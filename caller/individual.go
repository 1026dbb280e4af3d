package caller

import (
	"fmt"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/vcf"
)

// Individual implements the single-sample diploid (or ploidy.Map-defined
// ploidy) caller: a flat log10 prior over genotypes, normalized by
// per-read likelihoods summed under the standard allele-mixture model.
// This is the baseline every other mode specializes.
type Individual struct{}

func (Individual) Name() string { return "individual" }

func (Individual) Infer(haplotypes []*haplotype.Haplotype, readsPerSample map[string][]*read.AlignedRead, model likelihood.ErrorModel, ploidies *ploidy.Map) (Latents, error) {
	if len(readsPerSample) != 1 {
		return Latents{}, errInvalidSampleCount("individual", 1, len(readsPerSample))
	}
	var sample string
	var reads []*read.AlignedRead
	for s, r := range readsPerSample {
		sample, reads = s, r
	}
	contig := haplotypes[0].Bounds.Contig
	ploidyN := ploidies.Ploidy(sample, contig)
	genotypes := EnumerateGenotypes(len(haplotypes), ploidyN)
	prior := FlatLog10Prior(len(genotypes))

	rl := likelihood.Compute(model, haplotypes, reads)
	joint := make([]float64, len(genotypes))
	for i, g := range genotypes {
		joint[i] = prior[i] + GenotypeLog10Likelihood(g, haplotypes, rl)
	}
	posteriors := normalizeLog10Posteriors(joint)

	return Latents{
		Haplotypes:         haplotypes,
		Genotypes:          genotypes,
		GenotypePosteriors: map[string][]float64{sample: posteriors},
	}, nil
}

func (Individual) CallVariants(latents Latents, refSeq []byte, minQuality float64) ([]vcf.VariantCall, error) {
	return callVariantsFromPosteriors(latents, refSeq, minQuality), nil
}

type modeError struct {
	mode string
	msg  string
}

func (e *modeError) Error() string { return e.mode + ": " + e.msg }

func errInvalidSampleCount(mode string, want, got int) error {
	return &modeError{mode: mode, msg: fmt.Sprintf("expected exactly %d sample(s), got %d", want, got)}
}
