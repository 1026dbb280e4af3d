package caller

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/vcf"
)

// Cell implements single-cell calling: single-cell whole-genome
// amplification drops one allele from a heterozygous site far more often
// than bulk sequencing does, so a naive diploid prior would mistake
// dropout-induced homozygosity for a true homozygous genotype. Cell
// widens the genotype prior by the mean of a Beta-distributed dropout
// rate (only the mean enters the prior), the
// resolution to the single-cell open question: dropout is a
// parameterized contract (DropoutRate, DropoutConcentration) rather than
// a fixed constant, so callers can calibrate it per protocol.
type Cell struct {
	// DropoutRate is the expected per-allele dropout probability (e.g.
	// 0.2 for a typical MDA-amplified single cell).
	DropoutRate float64
	// DropoutConcentration controls how tightly dropout rate is believed
	// to cluster around DropoutRate; higher values mean less per-site
	// variance (the Beta distribution's alpha+beta).
	DropoutConcentration float64
}

func (Cell) Name() string { return "cell" }

func (c Cell) dropoutDistribution() distuv.Beta {
	rate := c.DropoutRate
	if rate <= 0 {
		rate = 0.2
	}
	conc := c.DropoutConcentration
	if conc <= 0 {
		conc = 10
	}
	return distuv.Beta{Alpha: rate * conc, Beta: (1 - rate) * conc}
}

func (c Cell) Infer(haplotypes []*haplotype.Haplotype, readsPerSample map[string][]*read.AlignedRead, model likelihood.ErrorModel, ploidies *ploidy.Map) (Latents, error) {
	if len(readsPerSample) != 1 {
		return Latents{}, errInvalidSampleCount("cell", 1, len(readsPerSample))
	}
	var sample string
	var reads []*read.AlignedRead
	for s, r := range readsPerSample {
		sample, reads = s, r
	}
	contig := haplotypes[0].Bounds.Contig
	ploidyN := ploidies.Ploidy(sample, contig)
	genotypes := EnumerateGenotypes(len(haplotypes), ploidyN)
	rl := likelihood.Compute(model, haplotypes, reads)

	dropout := c.dropoutDistribution()
	expectedDropout := dropout.Mean()

	joint := make([]float64, len(genotypes))
	for i, g := range genotypes {
		prior := math.Log10(heterozygosityPrior(g, expectedDropout))
		joint[i] = prior + GenotypeLog10Likelihood(g, haplotypes, rl)
	}
	posteriors := normalizeLog10Posteriors(joint)

	return Latents{
		Haplotypes:         haplotypes,
		Genotypes:          genotypes,
		GenotypePosteriors: map[string][]float64{sample: posteriors},
	}, nil
}

// heterozygosityPrior down-weights homozygous genotypes relative to
// heterozygous ones by expectedDropout, reflecting that an apparently
// homozygous single-cell site may be a dropout-masked heterozygote
// rather than a true homozygote.
func heterozygosityPrior(g Genotype, expectedDropout float64) float64 {
	distinct := map[int]bool{}
	for _, hi := range g.HaplotypeIndices {
		distinct[hi] = true
	}
	if len(distinct) <= 1 {
		return 1 - expectedDropout // homozygous: may be a masked heterozygote
	}
	return 1
}

func (Cell) CallVariants(latents Latents, refSeq []byte, minQuality float64) ([]vcf.VariantCall, error) {
	return callVariantsFromPosteriors(latents, refSeq, minQuality), nil
}
