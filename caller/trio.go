package caller

import (
	"math"
	"sort"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/vcf"
)

// Trio implements pedigree-aware joint calling over exactly three
// samples: a child and its two parents. The child's genotype prior is
// reweighted by Mendelian transmission probability given each candidate
// parental genotype pair, while the parents keep Individual's flat prior
//, the standard "child conditioned on parents, parents independent"
// trio factorization. Genotypes the Punnett-square transmission model
// assigns zero probability are instead priced at a de-novo mutation
// rate, and their combined posterior mass is reported as the de-novo
// posterior a DENOVO call gates on.
type Trio struct {
	Child, Parent1, Parent2 string

	// SNVDenovoRate, IndelDenovoRate are the per-site prior probabilities
	// of a de-novo SNV/indel arising outside Mendelian transmission; <= 0
	// selects the package defaults.
	SNVDenovoRate, IndelDenovoRate float64
	// MinDenovoPosterior is the minimum de-novo posterior mass required
	// before a non-Mendelian child genotype is annotated DENOVO; <= 0
	// selects the default.
	MinDenovoPosterior float64
}

func (Trio) Name() string { return "trio" }

// Indels mutate roughly an order of magnitude less often than SNVs per
// site, and a call needs most of the posterior mass before it is
// reported as de-novo rather than as a sequencing or mapping artifact.
const (
	defaultSNVDenovoRate      = 1e-8
	defaultIndelDenovoRate    = 1e-9
	defaultMinDenovoPosterior = 0.9
)

func (t Trio) Infer(haplotypes []*haplotype.Haplotype, readsPerSample map[string][]*read.AlignedRead, model likelihood.ErrorModel, ploidies *ploidy.Map) (Latents, error) {
	for _, s := range []string{t.Child, t.Parent1, t.Parent2} {
		if _, ok := readsPerSample[s]; !ok {
			return Latents{}, &modeError{mode: "trio", msg: "missing reads for pedigree member " + s}
		}
	}
	contig := haplotypes[0].Bounds.Contig

	type memberLatents struct {
		genotypes []Genotype
		ll        []float64
	}
	compute := func(sample string) memberLatents {
		ploidyN := ploidies.Ploidy(sample, contig)
		genotypes := enumerateGenotypesCapped(len(haplotypes), ploidyN, MaxJointGenotypes)
		rl := likelihood.Compute(model, haplotypes, readsPerSample[sample])
		ll := make([]float64, len(genotypes))
		for i, g := range genotypes {
			ll[i] = GenotypeLog10Likelihood(g, haplotypes, rl)
		}
		return memberLatents{genotypes, ll}
	}

	p1 := compute(t.Parent1)
	p2 := compute(t.Parent2)
	child := compute(t.Child)

	p1Prior := FlatLog10Prior(len(p1.genotypes))
	p2Prior := FlatLog10Prior(len(p2.genotypes))
	p1Joint := addVectors(p1Prior, p1.ll)
	p2Joint := addVectors(p2Prior, p2.ll)
	p1Post := normalizeLog10Posteriors(p1Joint)
	p2Post := normalizeLog10Posteriors(p2Joint)

	p1Best := p1.genotypes[bestGenotypeIndex(p1Post)]
	p2Best := p2.genotypes[bestGenotypeIndex(p2Post)]

	snvRate := t.SNVDenovoRate
	if snvRate <= 0 {
		snvRate = defaultSNVDenovoRate
	}
	indelRate := t.IndelDenovoRate
	if indelRate <= 0 {
		indelRate = defaultIndelDenovoRate
	}
	minDenovo := t.MinDenovoPosterior
	if minDenovo <= 0 {
		minDenovo = defaultMinDenovoPosterior
	}

	childPrior := make([]float64, len(child.genotypes))
	denovo := make([]bool, len(child.genotypes))
	for i, g := range child.genotypes {
		if transmission := mendelianTransmissionProbability(g, p1Best, p2Best); transmission > 0 {
			childPrior[i] = math.Log10(transmission)
			continue
		}
		rate := snvRate
		if genotypeIsIndel(g, haplotypes) {
			rate = indelRate
		}
		childPrior[i] = math.Log10(rate)
		denovo[i] = true
	}
	childJoint := addVectors(childPrior, child.ll)
	childPost := normalizeLog10Posteriors(childJoint)

	var denovoPosterior float64
	for i, isDenovo := range denovo {
		if isDenovo {
			denovoPosterior += math.Pow(10, childPost[i])
		}
	}

	annotations := map[string]map[string]interface{}{}
	best := bestGenotypeIndex(childPost)
	if denovo[best] && denovoPosterior >= minDenovo {
		annotations[t.Child] = map[string]interface{}{
			"DENOVO": true,
			"DNP":    denovoPosterior,
		}
	}

	return Latents{
		Haplotypes: haplotypes,
		Genotypes:  child.genotypes, // shared indexing assumes uniform ploidy across the trio
		GenotypePosteriors: map[string][]float64{
			t.Child:   childPost,
			t.Parent1: p1Post,
			t.Parent2: p2Post,
		},
		Annotations: annotations,
	}, nil
}

// genotypeIsIndel reports whether any haplotype g draws on carries an
// indel allele, classifying the de-novo event for rate selection.
func genotypeIsIndel(g Genotype, haplotypes []*haplotype.Haplotype) bool {
	for _, hi := range g.HaplotypeIndices {
		if isIndelHaplotype(haplotypes[hi]) {
			return true
		}
	}
	return false
}

func addVectors(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

// mendelianTransmissionProbability estimates, for a diploid child, the
// probability the child's genotype g arises from one allele drawn
// uniformly from each parent's genotype (the parents may have any
// ploidy), which gives the classic 1/4,1/4,1/2 Punnett-square
// probabilities when both parents are diploid. A child genotype that is
// not diploid gets a flat 1.
func mendelianTransmissionProbability(g, parent1, parent2 Genotype) float64 {
	if len(g.HaplotypeIndices) != 2 {
		// non-diploid transmission is out of scope for the Punnett-square
		// shortcut; fall back to a flat prior so calling still proceeds.
		return 1
	}
	childAlleles := sortedCopy(g.HaplotypeIndices)
	var total, matching float64
	for _, a1 := range parent1.HaplotypeIndices {
		for _, a2 := range parent2.HaplotypeIndices {
			total++
			pair := sortedCopy([]int{a1, a2})
			if pair[0] == childAlleles[0] && pair[1] == childAlleles[1] {
				matching++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return matching / total
}

func sortedCopy(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	return out
}

// CallVariants defers to the shared tail end; the DENOVO/DNP tags Infer
// attached to latents.Annotations ride along automatically since
// callVariantsFromPosteriors merges them into every site the child's
// winning genotype touches.
func (Trio) CallVariants(latents Latents, refSeq []byte, minQuality float64) ([]vcf.VariantCall, error) {
	return callVariantsFromPosteriors(latents, refSeq, minQuality), nil
}
