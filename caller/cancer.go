package caller

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/vcf"
)

// CredibleInterval is a posterior interval over a somatic allele
// fraction, containing CredibleMass probability mass: a Beta-posterior
// interval over the supporting-read fraction rather than a full
// haplotype frequency posterior.
type CredibleInterval struct {
	Lower, Upper float64
}

// Cancer implements matched tumor/normal somatic calling: the normal
// sample is genotyped with Individual's flat prior, then the tumor
// sample's prior is built from a mixture over possible subclonal allele
// fractions, so a variant absent from the normal genotype but present at
// a reduced fraction in the tumor is preferred over the reference
// explanation. A somatic candidate is only reported once both its
// posterior and its credible allele-fraction interval clear their
// thresholds.
type Cancer struct {
	Normal, Tumor string
	// PurityGrid is the set of candidate tumor purities/subclonal
	// fractions to mix over; nil selects a default grid.
	PurityGrid []float64

	// SomaticSNVRate, SomaticIndelRate are the per-site prior
	// probabilities of a somatic SNV/indel; <= 0 selects the defaults.
	SomaticSNVRate, SomaticIndelRate float64
	// MinExpectedSomaticFrequency floors the purity-grid fractions
	// considered for a candidate; <= 0 selects the default.
	MinExpectedSomaticFrequency float64
	// CredibleMass is the probability mass the somatic allele-fraction
	// credible interval must contain; <= 0 selects the default.
	CredibleMass float64
	// MinCredibleSomaticFrequency is the allele fraction the credible
	// interval's lower bound must clear for a SOMATIC annotation; <= 0
	// selects the default.
	MinCredibleSomaticFrequency float64
	// TumourGermlineConcentration tempers how strongly the somatic
	// mutation-rate prior penalizes a candidate's posterior; <= 0 selects
	// the default. Higher values trust the read-level evidence more.
	TumourGermlineConcentration float64
	// MinSomaticPosterior is the minimum combined posterior mass across
	// screened somatic candidates required for a SOMATIC annotation;
	// <= 0 selects the default.
	MinSomaticPosterior float64
	// MaxSomaticHaplotypes caps how many somatic candidate haplotypes are
	// carried as genotype hypotheses; <= 0 selects the default.
	MaxSomaticHaplotypes int
	// NormalContaminationRisk is "low" (default, strict) or "high"
	// (tolerant of low-level alt support in the normal sample, e.g. from
	// cross-contamination or low-level clonal hematopoiesis); any other
	// value is treated as "low".
	NormalContaminationRisk string
}

func (Cancer) Name() string { return "cancer" }

var defaultPurityGrid = []float64{0.1, 0.2, 0.3, 0.5, 0.75, 1.0}

// Somatic SNVs arise roughly an order of magnitude more often per site
// than somatic indels; the remaining defaults are the usual
// tumor/normal calling conventions: a 95% credible interval, a 1%
// credible-frequency floor, and a single extra somatic haplotype per
// window unless asked for more.
const (
	defaultSomaticSNVRate               = 1e-4
	defaultSomaticIndelRate             = 1e-5
	defaultMinExpectedSomaticFrequency  = 0.05
	defaultCredibleMass                 = 0.95
	defaultMinCredibleSomaticFrequency  = 0.01
	defaultTumourGermlineConcentration  = 2.0
	defaultMinSomaticPosterior          = 0.9
	defaultMaxSomaticHaplotypes         = 1
	normalContaminationToleranceLow     = 0.02
	normalContaminationToleranceHigh    = 0.08
)

// somaticParams resolves Cancer's zero-valued fields to their defaults.
type somaticParams struct {
	snvRate, indelRate           float64
	minExpectedFrequency         float64
	credibleMass                 float64
	minCredibleFrequency         float64
	concentration                float64
	minSomaticPosterior          float64
	maxSomaticHaplotypes         int
	normalContaminationTolerance float64
}

func (c Cancer) resolveParams() somaticParams {
	p := somaticParams{
		snvRate:                      c.SomaticSNVRate,
		indelRate:                    c.SomaticIndelRate,
		minExpectedFrequency:         c.MinExpectedSomaticFrequency,
		credibleMass:                 c.CredibleMass,
		minCredibleFrequency:         c.MinCredibleSomaticFrequency,
		concentration:                c.TumourGermlineConcentration,
		minSomaticPosterior:          c.MinSomaticPosterior,
		maxSomaticHaplotypes:         c.MaxSomaticHaplotypes,
		normalContaminationTolerance: normalContaminationToleranceLow,
	}
	if p.snvRate <= 0 {
		p.snvRate = defaultSomaticSNVRate
	}
	if p.indelRate <= 0 {
		p.indelRate = defaultSomaticIndelRate
	}
	if p.minExpectedFrequency <= 0 {
		p.minExpectedFrequency = defaultMinExpectedSomaticFrequency
	}
	if p.credibleMass <= 0 {
		p.credibleMass = defaultCredibleMass
	}
	if p.minCredibleFrequency <= 0 {
		p.minCredibleFrequency = defaultMinCredibleSomaticFrequency
	}
	if p.concentration <= 0 {
		p.concentration = defaultTumourGermlineConcentration
	}
	if p.minSomaticPosterior <= 0 {
		p.minSomaticPosterior = defaultMinSomaticPosterior
	}
	if p.maxSomaticHaplotypes <= 0 {
		p.maxSomaticHaplotypes = defaultMaxSomaticHaplotypes
	}
	if c.NormalContaminationRisk == "high" {
		p.normalContaminationTolerance = normalContaminationToleranceHigh
	}
	return p
}

// MinSomaticAlleleFrequency resolves MinExpectedSomaticFrequency to its
// default, for callers that need the threshold itself (e.g. the
// assembly trigger).
func (c Cancer) MinSomaticAlleleFrequency() float64 {
	return c.resolveParams().minExpectedFrequency
}

// somaticCredibleInterval builds a Beta-posterior interval over the
// supporting-read fraction, the same distuv.Beta idiom Cell uses for its
// dropout prior (caller/cell.go), generalized here from a point Mean()
// to a Quantile-bounded interval.
func somaticCredibleInterval(supporting, total int, credibleMass float64) CredibleInterval {
	if total == 0 {
		return CredibleInterval{}
	}
	beta := distuv.Beta{Alpha: float64(supporting) + 1, Beta: float64(total-supporting) + 1}
	tail := (1 - credibleMass) / 2
	return CredibleInterval{Lower: beta.Quantile(tail), Upper: beta.Quantile(1 - tail)}
}

// countSupportingReads classifies each tumor read by whichever of the
// reference/alt haplotype likelihoods is higher, the same argmax
// read-assignment rule realign.Assign applies (realign/realign.go).
func countSupportingReads(refLikelihoods, altLikelihoods []float64) (supporting, total int) {
	total = len(refLikelihoods)
	for i := range refLikelihoods {
		if altLikelihoods[i] > refLikelihoods[i] {
			supporting++
		}
	}
	return
}

// passesNormalContamination rejects a candidate haplotype whose alt
// support in the normal sample exceeds tolerance, a variant this common
// in "normal" reads is more likely germline or contamination than
// somatic.
func passesNormalContamination(refLikelihoods, altLikelihoods []float64, tolerance float64) bool {
	supporting, total := countSupportingReads(refLikelihoods, altLikelihoods)
	if total == 0 {
		return true
	}
	return float64(supporting)/float64(total) <= tolerance
}

func (c Cancer) Infer(haplotypes []*haplotype.Haplotype, readsPerSample map[string][]*read.AlignedRead, model likelihood.ErrorModel, ploidies *ploidy.Map) (Latents, error) {
	hasNormal := c.Normal != ""
	if hasNormal {
		if _, ok := readsPerSample[c.Normal]; !ok {
			return Latents{}, &modeError{mode: "cancer", msg: "missing reads for normal sample " + c.Normal}
		}
	}
	if _, ok := readsPerSample[c.Tumor]; !ok {
		return Latents{}, &modeError{mode: "cancer", msg: "missing reads for tumor sample " + c.Tumor}
	}
	contig := haplotypes[0].Bounds.Contig
	grid := c.PurityGrid
	if len(grid) == 0 {
		grid = defaultPurityGrid
	}

	params := c.resolveParams()
	refHapIndex := referenceHaplotypeIndex(haplotypes)

	// With no matched normal, the germline genotype falls back to
	// homozygous reference and the contamination screen is skipped: every
	// non-reference haplotype is a somatic candidate on the tumor
	// evidence alone.
	normalBest := Genotype{HaplotypeIndices: homRefIndices(ploidies.Ploidy(c.Tumor, contig), refHapIndex)}
	var normalRL likelihood.ReadLikelihoods
	var normalRefLikelihoods []float64
	if hasNormal {
		normalPloidy := ploidies.Ploidy(c.Normal, contig)
		normalGenotypes := EnumerateGenotypes(len(haplotypes), normalPloidy)
		normalRL = likelihood.Compute(model, haplotypes, readsPerSample[c.Normal])
		normalLL := make([]float64, len(normalGenotypes))
		for i, g := range normalGenotypes {
			normalLL[i] = GenotypeLog10Likelihood(g, haplotypes, normalRL)
		}
		normalPost := normalizeLog10Posteriors(addVectors(FlatLog10Prior(len(normalGenotypes)), normalLL))
		normalBest = normalGenotypes[bestGenotypeIndex(normalPost)]
		normalRefLikelihoods = normalRL.Of(haplotypes[refHapIndex])
	}

	// Tumor genotypes are scored as mixtures: for each non-reference
	// haplotype not already in the normal genotype, evaluate the tumor
	// reads' log10 likelihood under "reference plus this haplotype at
	// fraction f" for every f in grid at or above the minimum expected
	// somatic frequency, and keep the best f per candidate haplotype,
	// the read-level analogue of a somatic allele-fraction scan.
	tumorReads := readsPerSample[c.Tumor]
	tumorRL := likelihood.Compute(model, haplotypes, tumorReads)
	refLikelihoods := tumorRL.Of(haplotypes[refHapIndex])
	refOnlyLL := sumOf(refLikelihoods)

	type somaticCandidate struct {
		hapIndex           int
		fraction           float64
		ll                 float64
		supporting, total  int
	}
	var candidates []somaticCandidate
	for hi, h := range haplotypes {
		if h.IsReference || containsIndex(normalBest.HaplotypeIndices, hi) {
			continue
		}
		if hasNormal {
			normalAltLikelihoods := normalRL.Of(h)
			if !passesNormalContamination(normalRefLikelihoods, normalAltLikelihoods, params.normalContaminationTolerance) {
				continue
			}
		}
		altLikelihoods := tumorRL.Of(h)
		best := somaticCandidate{hapIndex: hi, ll: math.Inf(-1)}
		for _, f := range grid {
			if f < params.minExpectedFrequency {
				continue
			}
			var ll float64
			for r := range tumorRL.Reads {
				ll += log10SumExp([]float64{refLikelihoods[r] + math.Log10(1-f), altLikelihoods[r] + math.Log10(f)})
			}
			if ll > best.ll {
				best = somaticCandidate{hapIndex: hi, fraction: f, ll: ll}
			}
		}
		if best.fraction == 0 {
			continue // no grid point cleared the minimum expected frequency
		}
		best.supporting, best.total = countSupportingReads(refLikelihoods, altLikelihoods)
		candidates = append(candidates, best)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ll > candidates[j].ll })

	var screened []somaticCandidate
	var credibles []CredibleInterval
	for _, cand := range candidates {
		ci := somaticCredibleInterval(cand.supporting, cand.total, params.credibleMass)
		if ci.Lower < params.minCredibleFrequency {
			continue
		}
		screened = append(screened, cand)
		credibles = append(credibles, ci)
		if len(screened) >= params.maxSomaticHaplotypes {
			break
		}
	}

	tumorGenotypes := []Genotype{{HaplotypeIndices: append([]int(nil), normalBest.HaplotypeIndices...)}}
	tumorJoint := []float64{0} // log10(1) for the reference-explains-it-all outcome
	for _, cand := range screened {
		h := haplotypes[cand.hapIndex]
		rate := params.snvRate
		if isIndelHaplotype(h) {
			rate = params.indelRate
		}
		priorLog10 := math.Log10(rate) / params.concentration
		margin := cand.ll - refOnlyLL + priorLog10
		tumorGenotypes = append(tumorGenotypes, Genotype{
			HaplotypeIndices: append(append([]int(nil), normalBest.HaplotypeIndices...), cand.hapIndex),
		})
		tumorJoint = append(tumorJoint, margin)
	}
	tumorPost := normalizeLog10Posteriors(tumorJoint)

	var somaticPosterior float64
	for i := 1; i < len(tumorPost); i++ {
		somaticPosterior += math.Pow(10, tumorPost[i])
	}

	annotations := map[string]map[string]interface{}{}
	if len(screened) > 0 && somaticPosterior >= params.minSomaticPosterior {
		annotations[c.Tumor] = map[string]interface{}{
			"SOMATIC":         true,
			"SOMATIC_POSTERIOR": somaticPosterior,
			"SOMATIC_AF_LO":   credibles[0].Lower,
			"SOMATIC_AF_HI":   credibles[0].Upper,
		}
	}

	return Latents{
		Haplotypes:         haplotypes,
		Genotypes:          tumorGenotypes,
		GenotypePosteriors: map[string][]float64{c.Tumor: tumorPost},
		Annotations:        annotations,
	}, nil
}

// homRefIndices builds the homozygous-reference genotype index vector at
// the given ploidy.
func homRefIndices(ploidy, refIdx int) []int {
	out := make([]int, ploidy)
	for i := range out {
		out[i] = refIdx
	}
	return out
}

func containsIndex(indices []int, i int) bool {
	for _, v := range indices {
		if v == i {
			return true
		}
	}
	return false
}

func referenceHaplotypeIndex(haplotypes []*haplotype.Haplotype) int {
	for i, h := range haplotypes {
		if h.IsReference {
			return i
		}
	}
	return 0
}

func sumOf(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func (Cancer) CallVariants(latents Latents, refSeq []byte, minQuality float64) ([]vcf.VariantCall, error) {
	return callVariantsFromPosteriors(latents, refSeq, minQuality), nil
}
