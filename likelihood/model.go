// Package likelihood implements the pair-HMM-style read-to-haplotype
// probability model shared by every caller mode: log-probability
// computation under an affine-gap error model, mapping-quality mixing,
// and rejection of poorly-modeled reads.
//
// The match/insertion/deletion recurrence runs over sync.Pool-backed
// scratch matrices; per-read likelihoods are floored at the best
// non-reference haplotype's likelihood plus globalReadMismappingRate,
// and reads no haplotype can
// model are dropped before genotyping.
package likelihood

import (
	"math"
	"strings"
	"sync"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/internal"
	"github.com/exascience/variantcaller/read"
)

func log10(x float64) float64 { return math.Log10(x) }

// qualToErrorProb[q] = 10^(-q/10), precomputed for the Phred range.
var qualToErrorProb = makeQualToErrorProb()

func makeQualToErrorProb() (table [64]float64) {
	for q := 0; q < len(table); q++ {
		table[q] = math.Pow(10, float64(q)/-10.0)
	}
	return table
}

func qualityToErrorProbability(q byte) float64 {
	if int(q) < len(qualToErrorProb) {
		return qualToErrorProb[q]
	}
	return math.Pow(10, float64(q)/-10.0)
}

// ErrorModel supplies the transition probabilities the pair-HMM uses at
// each read position: how likely a match is to continue as a match vs.
// open an indel, and how likely an indel is to extend vs. close. It is
// a struct of closures rather than a fixed table so new presets (e.g.
// PCR-free vs. PCR-amplified preps) can be added without touching the
// recurrence.
type ErrorModel struct {
	Name           string
	IndelToIndel   float64
	MatchToIndel   func(repeatLength int) float64
	MatchToMatch   func(repeatLength int) float64
	MappingQuality MappingQualityConfig
}

// IndelToMatch is the complement of IndelToIndel.
func (m ErrorModel) IndelToMatch() float64 { return 1 - m.IndelToIndel }

// MappingQualityConfig gates when the pair-HMM mixes "this read may be
// randomly mapped" uncertainty into its base-match priors, rather than
// simply capping base quality at mapping quality: reads mapped with at
// least CapTrigger quality are trusted outright, and reads below it have
// their mapping quality itself capped at Cap before being mixed in, so a
// single outlier MAPQ can't swing the mixture further than Cap allows.
type MappingQualityConfig struct {
	Cap        byte
	CapTrigger byte
}

// DefaultMappingQualityConfig mirrors GATK-style practice: second-guess
// reads with a mapping quality below 20, and cap their mapping quality
// at 60, so the mismapping hypothesis never carries less weight than a
// MAPQ of 60 implies.
func DefaultMappingQualityConfig() MappingQualityConfig {
	return MappingQualityConfig{Cap: 60, CapTrigger: 20}
}

// StandardErrorModel is the default preset: homopolymer/tandem-repeat
// context raises indel rates the way real sequencers slip.
var StandardErrorModel = ErrorModel{
	Name:           "standard",
	IndelToIndel:   qualityToErrorProbability(10),
	MatchToIndel:   standardMatchToIndel,
	MatchToMatch:   func(repeatLength int) float64 { return 1 - 2*standardMatchToIndel(repeatLength) },
	MappingQuality: DefaultMappingQualityConfig(),
}

func standardMatchToIndel(repeatLength int) float64 {
	base := qualityToErrorProbability(40)
	return base * math.Pow(1.1, float64(repeatLength))
}

// PCRFreeErrorModel lowers indel rates for PCR-free library preps, which
// don't accumulate polymerase slippage errors the way amplified preps do.
var PCRFreeErrorModel = ErrorModel{
	Name:           "pcr-free",
	IndelToIndel:   qualityToErrorProbability(12),
	MatchToIndel:   pcrFreeMatchToIndel,
	MatchToMatch:   func(repeatLength int) float64 { return 1 - 2*pcrFreeMatchToIndel(repeatLength) },
	MappingQuality: DefaultMappingQualityConfig(),
}

func pcrFreeMatchToIndel(repeatLength int) float64 {
	base := qualityToErrorProbability(45)
	return base * math.Pow(1.05, float64(repeatLength))
}

const (
	initialCondition         = 1 << 60
	globalReadMismappingRate = 45 / -10.0
)

var initialConditionLog10 = log10(float64(initialCondition))

type float64Matrix struct {
	cols  int
	array []float64
}

func (m *float64Matrix) ensureSize(rows, cols int) {
	m.cols = cols
	total := rows * cols
	if total <= cap(m.array) {
		m.array = m.array[:total]
		for i := range m.array {
			m.array[i] = 0
		}
	} else {
		m.array = make([]float64, total)
	}
}

func (m *float64Matrix) rowView(row int) []float64 {
	offset := row * m.cols
	return m.array[offset : offset+m.cols]
}

type matrices struct {
	match, insertion, deletion float64Matrix
}

var matricesPool = sync.Pool{New: func() interface{} { return new(matrices) }}

func getMatrices() *matrices { return matricesPool.Get().(*matrices) }
func putMatrices(m *matrices) { matricesPool.Put(m) }

func (m *matrices) ensureSize(readLen, hapLen int) {
	parallel.Do(
		func() { m.match.ensureSize(readLen, hapLen) },
		func() { m.insertion.ensureSize(readLen, hapLen) },
		func() { m.deletion.ensureSize(readLen, hapLen) },
	)
}

// findTandemRepeatUnit returns the length of the longest tandem repeat
// run spanning offset within bases, capped at 20, used to raise indel
// priors inside homopolymers/STRs.
func findTandemRepeatUnit(bases string, offset int) int {
	offset1 := offset + 1
	bw := 1
	for str := 1; str <= 8 && offset1-str >= 0; str++ {
		unit := bases[offset1-str : offset1]
		n := 0
		test := bases[:offset1]
		for len(test) >= len(unit) && strings.HasSuffix(test, unit) {
			n++
			test = test[:len(test)-len(unit)]
		}
		if n > 1 {
			bw = n
			break
		}
	}
	fw := 0
	if offset1 < len(bases) {
		for str := 1; str <= 8 && offset1+str <= len(bases); str++ {
			unit := bases[offset1 : offset1+str]
			n := 0
			test := bases[offset1:]
			for len(test) >= len(unit) && strings.HasPrefix(test, unit) {
				n++
				test = test[len(unit):]
			}
			if n > 1 {
				fw = n
				break
			}
		}
	}
	total := bw + fw
	if total > 20 {
		total = 20
	}
	return total
}

// logSumExp10 returns log10(10^a + 10^b) without overflowing for large
// |a|, |b|.
func logSumExp10(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return a
	}
	return a + log10(1+math.Pow(10, b-a))
}

// randomMatch is the chance a base matches the haplotype purely by
// chance, if the read's mapping position carries no information at
// all, 1 in 4 for a uniform base, with the remaining 3/4 split evenly
// across the three non-matching bases.
const randomMatch = 0.25

// basePriors returns the match/non-match priors the pair-HMM uses at
// read position index, mixing two hypotheses via logsumexp rather than
// simply capping base quality at mapping quality: "this read matches the
// haplotype", weighted by (1 - P(mismapped)), against "this read is
// randomly mapped, so any base matches by chance", weighted by
// P(mismapped). Reads mapped with at least cfg.CapTrigger quality skip
// the mixture entirely and use their base quality as-is.
func basePriors(cfg MappingQualityConfig, r *read.AlignedRead, index int) (matchPrior, nonMatchPrior float64) {
	q := r.Qualities[index]
	haplotypeMatch := 1 - qualityToErrorProbability(q)
	haplotypeNonMatch := qualityToErrorProbability(q) / 3

	if r.MappingQual >= cfg.CapTrigger {
		return haplotypeMatch, haplotypeNonMatch
	}
	cappedMapQual := r.MappingQual
	if cappedMapQual > cfg.Cap {
		cappedMapQual = cfg.Cap
	}
	pMismapped := qualityToErrorProbability(cappedMapQual)
	logPHap, logPRandom := log10(1-pMismapped), log10(pMismapped)

	matchPrior = math.Pow(10, logSumExp10(logPHap+log10(haplotypeMatch), logPRandom+log10(randomMatch)))
	nonMatchPrior = math.Pow(10, logSumExp10(logPHap+log10(haplotypeNonMatch), logPRandom+log10((1-randomMatch)/3)))
	return matchPrior, nonMatchPrior
}

// ReadLikelihoods holds, per haplotype, the per-read log10 probability
// the read was generated by that haplotype. It is keyed by haplotype
// pointer identity, matching how the generator hands out *Haplotype.
type ReadLikelihoods struct {
	Reads  []*read.AlignedRead
	values map[*haplotype.Haplotype][]float64
}

// Of returns haplotype h's per-read log10 likelihoods, in the same order
// as Reads.
func (rl *ReadLikelihoods) Of(h *haplotype.Haplotype) []float64 { return rl.values[h] }

// Compute evaluates every (read, haplotype) pair under model, applying
// the global-mismapping-rate cap and dropping reads that remain poorly
// modeled by every haplotype.
func Compute(model ErrorModel, haplotypes []*haplotype.Haplotype, reads []*read.AlignedRead) ReadLikelihoods {
	var maxReadLen, maxHapLen int
	parallel.Do(
		func() {
			maxReadLen = parallel.RangeReduceInt(0, len(reads), 0, func(low, high int) int {
				m := 0
				for i := low; i < high; i++ {
					if l := len(reads[i].Sequence); l > m {
						m = l
					}
				}
				return m
			}, internal.MaxInt)
		},
		func() {
			maxHapLen = parallel.RangeReduceInt(0, len(haplotypes), 0, func(low, high int) int {
				m := 0
				for i := low; i < high; i++ {
					if l := len(haplotypes[i].Sequence()); l > m {
						m = l
					}
				}
				return m
			}, internal.MaxInt)
		},
	)

	// Reads is a copy: dropPoorlyModeled compacts it in place, which must
	// not reorder the caller's slice.
	result := ReadLikelihoods{Reads: append([]*read.AlignedRead(nil), reads...), values: make(map[*haplotype.Haplotype][]float64, len(haplotypes))}
	for _, h := range haplotypes {
		result.values[h] = make([]float64, len(reads))
	}

	parallel.Range(0, len(reads), len(reads), func(low, high int) {
		for readIndex := low; readIndex < high; readIndex++ {
			r := reads[readIndex]
			bases := string(r.Sequence)
			matchToMatch := make([]float64, len(r.Qualities))
			matchToIndel := make([]float64, len(r.Qualities))
			for i := range r.Qualities {
				var rl int
				if i == len(bases)-1 {
					rl = 21
				} else {
					rl = findTandemRepeatUnit(bases, i)
				}
				matchToIndel[i] = model.MatchToIndel(rl)
				matchToMatch[i] = model.MatchToMatch(rl)
			}

			parallel.Range(0, len(haplotypes), len(haplotypes), func(low, high int) {
				m := getMatrices()
				defer putMatrices(m)
				m.ensureSize(maxReadLen+1, maxHapLen+1)

				for hi := low; hi < high; hi++ {
					h := haplotypes[hi]
					hapBases := h.Sequence()
					initial := float64(initialCondition) / float64(len(hapBases))
					pDeletion0 := m.deletion.rowView(0)
					for j := range pDeletion0 {
						pDeletion0[j] = initial
					}
					for i := range r.Qualities {
						x := bases[i]
						matchPrior, nonMatchPrior := basePriors(model.MappingQuality, r, i)

						pMatchI, pMatchI1 := m.match.rowView(i), m.match.rowView(i+1)
						pInsI, pInsI1 := m.insertion.rowView(i), m.insertion.rowView(i+1)
						pDelI, pDelI1 := m.deletion.rowView(i), m.deletion.rowView(i+1)

						mm, mi := matchToMatch[i], matchToIndel[i]
						for j := 0; j < len(hapBases); j++ {
							y := hapBases[j]
							var prior float64
							if x == y || x == 'N' || y == 'N' {
								prior = matchPrior
							} else {
								prior = nonMatchPrior
							}
							pMatchI1[j+1] = prior * (pMatchI[j]*mm + pInsI[j]*model.IndelToMatch() + pDelI[j]*model.IndelToMatch())
							pInsI1[j+1] = pMatchI[j+1]*mi + pInsI[j+1]*model.IndelToIndel
							pDelI1[j+1] = pMatchI1[j]*mi + pDelI1[j]*model.IndelToIndel
						}
					}
					var sum float64
					pMatchEnd := m.match.rowView(len(r.Qualities))
					pInsEnd := m.insertion.rowView(len(r.Qualities))
					for j := 1; j <= len(hapBases); j++ {
						sum += pMatchEnd[j] + pInsEnd[j]
					}
					result.values[h][readIndex] = log10(sum) - initialConditionLog10
				}
			})
		}
	})

	applyMismappingCap(haplotypes, &result)
	dropPoorlyModeled(haplotypes, &result)
	return result
}

func applyMismappingCap(haplotypes []*haplotype.Haplotype, result *ReadLikelihoods) {
	if len(haplotypes) <= 1 {
		return
	}
	for r := range result.Reads {
		best := math.Inf(-1)
		for _, h := range haplotypes {
			if h.IsReference {
				continue
			}
			if v := result.values[h][r]; v > best {
				best = v
			}
		}
		if math.IsInf(best, -1) {
			continue
		}
		cap := best + globalReadMismappingRate
		for _, h := range haplotypes {
			if v := result.values[h]; v[r] < cap {
				v[r] = cap
			}
		}
	}
}

func dropPoorlyModeled(haplotypes []*haplotype.Haplotype, result *ReadLikelihoods) {
	for i := 0; i < len(result.Reads); {
		maxErrors := math.Min(2, math.Ceil(float64(len(result.Reads[i].Qualities))*0.02))
		threshold := maxErrors * -4.0
		fitsSome := false
		for _, h := range haplotypes {
			if result.values[h][i] >= threshold {
				fitsSome = true
				break
			}
		}
		if fitsSome {
			i++
			continue
		}
		result.Reads = append(result.Reads[:i], result.Reads[i+1:]...)
		for h, v := range result.values {
			result.values[h] = append(v[:i], v[i+1:]...)
		}
	}
}
