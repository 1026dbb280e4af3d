// Generator turns a set of candidate variants over an active region into
// the bounded haplotype set the caller evaluates: combinatorial
// construction, extension across lagging windows, and, when the
// combinatorial count would exceed the hard caps, deterministic holdout
// of the least-supported variants.
//
// Holdout decisions are content-deterministic, ordered by read support,
// then by variant content, never PRNG-seeded, so identical inputs
// always build identical haplotype sets.
package haplotype

import (
	"sort"

	"github.com/willf/bitset"
	"gonum.org/v1/gonum/stat"

	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

// ExtensionPolicy controls how far the generator extends the haplotype
// window beyond the active region before evaluating haplotypes.
type ExtensionPolicy int

const (
	ExtendConservative ExtensionPolicy = iota
	ExtendNormal
	ExtendOptimistic
	ExtendAggressive
)

// extensionBases returns the flank, in bases, each policy adds on either
// side of the active region.
func (p ExtensionPolicy) extensionBases() uint32 {
	switch p {
	case ExtendConservative:
		return 10
	case ExtendNormal:
		return 25
	case ExtendOptimistic:
		return 50
	case ExtendAggressive:
		return 100
	default:
		return 25
	}
}

// LaggingPolicy controls how many active windows the generator keeps
// open (lagging behind the read stream) before forcing resolution,
// trading memory for the ability to phase across window boundaries.
type LaggingPolicy int

const (
	LagNone LaggingPolicy = iota
	LagConservative
	LagModerate
	LagNormal
	LagAggressive
)

// lagWindows returns how many trailing windows a policy keeps open.
func (p LaggingPolicy) lagWindows() int {
	switch p {
	case LagNone:
		return 0
	case LagConservative:
		return 1
	case LagModerate:
		return 2
	case LagNormal:
		return 3
	case LagAggressive:
		return 5
	default:
		return 0
	}
}

// Config bundles the generator's tunables, mirroring the "Haplotype
// generation" tunables.
type Config struct {
	Extension       ExtensionPolicy
	Lagging         LaggingPolicy
	TargetLimit     int // soft cap: holdout engages once combinations(candidates) exceeds this
	OverflowLimit   int // hard cap: Build bails on the window (no haplotypes) if holdout can't fit under this
	MaxHoldoutDepth int // rounds of best-candidate reintroduction attempted after the initial holdout
	MinFlankPad     uint32
	DenseRegionMAD  float64 // MAD multiplier above which a window is "dense"
}

// DefaultConfig is moderate extension, no lagging, and caps sized for a
// single active region.
func DefaultConfig() Config {
	return Config{
		Extension:       ExtendNormal,
		Lagging:         LagNone,
		TargetLimit:     128,
		OverflowLimit:   256,
		MaxHoldoutDepth: 2,
		MinFlankPad:     10,
		DenseRegionMAD:  3.0,
	}
}

// maxPowerExponent bounds the exact power-of-two arithmetic below; no
// realistic cap configuration calls for evaluating past 2^30
// combinations, and candidates is always truncated to this length before
// the combinatorial loop runs.
const maxPowerExponent = 30

// combinations estimates the non-empty combination count for n
// candidates, clamping n so the shift never overflows.
func combinations(n int) int {
	if n > maxPowerExponent {
		n = maxPowerExponent
	}
	return 1<<uint(n) - 1
}

// Generator builds a bounded haplotype set from an active region's
// candidate variants.
type Generator struct {
	cfg Config
}

// NewGenerator returns a Generator configured by cfg.
func NewGenerator(cfg Config) *Generator { return &Generator{cfg: cfg} }

// Window returns the evaluation window the generator will build
// haplotypes over: the active region extended by Extension.extensionBases
// on either side, padded further to MinFlankPad if the extension itself
// falls short.
func (g *Generator) Window(active region.Region) region.Region {
	pad := g.cfg.Extension.extensionBases()
	if pad < g.cfg.MinFlankPad {
		pad = g.cfg.MinFlankPad
	}
	begin := uint32(0)
	if active.Begin > pad {
		begin = active.Begin - pad
	}
	return region.Region{Contig: active.Contig, Begin: begin, End: active.End + pad}
}

// IsDenseRegion reports whether the candidate count within window is a
// statistical outlier relative to the surrounding windowCounts sample,
// using median absolute deviation.
func (g *Generator) IsDenseRegion(count int, windowCounts []float64) bool {
	if len(windowCounts) < 4 {
		return false
	}
	sorted := append([]float64(nil), windowCounts...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		d := v - median
		if d < 0 {
			d = -d
		}
		deviations[i] = d
	}
	sort.Float64s(deviations)
	mad := stat.Quantile(0.5, stat.Empirical, deviations, nil)
	if mad == 0 {
		// A near-constant background has no spread to scale by; fall back
		// to an absolute margin of DenseRegionMAD candidates over the
		// median.
		return float64(count) > median+g.cfg.DenseRegionMAD
	}
	return float64(count) > median+g.cfg.DenseRegionMAD*mad
}

// Build constructs every combination of candidates (power set, minus the
// reference-only haplotype which is always included separately) as
// explicit-allele haplotypes over window, applying the holdout procedure
// whenever the combinatorial count would exceed cfg.TargetLimit, and
// bailing out of the window entirely (returning nil) if even the
// holdout-reduced set would still exceed the hard cfg.OverflowLimit,
// never both silently, and never a plain truncation of the combination
// loop as the only defense. backgroundCounts, if given, are the
// candidate counts from neighboring windows used by IsDenseRegion to
// pre-emptively halve the target limit in unusually dense windows.
// refSeq must cover window. Reference genotypes (candidates never
// included) are represented by the all-reference haplotype, always
// present in the result.
func (g *Generator) Build(window region.Region, refSeq []byte, candidateVariants []variant.Variant, backgroundCounts ...float64) []*Haplotype {
	targetLimit := g.cfg.TargetLimit
	if targetLimit > 0 && g.IsDenseRegion(len(candidateVariants), backgroundCounts) {
		targetLimit /= 2
	}

	kept := append([]variant.Variant(nil), candidateVariants...)
	sort.Slice(kept, func(i, j int) bool { return variant.Less(kept[i], kept[j]) })

	var held []variant.Variant
	if targetLimit > 0 && combinations(len(kept)) > targetLimit {
		kept, held = g.holdout(kept, targetLimit)
	}

	if g.cfg.OverflowLimit > 0 && combinations(len(kept)) > g.cfg.OverflowLimit {
		// The soft-capped candidate set would still blow the hard cap:
		// bail on the window rather than truncate the combination loop
		// partway through and call that a haplotype set.
		return nil
	}

	kept = g.reintroduce(kept, held, targetLimit)
	return g.combine(window, refSeq, kept)
}

// combine runs the actual power-set construction over candidates, which
// Build has already bounded to fit within cfg.OverflowLimit.
func (g *Generator) combine(window region.Region, refSeq []byte, candidates []variant.Variant) []*Haplotype {
	refHap := New(window, refSeq, nil)
	seen := map[[32]byte]bool{refHap.Hash(): true}
	out := []*Haplotype{refHap}

	n := len(candidates)
	if n > maxPowerExponent {
		n = maxPowerExponent
		candidates = candidates[:n]
	}
	for mask := uint(1); mask < (1 << uint(n)); mask++ {
		members := bitset.New(uint(n))
		for i := uint(0); i < uint(n); i++ {
			if mask&(1<<i) != 0 {
				members.Set(i)
			}
		}
		var alleles []variant.Allele
		overlap := false
		lastEnd := window.Begin
		for i, ok := members.NextSet(0); ok; i, ok = members.NextSet(i + 1) {
			a := candidates[i].Alt
			if a.Region.Begin < lastEnd {
				overlap = true
				break
			}
			alleles = append(alleles, a)
			lastEnd = a.Region.End
		}
		if overlap {
			continue
		}
		h := New(window, refSeq, alleles)
		key := h.Hash()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
		if g.cfg.OverflowLimit > 0 && len(out) >= g.cfg.OverflowLimit {
			break
		}
	}
	return out
}

// holdout reduces candidates to at most a count whose combinations()
// fits within roughly 4x capCombinations, dropping the variants least
// likely to matter (by ascending read Support, i.e. preferring to keep
// whichever candidates have the most direct read evidence) and breaking
// ties deterministically by variant.Less rather than by any form of
// randomness. It returns both the kept and the dropped variants, so
// Build/reintroduce can attempt to add dropped candidates back if room
// remains.
func (g *Generator) holdout(candidates []variant.Variant, capCombinations int) (kept, dropped []variant.Variant) {
	maxN := maxPowerExponent
	for combinations(maxN) > capCombinations*4 && maxN > 1 {
		maxN--
	}
	if len(candidates) <= maxN {
		return append([]variant.Variant(nil), candidates...), nil
	}
	bySupport := append([]variant.Variant(nil), candidates...)
	sort.Slice(bySupport, func(i, j int) bool {
		si, sj := bySupport[i].Support, bySupport[j].Support
		if si != sj {
			return si > sj
		}
		return variant.Less(bySupport[i], bySupport[j])
	})
	kept = append([]variant.Variant(nil), bySupport[:maxN]...)
	dropped = append([]variant.Variant(nil), bySupport[maxN:]...)
	sort.Slice(kept, func(i, j int) bool { return variant.Less(kept[i], kept[j]) })
	return kept, dropped
}

// reintroduce attempts, across up to cfg.MaxHoldoutDepth rounds, to add
// the best remaining held-out variant back into kept, preferring the
// one with the most read support first, since it is the most likely to
// be real, as long as doing so keeps combinations(kept) within
// targetLimit. This is the depth-bounded iterative re-introduction the
// one-shot holdout above never attempted on its own.
func (g *Generator) reintroduce(kept, held []variant.Variant, targetLimit int) []variant.Variant {
	if targetLimit <= 0 || len(held) == 0 {
		return kept
	}
	held = append([]variant.Variant(nil), held...)
	sort.Slice(held, func(i, j int) bool {
		si, sj := held[i].Support, held[j].Support
		if si != sj {
			return si > sj
		}
		return variant.Less(held[i], held[j])
	})
	for depth := 0; depth < g.cfg.MaxHoldoutDepth && len(held) > 0; depth++ {
		if combinations(len(kept)+1) > targetLimit {
			break
		}
		kept = append(kept, held[0])
		held = held[1:]
	}
	sort.Slice(kept, func(i, j int) bool { return variant.Less(kept[i], kept[j]) })
	return kept
}
