// Package candidates implements the Candidate-Variant Generator:
// GenerateActive combines all four candidate sources behind one
// active-region decision, the CIGAR scanner (ScanReads), the local
// reassembler (assembly.Assemble, run only when a window crosses the
// assembly-worthy trigger), short-tandem-repeat flagging (ScanRepeats,
// which relaxes inclusion thresholds for indels in unstable regions
// rather than over-penalizing them), and an external-VCF fold-in
// (MergeExternal), and reduces the result to a deduplicated,
// size-capped, sorted candidate set.
//
// The scanner walks each read's CIGAR against the reference and emits a
// Variant at every mismatching M run, I, and D block.
package candidates

import (
	"sort"

	"github.com/exascience/variantcaller/assembly"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

// InclusionMode selects which predicate governs whether a scanned
// mismatch/indel becomes a candidate.
type InclusionMode int

const (
	InclusionGermline InclusionMode = iota
	InclusionSomatic
	InclusionSingleCell
	InclusionSimpleThreshold
)

// Config bundles the candidate-generation tunables.
type Config struct {
	Mode              InclusionMode
	MinBaseQuality    byte
	MinSupportingReads int
	MinSupportFraction float64
	MaxVariantSize    int
}

// DefaultConfig mirrors a conservative germline threshold.
func DefaultConfig() Config {
	return Config{Mode: InclusionGermline, MinBaseQuality: 20, MinSupportingReads: 2, MinSupportFraction: 0.1, MaxVariantSize: 200}
}

// support accumulates observation counts for one normalized variant
// across all scanned reads, for the inclusion predicates to threshold
// against.
type support struct {
	variant    variant.Variant
	reads      int
	totalReads int
}

// ScanReads walks every read's CIGAR against refSeq (which must cover
// window) and returns one support entry per distinct mismatch/indel
// observed, before any inclusion filtering.
func ScanReads(window region.Region, refSeq []byte, reads []*read.AlignedRead) []support {
	counts := map[string]*support{}
	var order []string
	totalReads := len(reads)

	for _, r := range reads {
		refPos := r.Pos
		queryPos := 0
		for _, op := range r.Cigar {
			opLen := uint32(op.Length)
			switch op.Op {
			case 'M', '=', 'X':
				for k := uint32(0); k < opLen; k++ {
					rp := refPos + k
					if rp < window.Begin || rp >= window.End {
						continue
					}
					refBase := refSeq[rp-window.Begin]
					qBase := r.Sequence[queryPos+int(k)]
					if refBase != qBase && qBase != 'N' && refBase != 'N' {
						v := variant.New(region.New(window.Contig, rp, rp+1), []byte{refBase}, []byte{qBase})
						record(counts, &order, v, totalReads)
					}
				}
				refPos += opLen
				queryPos += int(opLen)
			case 'I':
				if refPos < window.Begin || refPos >= window.End {
					queryPos += int(opLen)
					continue
				}
				ins := append([]byte(nil), r.Sequence[queryPos:queryPos+int(opLen)]...)
				v := variant.New(region.New(window.Contig, refPos, refPos), nil, ins)
				record(counts, &order, v, totalReads)
				queryPos += int(opLen)
			case 'D':
				if refPos >= window.Begin && refPos+opLen <= window.End {
					delRef := refSeq[refPos-window.Begin : refPos+opLen-window.Begin]
					v := variant.New(region.New(window.Contig, refPos, refPos+opLen), delRef, nil)
					record(counts, &order, v, totalReads)
				}
				refPos += opLen
			case 'N', 'S', 'H', 'P':
				if op.Op == 'N' {
					refPos += opLen
				}
				if op.Op == 'S' {
					queryPos += int(opLen)
				}
			}
		}
	}

	out := make([]support, 0, len(order))
	for _, key := range order {
		out = append(out, *counts[key])
	}
	return out
}

func record(counts map[string]*support, order *[]string, v variant.Variant, totalReads int) {
	n := variant.Normalize(v)
	key := string(n.Ref.Region.Contig) + ":" + n.Ref.Region.String() + ":" + string(n.Ref.Sequence) + ">" + string(n.Alt.Sequence)
	if s, ok := counts[key]; ok {
		s.reads++
		return
	}
	counts[key] = &support{variant: n, reads: 1, totalReads: totalReads}
	*order = append(*order, key)
}

// Included applies cfg's inclusion predicate to a support entry.
func Included(cfg Config, s support) bool {
	if s.variant.Size() > cfg.MaxVariantSize {
		return false
	}
	switch cfg.Mode {
	case InclusionSomatic:
		// somatic calling tolerates lower support since the true variant
		// may be present only in a tumor subclone.
		return s.reads >= 1 && fraction(s) >= cfg.MinSupportFraction/2
	case InclusionSingleCell:
		// single-cell dropout means even one supporting read is
		// informative; the caller's own allelic-dropout prior, not this
		// predicate, is responsible for down-weighting such calls.
		return s.reads >= 1
	case InclusionSimpleThreshold:
		return s.reads >= cfg.MinSupportingReads
	default: // InclusionGermline
		return s.reads >= cfg.MinSupportingReads && fraction(s) >= cfg.MinSupportFraction
	}
}

func fraction(s support) float64 {
	if s.totalReads == 0 {
		return 0
	}
	return float64(s.reads) / float64(s.totalReads)
}

// Generate scans reads, applies cfg's inclusion predicate, deduplicates
// by the normalize-then-compare match predicate, and returns the
// resulting candidates sorted by position.
func Generate(cfg Config, window region.Region, refSeq []byte, reads []*read.AlignedRead) []variant.Variant {
	supports := ScanReads(window, refSeq, reads)
	var out []variant.Variant
	for _, s := range supports {
		if Included(cfg, s) {
			out = append(out, s.variant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return variant.Less(out[i], out[j]) })
	return out
}

// MergeExternal folds variants pulled from another source (the
// reassembler, an external VCF) into a generated candidate set,
// deduplicating by the match predicate, discarding anything larger than
// maxVariantSize (<= 0: unbounded), and re-sorting.
func MergeExternal(generated, external []variant.Variant, maxVariantSize int) []variant.Variant {
	out := append([]variant.Variant(nil), generated...)
	for _, e := range external {
		if maxVariantSize > 0 && e.Size() > maxVariantSize {
			continue
		}
		dup := false
		for _, g := range generated {
			if variant.Match(e, g) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, variant.Normalize(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return variant.Less(out[i], out[j]) })
	return out
}

// RepeatUnit describes a short tandem repeat detected in the reference
// window, used to mark indels inside it as coming from an "unstable"
// region.
type RepeatUnit struct {
	Region region.Region
	Unit   []byte
	Copies int
}

// ScanRepeats finds maximal tandem repeats of unit length 1..maxUnit
// within window, once per window rather than once per read position.
func ScanRepeats(window region.Region, refSeq []byte, maxUnit int) []RepeatUnit {
	var out []RepeatUnit
	i := 0
	for i < len(refSeq) {
		bestUnit, bestCopies := 0, 1
		for unit := 1; unit <= maxUnit && i+unit <= len(refSeq); unit++ {
			copies := 1
			for i+copies*unit+unit <= len(refSeq) && equalSlice(refSeq[i+copies*unit:i+copies*unit+unit], refSeq[i:i+unit]) {
				copies++
			}
			if copies > bestCopies || (copies == bestCopies && unit < bestUnit) {
				if copies >= 2 {
					bestUnit, bestCopies = unit, copies
				}
			}
		}
		if bestCopies >= 2 {
			span := bestUnit * bestCopies
			out = append(out, RepeatUnit{
				Region: region.New(window.Contig, window.Begin+uint32(i), window.Begin+uint32(i+span)),
				Unit:   append([]byte(nil), refSeq[i:i+bestUnit]...),
				Copies: bestCopies,
			})
			i += span
		} else {
			i++
		}
	}
	return out
}

// AssemblyConfig controls when the local reassembler augments the
// CIGAR-scanned candidate set for a window, and with what tunables.
type AssemblyConfig struct {
	// TriggerFrequency is the approximate allele fraction at which a
	// window becomes assembly-worthy: the calling mode's minimum
	// somatic/clone fraction, or an organism-ploidy default.
	TriggerFrequency float64
	// Always forces reassembly on every window regardless of
	// TriggerFrequency (assemble_all).
	Always bool
	// Graph carries the bin/prune/score/cap tunables handed to
	// assembly.Assemble.
	Graph assembly.Config
	// MaxRepeatUnit bounds the tandem-repeat unit length ScanRepeats
	// looks for when flagging indels in unstable regions.
	MaxRepeatUnit int
}

// DefaultAssemblyConfig mirrors a conservative assembly-worthy trigger:
// reassemble a window once 10% or more of its reads carry variant
// evidence.
func DefaultAssemblyConfig() AssemblyConfig {
	return AssemblyConfig{TriggerFrequency: 0.1, Graph: assembly.DefaultConfig(), MaxRepeatUnit: 6}
}

// isAssemblyWorthy reports whether the variant evidence gathered by
// ScanReads crosses acfg's trigger, the active-region test that decides
// whether the local reassembler runs in addition to the CIGAR scanner.
func isAssemblyWorthy(acfg AssemblyConfig, supports []support, totalReads int) bool {
	if acfg.Always {
		return true
	}
	if totalReads == 0 || len(acfg.Graph.KmerSizes) == 0 {
		return false
	}
	var variantReads int
	for _, s := range supports {
		variantReads += s.reads
	}
	return float64(variantReads)/float64(totalReads) >= acfg.TriggerFrequency
}

// inRepeat reports whether r falls inside any of the unstable tandem-
// repeat regions ScanRepeats found.
func inRepeat(repeats []RepeatUnit, r region.Region) bool {
	for _, ru := range repeats {
		if ru.Region.Overlaps(r) {
			return true
		}
	}
	return false
}

// relaxedForRepeat relaxes cfg's support thresholds for indel candidates
// that fall inside a short-tandem-repeat region (MinSupportingReads drops
// by one, never below 1, and MinSupportFraction is halved), so that slippage noise
// in a homopolymer/microsatellite doesn't get held to the same bar as an
// indel in unique sequence.
func relaxedForRepeat(cfg Config) Config {
	relaxed := cfg
	if relaxed.MinSupportingReads > 1 {
		relaxed.MinSupportingReads--
	}
	relaxed.MinSupportFraction /= 2
	return relaxed
}

// GenerateActive is the active-region candidate generator: it combines
// all four candidate sources behind one inclusion/assembly-worthy
// decision, the way the CIGAR scanner alone cannot. For every window it
// runs ScanReads (the CIGAR scanner), relaxes the inclusion thresholds
// for indels ScanRepeats flags as falling in an unstable tandem repeat,
// augments the result with assembly.Assemble's bubble-extracted variants
// when the window is assembly-worthy, and finally folds in any variants
// pulled from an external VCF via MergeExternal.
func GenerateActive(cfg Config, acfg AssemblyConfig, window region.Region, refSeq []byte, reads []*read.AlignedRead, external []variant.Variant) []variant.Variant {
	supports := ScanReads(window, refSeq, reads)
	repeats := ScanRepeats(window, refSeq, acfg.MaxRepeatUnit)

	var out []variant.Variant
	for _, s := range supports {
		effCfg := cfg
		if s.variant.Size() > 0 && inRepeat(repeats, s.variant.Ref.Region) {
			effCfg = relaxedForRepeat(cfg)
		}
		if Included(effCfg, s) {
			v := s.variant
			v.Support = s.reads
			out = append(out, v)
		}
	}

	if isAssemblyWorthy(acfg, supports, len(reads)) {
		readSeqs := make([][]byte, 0, len(reads))
		for _, r := range reads {
			readSeqs = append(readSeqs, r.Sequence)
		}
		gcfg := acfg.Graph
		gcfg.MaxVariantSize = cfg.MaxVariantSize
		assembled := assembly.Assemble(window, refSeq, readSeqs, gcfg)
		out = MergeExternal(out, assembled, cfg.MaxVariantSize)
	}

	if len(external) > 0 {
		out = MergeExternal(out, external, cfg.MaxVariantSize)
	}

	sort.Slice(out, func(i, j int) bool { return variant.Less(out[i], out[j]) })
	return out
}

func equalSlice(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
