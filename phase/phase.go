// Package phase implements the Phaser: it decomposes a region's called
// variants into phase sets by looking at which variant pairs are
// jointly observed on individual reads spanning both sites, emitting a
// phase set whenever the evidence crosses min_phase_score.
//
// Decompose walks the called sites left-to-right and decides, site by
// site, whether the current phase set extends or closes.
package phase

import (
	"sort"

	"github.com/exascience/variantcaller/containers"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/vcf"
)

// Config bundles the phasing tunables.
type Config struct {
	MinPhaseScore float64 // minimum fraction of spanning reads that must agree
	MinSpanningReads int
}

// DefaultConfig mirrors a conservative phasing threshold.
func DefaultConfig() Config { return Config{MinPhaseScore: 0.9, MinSpanningReads: 2} }

// Decompose groups calls (already sorted by position) into phase sets:
// adjacent calls are joined into the same set when at least
// MinSpanningReads reads span both sites and at least MinPhaseScore of
// those reads agree on which alleles co-occur; any disagreement or
// insufficient evidence starts a new phase set.
func Decompose(cfg Config, calls []vcf.VariantCall, reads []*read.AlignedRead) []vcf.PhaseCall {
	if len(calls) == 0 {
		return nil
	}
	sorted := append([]vcf.VariantCall(nil), calls...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Region().Begin < sorted[j].Region().Begin })

	spans := newReadSpans(reads)

	var out []vcf.PhaseCall
	phaseSetID := int64(1)
	current := vcf.PhaseCall{PhaseSet: phaseSetID, Sites: []region.Region{sorted[0].Region()}}

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		score, spanning := phaseScore(prev, cur, spans)
		if spanning >= cfg.MinSpanningReads && score >= cfg.MinPhaseScore {
			current.Sites = append(current.Sites, cur.Region())
			if score > current.Score || current.Score == 0 {
				current.Score = score
			}
		} else {
			out = append(out, current)
			phaseSetID++
			current = vcf.PhaseCall{PhaseSet: phaseSetID, Sites: []region.Region{cur.Region()}}
		}
	}
	out = append(out, current)
	return out
}

// readSpan wraps an AlignedRead with its precomputed reference span so it
// can be indexed by containers.Set: both the overlap shortlist and
// phaseScore's exact containment check reuse the same span instead of
// recomputing it from the CIGAR on every query.
type readSpan struct {
	read *read.AlignedRead
	span region.Region
}

func (rs readSpan) Region() region.Region { return rs.span }

// newReadSpans indexes reads by reference span in a containers.Set, so
// phaseScore can narrow "reads near both sites" to the reads overlapping
// the pair's combined span before doing the exact per-read containment
// check and the allele lookups.
func newReadSpans(reads []*read.AlignedRead) *containers.Set {
	var set containers.Set
	for _, r := range reads {
		set.Add(readSpan{read: r, span: region.New(r.Contig, r.Pos, r.Pos+uint32(read.ReferenceSpan(r.Cigar)))})
	}
	return &set
}

// phaseScore returns the fraction of reads spanning both a's and b's
// sites that carry alt alleles consistently (either both ref, both alt,
// or one-ref-one-alt, any single pairing counted consistently across
// reads), plus how many reads spanned both sites at all.
func phaseScore(a, b vcf.VariantCall, spans *containers.Set) (score float64, spanning int) {
	ra, rb := a.Region(), b.Region()
	combined := ra.Encompassing(rb)
	counts := map[[2]bool]int{}
	for _, m := range spans.Overlapping(combined) {
		rs := m.(readSpan)
		if !rs.span.Contains(ra) || !rs.span.Contains(rb) {
			continue
		}
		spanning++
		hasA := readCarriesAllele(rs.read, ra, a.Variant.Alt.Sequence)
		hasB := readCarriesAllele(rs.read, rb, b.Variant.Alt.Sequence)
		counts[[2]bool{hasA, hasB}]++
	}
	if spanning == 0 {
		return 0, 0
	}
	var majority int
	for _, n := range counts {
		if n > majority {
			majority = n
		}
	}
	return float64(majority) / float64(spanning), spanning
}

// readCarriesAllele reports whether r's sequence at site matches altSeq,
// by locating site within r's CIGAR-consumed reference span.
func readCarriesAllele(r *read.AlignedRead, site region.Region, altSeq []byte) bool {
	refPos := r.Pos
	queryPos := 0
	for _, op := range r.Cigar {
		length := uint32(op.Length)
		switch op.Op {
		case 'M', '=', 'X':
			if refPos <= site.Begin && site.Begin < refPos+length {
				offset := int(site.Begin - refPos)
				end := offset + len(altSeq)
				if end <= len(r.Sequence)-queryPos {
					return string(r.Sequence[queryPos+offset:queryPos+end]) == string(altSeq)
				}
			}
			refPos += length
			queryPos += int(length)
		case 'I':
			if refPos == site.Begin && len(altSeq) > 0 {
				return string(r.Sequence[queryPos:queryPos+int(length)]) == string(altSeq)
			}
			queryPos += int(length)
		case 'D', 'N':
			refPos += length
		case 'S':
			queryPos += int(length)
		}
	}
	return false
}
