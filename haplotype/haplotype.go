// Package haplotype defines the Haplotype type, a reference-coordinated
// sequence built from a bounding region plus an ordered set of explicit
// alleles, with gaps filled implicitly from the reference, and the
// haplotype generator that turns candidate variants into the haplotype
// set the caller evaluates.
//
// A Haplotype memoizes its concrete bases and reference CIGAR at
// construction time, since the likelihood model and realigner query
// both on every evaluation.
package haplotype

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

// Haplotype is a concrete sequence over Bounds, built from explicit
// alleles with reference gaps filled in.
type Haplotype struct {
	Bounds       region.Region
	Alleles      []variant.Allele // sorted, non-overlapping, in-order
	IsReference  bool
	bases        []byte // memoized Sequence()
	cigar        []read.CigarOp
}

// New builds a Haplotype from Bounds, a reference lookup, and an ordered,
// non-overlapping set of alleles to splice in. Adjacent alleles that are
// identical to the reference are dropped rather than spliced in as
// explicit no-op alleles.
func New(bounds region.Region, refSeq []byte, alleles []variant.Allele) *Haplotype {
	sort.Slice(alleles, func(i, j int) bool { return alleles[i].Region.Begin < alleles[j].Region.Begin })

	var kept []variant.Allele
	var prevEnd uint32 = bounds.Begin
	for _, a := range alleles {
		if a.Region.Begin < prevEnd {
			panic("haplotype: overlapping explicit alleles")
		}
		ref := refSeq[a.Region.Begin-bounds.Begin : a.Region.End-bounds.Begin]
		if bytes.Equal(ref, a.Sequence) {
			continue // merges into the implicit reference gap
		}
		kept = append(kept, a)
		prevEnd = a.Region.End
	}

	bases := make([]byte, 0, len(refSeq))
	var cigar []read.CigarOp
	pos := bounds.Begin
	appendM := func(n int32) {
		if n <= 0 {
			return
		}
		if len(cigar) > 0 && cigar[len(cigar)-1].Op == 'M' {
			cigar[len(cigar)-1].Length += n
		} else {
			cigar = append(cigar, read.CigarOp{Length: n, Op: 'M'})
		}
	}
	for _, a := range kept {
		gap := int32(a.Region.Begin - pos)
		bases = append(bases, refSeq[pos-bounds.Begin:a.Region.Begin-bounds.Begin]...)
		appendM(gap)
		bases = append(bases, a.Sequence...)
		refLen := int32(a.Region.End - a.Region.Begin)
		altLen := int32(len(a.Sequence))
		switch {
		case refLen == altLen:
			appendM(altLen)
		case altLen > refLen:
			appendM(refLen)
			cigar = append(cigar, read.CigarOp{Length: altLen - refLen, Op: 'I'})
		default:
			if altLen > 0 {
				appendM(altLen)
			}
			cigar = append(cigar, read.CigarOp{Length: refLen - altLen, Op: 'D'})
		}
		pos = a.Region.End
	}
	bases = append(bases, refSeq[pos-bounds.Begin:]...)
	appendM(int32(bounds.End - pos))

	return &Haplotype{Bounds: bounds, Alleles: kept, IsReference: len(kept) == 0, bases: bases, cigar: cigar}
}

// Sequence returns the concrete bases of the haplotype.
func (h *Haplotype) Sequence() []byte { return h.bases }

// Cigar returns the haplotype's CIGAR against the reference.
func (h *Haplotype) Cigar() []read.CigarOp { return h.cigar }

// Region returns Bounds, implementing containers.Mappable.
func (h *Haplotype) Region() region.Region { return h.Bounds }

// Hash returns a stable digest of region+explicit alleles, stable across
// runs and independent of construction order.
func (h *Haplotype) Hash() [32]byte {
	hasher := sha256.New()
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Bounds.Begin)
	binary.BigEndian.PutUint32(buf[4:8], h.Bounds.End)
	hasher.Write(buf[:8])
	hasher.Write([]byte(h.Bounds.Contig))
	for _, a := range h.Alleles {
		binary.BigEndian.PutUint32(buf[0:4], a.Region.Begin)
		binary.BigEndian.PutUint32(buf[4:8], a.Region.End)
		hasher.Write(buf[:8])
		hasher.Write(a.Sequence)
	}
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

// Equal compares haplotypes by concrete sequence AND region.
func (h *Haplotype) Equal(other *Haplotype) bool {
	return h.Bounds == other.Bounds && bytes.Equal(h.bases, other.bases)
}

// Events returns the set of explicit alleles re-expressed as Variants
// against the reference, for feeding back into the candidate/call set.
func (h *Haplotype) Events(refSeq []byte) []variant.Variant {
	var out []variant.Variant
	for _, a := range h.Alleles {
		refBases := refSeq[a.Region.Begin-h.Bounds.Begin : a.Region.End-h.Bounds.Begin]
		out = append(out, variant.Variant{
			Ref: variant.Allele{Region: a.Region, Sequence: append([]byte(nil), refBases...)},
			Alt: a,
		})
	}
	return out
}

// ContainsVariant reports whether v (already normalized) is among h's
// explicit events, used by the call-emission pipeline to enforce
// TESTABLE PROPERTY 7 ("no emitted variant is absent from any called
// haplotype").
func (h *Haplotype) ContainsVariant(v variant.Variant, refSeq []byte) bool {
	for _, ev := range h.Events(refSeq) {
		if variant.Match(ev, v) {
			return true
		}
	}
	return false
}
