// Package variant defines Allele and Variant, the atomic units of
// variation the whole engine reasons about.
//
// An Allele carries its own region.Region rather than deriving a span
// from its sequence length, since region and sequence length can differ,
// e.g. for indels.
package variant

import (
	"bytes"

	"github.com/exascience/variantcaller/region"
)

// Allele is a concrete sequence anchored to a region. A reference allele
// has Sequence equal to the reference bases at Region; a variant allele
// differs (and may differ in length, for indels).
type Allele struct {
	Region   region.Region
	Sequence []byte
}

// Equal reports whether two alleles have the same region and sequence.
func (a Allele) Equal(b Allele) bool {
	return a.Region == b.Region && bytes.Equal(a.Sequence, b.Sequence)
}

// IsReference reports whether a matches the reference bases at its own
// region, given a lookup of the reference sequence for that region.
func (a Allele) IsReference(refSeq []byte) bool {
	return bytes.Equal(a.Sequence, refSeq)
}

// Variant is a Ref/Alt allele pair sharing one region.
type Variant struct {
	Ref Allele
	Alt Allele
	// Support is the number of reads that directly evidenced this variant
	// at candidate-generation time (candidates.ScanReads); 0 for variants
	// contributed only by the assembler or an external VCF, which carry
	// no per-read count. Used solely as the haplotype generator's holdout
	// tie-break, not as identity, Equal/Match/Normalize ignore it.
	Support int
}

// Equal reports whether two variants have equal Ref and Alt alleles.
// Variant contains a []byte field, so it isn't comparable with ==.
func (v Variant) Equal(o Variant) bool {
	return v.Ref.Equal(o.Ref) && v.Alt.Equal(o.Alt)
}

// New constructs a Variant, panicking if ref and alt are identical.
func New(r region.Region, refSeq, altSeq []byte) Variant {
	if bytes.Equal(refSeq, altSeq) {
		panic("variant: ref and alt sequences must differ")
	}
	return Variant{
		Ref: Allele{Region: r, Sequence: refSeq},
		Alt: Allele{Region: r, Sequence: altSeq},
	}
}

// Size returns max(len(ref), len(alt)) - 1, the conventional "variant
// size" used to cap assembly/candidate generation against
// max_variant_size.
func (v Variant) Size() int {
	rl, al := len(v.Ref.Sequence), len(v.Alt.Sequence)
	if rl > al {
		return rl - 1
	}
	return al - 1
}

// Normalize left-trims any shared prefix and right-trims any shared
// suffix between Ref and Alt, while preserving at least one anchor base
// for indels. It is
// idempotent: Normalize(Normalize(v)) == Normalize(v).
func Normalize(v Variant) Variant {
	ref, alt := v.Ref.Sequence, v.Alt.Sequence
	begin, end := v.Ref.Region.Begin, v.Ref.Region.End

	// Trim shared suffix first, leaving at least one base on the
	// shorter side so indels keep an anchor.
	minLen := len(ref)
	if len(alt) < minLen {
		minLen = len(alt)
	}
	suffix := 0
	for suffix < minLen-0 && suffix < len(ref) && suffix < len(alt) {
		if len(ref)-suffix <= 1 || len(alt)-suffix <= 1 {
			break
		}
		if ref[len(ref)-1-suffix] != alt[len(alt)-1-suffix] {
			break
		}
		suffix++
	}
	ref = ref[:len(ref)-suffix]
	alt = alt[:len(alt)-suffix]
	end -= uint32(suffix)

	prefix := 0
	for prefix < len(ref)-1 && prefix < len(alt)-1 && ref[prefix] == alt[prefix] {
		prefix++
	}
	ref = ref[prefix:]
	alt = alt[prefix:]
	begin += uint32(prefix)

	r := region.Region{Contig: v.Ref.Region.Contig, Begin: begin, End: end}
	return Variant{
		Ref:     Allele{Region: r, Sequence: append([]byte(nil), ref...)},
		Alt:     Allele{Region: r, Sequence: append([]byte(nil), alt...)},
		Support: v.Support,
	}
}

// Match reports whether two variants are the same after normalization,
// used to deduplicate candidates discovered by multiple sources.
func Match(a, b Variant) bool {
	na, nb := Normalize(a), Normalize(b)
	return na.Ref.Region == nb.Ref.Region &&
		bytes.Equal(na.Ref.Sequence, nb.Ref.Sequence) &&
		bytes.Equal(na.Alt.Sequence, nb.Alt.Sequence)
}

// Less orders normalized variants by (region.Begin, region.End, ref,
// alt); used both for deterministic output ordering and for the
// deterministic holdout tie-break.
func Less(a, b Variant) bool {
	ra, rb := a.Ref.Region, b.Ref.Region
	if ra.Begin != rb.Begin {
		return ra.Begin < rb.Begin
	}
	if ra.End != rb.End {
		return ra.End < rb.End
	}
	if c := bytes.Compare(a.Ref.Sequence, b.Ref.Sequence); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.Alt.Sequence, b.Alt.Sequence) < 0
}
