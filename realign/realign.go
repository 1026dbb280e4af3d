// Package realign implements the Read Realigner: it assigns each read
// to the called haplotype that best explains it, rebases the read's
// CIGAR against the reference through that haplotype, and annotates the
// result with hi/hc/md/PS/LK tags: assigned haplotype index, tie count,
// MD string, phase set, and log10 likelihood.
//
// Rebasing walks the read-vs-haplotype CIGAR alongside the haplotype's
// own reference CIGAR and re-emits operations in reference coordinates.
package realign

import (
	"golang.org/x/exp/rand"

	"github.com/exascience/variantcaller/align"
	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/read"
)

// Tags is the per-read realignment annotation: hi (assigned haplotype
// index), hc (the assigned haplotype's CIGAR against the reference),
// md (MD string against the reference), PS (phase set, filled in by the
// caller after phasing), LK (Phred-scaled log-likelihood of the
// assigned haplotype). TieCount > 1 marks a read whose best haplotype
// was ambiguous and had to be broken by the seeded PRNG.
type Tags struct {
	HaplotypeIndex  int
	TieCount        int
	HaplotypeCigar  []read.CigarOp
	MD              string
	PhaseSet        int64
	PhredLikelihood float64
	Cigar           []read.CigarOp
}

// AssignmentConfig controls the deterministic tie-break PRNG.
type AssignmentConfig struct {
	Seed int64
}

// Assign scores r against every haplotype's per-read likelihood (already
// computed via likelihood.Compute) and returns the Tags for its best
// assignment, breaking ties with a fixed-seed PRNG keyed by read index so
// repeated runs are deterministic.
func Assign(cfg AssignmentConfig, readIndex int, haplotypes []*haplotype.Haplotype, rl likelihood.ReadLikelihoods, refSeq []byte, refBegin uint32) Tags {
	best := -1
	bestLL := negInf
	var tied []int
	for hi, h := range haplotypes {
		ll := rl.Of(h)[readIndex]
		if ll > bestLL {
			bestLL = ll
			best = hi
			tied = []int{hi}
		} else if ll == bestLL {
			tied = append(tied, hi)
		}
	}
	if len(tied) > 1 {
		rng := rand.New(rand.NewSource(uint64(cfg.Seed + int64(readIndex))))
		best = tied[rng.Intn(len(tied))]
	}

	h := haplotypes[best]
	r := rl.Reads[readIndex]
	cigar, md := rebase(r, h, refSeq, refBegin)

	return Tags{
		HaplotypeIndex:  best,
		TieCount:        len(tied),
		HaplotypeCigar:  append([]read.CigarOp(nil), h.Cigar()...),
		MD:              md,
		PhredLikelihood: -10 * bestLL,
		Cigar:           cigar,
	}
}

const negInf = -1e308

// rebase aligns r's sequence globally against h's sequence via the
// shared aligner and composes that read-vs-haplotype CIGAR with h's own
// CIGAR against the reference, producing the read's CIGAR in reference
// coordinates plus its MD string. r's existing CIGAR is not used.
func rebase(r *read.AlignedRead, h *haplotype.Haplotype, refSeq []byte, refBegin uint32) ([]read.CigarOp, string) {
	alignment := align.Align(h.Sequence(), r.Sequence, align.DefaultPenalties)
	composed := compose(h.Cigar(), alignment.Cigar)
	md := buildMD(refSeq, refBegin, composed, r.Sequence)
	return composed, md
}

// compose concatenates two CIGARs end to end against a shared reference
// frame (haplotype-vs-reference, then read-vs-haplotype), producing a
// single read-vs-reference CIGAR. Since both inputs are already
// expressed as M/I/D runs, composition reduces to: wherever the read
// matches the haplotype (M), substitute the haplotype's own operation at
// that offset; read insertions/deletions relative to the haplotype pass
// through unchanged.
func compose(hapCigar, readCigar []read.CigarOp) []read.CigarOp {
	hapOps := expand(hapCigar)
	var out []read.CigarOp
	hapPos := 0
	appendOp := func(op byte) {
		if len(out) > 0 && out[len(out)-1].Op == op {
			out[len(out)-1].Length++
			return
		}
		out = append(out, read.CigarOp{Length: 1, Op: op})
	}
	for _, op := range readCigar {
		for k := int32(0); k < op.Length; k++ {
			switch op.Op {
			case 'M':
				if hapPos < len(hapOps) {
					appendOp(hapOps[hapPos])
					hapPos++
				} else {
					appendOp('M')
				}
			case 'I':
				appendOp('I')
			case 'D':
				appendOp('D')
				hapPos++ // a deletion still consumes a haplotype base
			}
		}
	}
	return out
}

// expand flattens a CIGAR into one operation byte per consumed haplotype
// base (I ops contribute nothing, since they don't consume the
// haplotype/reference).
func expand(cigar []read.CigarOp) []byte {
	var out []byte
	for _, op := range cigar {
		if op.Op == 'I' {
			continue
		}
		for k := int32(0); k < op.Length; k++ {
			out = append(out, op.Op)
		}
	}
	return out
}

// buildMD renders the SAM MD string for composed against refSeq starting
// at refBegin, the way downstream tools expect to find mismatches
// without re-reading the reference.
func buildMD(refSeq []byte, refBegin uint32, composed []read.CigarOp, query []byte) string {
	md := ""
	matchRun := 0
	refPos := uint32(0)
	queryPos := 0
	flush := func() {
		if matchRun > 0 {
			md += itoa(matchRun)
			matchRun = 0
		}
	}
	for _, op := range composed {
		switch op.Op {
		case 'M':
			for k := int32(0); k < op.Length; k++ {
				rb := refSeq[refPos]
				qb := query[queryPos]
				if rb == qb {
					matchRun++
				} else {
					flush()
					md += string(rb)
				}
				refPos++
				queryPos++
			}
		case 'D':
			flush()
			md += "^"
			for k := int32(0); k < op.Length; k++ {
				md += string(refSeq[refPos])
				refPos++
			}
		case 'I':
			queryPos += int(op.Length)
		}
	}
	flush()
	return md
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
