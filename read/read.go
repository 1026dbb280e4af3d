// Package read defines the aligned-read record the engine consumes:
// region, sequence, qualities, CIGAR, mapping quality, flags, and an
// optional mate segment.
//
// Sequence and qualities are stored already decoded rather than as raw
// SAM text, since the candidate generator and likelihood model need
// per-base access on every hot-path call.
package read

import (
	"fmt"
	"sync"

	"github.com/exascience/variantcaller/region"
)

// Flag bits, identical in meaning and value to the SAM specification.
const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	MateUnmapped  = 0x8
	Reversed      = 0x10
	MateReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

// CigarOp is one CIGAR operation, e.g. 10M or 3D.
type CigarOp struct {
	Length int32
	Op     byte // one of M I D N S H P X =
}

func consumesReference(op byte) bool {
	switch op {
	case 'M', 'D', 'N', '=', 'X':
		return true
	default:
		return false
	}
}

func consumesQuery(op byte) bool {
	switch op {
	case 'M', 'I', 'S', '=', 'X':
		return true
	default:
		return false
	}
}

// ReferenceSpan returns the number of reference bases consumed by cigar,
// i.e. the length of the aligned region on the reference.
func ReferenceSpan(cigar []CigarOp) int32 {
	var n int32
	for _, op := range cigar {
		if consumesReference(op.Op) {
			n += op.Length
		}
	}
	return n
}

// QuerySpan returns the number of read bases consumed by cigar.
func QuerySpan(cigar []CigarOp) int32 {
	var n int32
	for _, op := range cigar {
		if consumesQuery(op.Op) {
			n += op.Length
		}
	}
	return n
}

// Validate checks the well-formedness invariants of a CIGAR: no
// zero-length ops, no adjacent identical ops, no leading/trailing D/N.
func Validate(cigar []CigarOp) error {
	if len(cigar) == 0 {
		return fmt.Errorf("read: empty cigar")
	}
	for i, op := range cigar {
		if op.Length <= 0 {
			return fmt.Errorf("read: zero-length cigar operation at index %d", i)
		}
		if i > 0 && cigar[i-1].Op == op.Op {
			return fmt.Errorf("read: adjacent identical cigar operations at index %d", i)
		}
	}
	if first := cigar[0].Op; first == 'D' || first == 'N' {
		return fmt.Errorf("read: leading %c operation in cigar", first)
	}
	if last := cigar[len(cigar)-1].Op; last == 'D' || last == 'N' {
		return fmt.Errorf("read: trailing %c operation in cigar", last)
	}
	return nil
}

var (
	cigarCacheMu sync.RWMutex
	cigarCache   = map[string][]CigarOp{"*": {}}
)

// ParseCigar parses a SAM-style cigar string ("10M2I5M"), caching
// results since cigar strings repeat heavily across reads sharing an
// alignment shape.
func ParseCigar(s string) ([]CigarOp, error) {
	cigarCacheMu.RLock()
	if v, ok := cigarCache[s]; ok {
		cigarCacheMu.RUnlock()
		return v, nil
	}
	cigarCacheMu.RUnlock()

	var ops []CigarOp
	i := 0
	for i < len(s) {
		j := i
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == i || j == len(s) {
			return nil, fmt.Errorf("read: invalid cigar string %q", s)
		}
		length := int32(0)
		for _, c := range s[i:j] {
			length = length*10 + int32(c-'0')
		}
		ops = append(ops, CigarOp{Length: length, Op: s[j]})
		i = j + 1
	}
	if err := Validate(ops); err != nil {
		return nil, err
	}

	cigarCacheMu.Lock()
	cigarCache[s] = ops
	cigarCacheMu.Unlock()
	return ops, nil
}

// Format renders cigar back into SAM string form.
func Format(cigar []CigarOp) string {
	buf := make([]byte, 0, len(cigar)*4)
	for _, op := range cigar {
		buf = appendInt32(buf, op.Length)
		buf = append(buf, op.Op)
	}
	return string(buf)
}

func appendInt32(buf []byte, v int32) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for v > 0 {
		buf = append(buf, byte('0'+v%10))
		v /= 10
	}
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

// Mate is the subset of a paired read's mate that the engine needs for
// template-aware realignment.
type Mate struct {
	Region region.Region
	Flags  uint16
}

// AlignedRead is one aligned sequencing read.
type AlignedRead struct {
	Name          string
	Sample        string // from the RG/SM tag; required
	Contig        string
	Pos           uint32 // 0-based leftmost mapped position
	Sequence      []byte
	Qualities     []byte // Phred, not offset-encoded
	Cigar         []CigarOp
	MappingQual   byte
	Flags         uint16
	Mate          *Mate
	Barcode       string // linked-read barcode, empty if none
}

// NewAlignedRead validates and constructs an AlignedRead.
func NewAlignedRead(name, sample, contig string, pos uint32, seq, qual []byte, cigar []CigarOp, mapq byte, flags uint16) (*AlignedRead, error) {
	if len(seq) != len(qual) {
		return nil, fmt.Errorf("read: len(sequence)=%d != len(qualities)=%d for read %s", len(seq), len(qual), name)
	}
	if err := Validate(cigar); err != nil {
		return nil, fmt.Errorf("read: invalid cigar for read %s: %w", name, err)
	}
	if QuerySpan(cigar) != int32(len(seq)) {
		return nil, fmt.Errorf("read: cigar query span %d != len(sequence) %d for read %s", QuerySpan(cigar), len(seq), name)
	}
	return &AlignedRead{
		Name: name, Sample: sample, Contig: contig, Pos: pos,
		Sequence: seq, Qualities: qual, Cigar: cigar, MappingQual: mapq, Flags: flags,
	}, nil
}

// Region returns the read's reference-coordinated span, implementing
// containers.Mappable.
func (r *AlignedRead) Region() region.Region {
	return region.New(r.Contig, r.Pos, r.Pos+uint32(ReferenceSpan(r.Cigar)))
}

func (r *AlignedRead) flagSome(mask uint16) bool  { return r.Flags&mask != 0 }
func (r *AlignedRead) flagEvery(mask uint16) bool  { return r.Flags&mask == mask }
func (r *AlignedRead) flagNotAny(mask uint16) bool { return r.Flags&mask == 0 }

func (r *AlignedRead) IsMultiple() bool      { return r.flagSome(Multiple) }
func (r *AlignedRead) IsProper() bool        { return r.flagSome(Proper) }
func (r *AlignedRead) IsUnmapped() bool      { return r.flagSome(Unmapped) }
func (r *AlignedRead) IsMateUnmapped() bool  { return r.flagSome(MateUnmapped) }
func (r *AlignedRead) IsReversed() bool      { return r.flagSome(Reversed) }
func (r *AlignedRead) IsMateReversed() bool  { return r.flagSome(MateReversed) }
func (r *AlignedRead) IsFirst() bool         { return r.flagSome(First) }
func (r *AlignedRead) IsLast() bool          { return r.flagSome(Last) }
func (r *AlignedRead) IsSecondary() bool     { return r.flagSome(Secondary) }
func (r *AlignedRead) IsQCFailed() bool      { return r.flagSome(QCFailed) }
func (r *AlignedRead) IsDuplicate() bool     { return r.flagSome(Duplicate) }
func (r *AlignedRead) IsSupplementary() bool { return r.flagSome(Supplementary) }

// GoodBaseFraction returns the fraction of bases with quality >= minQual,
// used by the read pipeline's --min-good-base-fraction filter.
func (r *AlignedRead) GoodBaseFraction(minQual byte) float64 {
	if len(r.Qualities) == 0 {
		return 0
	}
	var good int
	for _, q := range r.Qualities {
		if q >= minQual {
			good++
		}
	}
	return float64(good) / float64(len(r.Qualities))
}

// CoordinateLess orders reads by (contig index, pos); unmapped reads
// (contigIndex < 0) sort last.
func CoordinateLess(contigIndex func(string) int32) func(a, b *AlignedRead) bool {
	return func(a, b *AlignedRead) bool {
		ia, ib := contigIndex(a.Contig), contigIndex(b.Contig)
		if ia != ib {
			if ia < 0 {
				return false
			}
			if ib < 0 {
				return true
			}
			return ia < ib
		}
		return a.Pos < b.Pos
	}
}
