package align

import (
	"testing"

	"github.com/exascience/variantcaller/read"
)

func cigarString(ops []read.CigarOp) string {
	s := ""
	for _, op := range ops {
		s += read.Format([]read.CigarOp{op})
	}
	return s
}

func TestAlignIdenticalSequences(t *testing.T) {
	res := Align([]byte("ACGTACGT"), []byte("ACGTACGT"), DefaultPenalties)
	if len(res.Cigar) != 1 || res.Cigar[0].Op != 'M' || res.Cigar[0].Length != 8 {
		t.Fatalf("got %v", res.Cigar)
	}
}

func TestAlignSingleInsertion(t *testing.T) {
	res := Align([]byte("ACGTACGT"), []byte("ACGTTACGT"), DefaultPenalties)
	var ins int32
	for _, op := range res.Cigar {
		if op.Op == 'I' {
			ins += op.Length
		}
	}
	if ins != 1 {
		t.Fatalf("expected a single inserted base, got cigar %v", res.Cigar)
	}
}

func TestAlignSingleDeletion(t *testing.T) {
	res := Align([]byte("ACGTTACGT"), []byte("ACGTACGT"), DefaultPenalties)
	var del int32
	for _, op := range res.Cigar {
		if op.Op == 'D' {
			del += op.Length
		}
	}
	if del != 1 {
		t.Fatalf("expected a single deleted base, got cigar %v", res.Cigar)
	}
}

func TestAlignLeftAlignsHomopolymerIndel(t *testing.T) {
	// deleting one A from a run of As should be reportable at the
	// left-most equivalent position regardless of which A the DP
	// backtrack happened to pick.
	res := Align([]byte("GAAAAC"), []byte("GAAAC"), DefaultPenalties)
	if got := cigarString(res.Cigar); got != "1M1D4M" {
		t.Fatalf("expected the deletion at the left-most A (1M1D4M), got cigar %s", got)
	}
}
