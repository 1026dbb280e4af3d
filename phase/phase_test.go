package phase

import (
	"testing"

	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
	"github.com/exascience/variantcaller/vcf"
)

func mkSpanningRead(t *testing.T, seq string, pos uint32) *read.AlignedRead {
	t.Helper()
	qual := make([]byte, len(seq))
	for i := range qual {
		qual[i] = 30
	}
	cigar := []read.CigarOp{{Length: int32(len(seq)), Op: 'M'}}
	r, err := read.NewAlignedRead("r", "s", "chr1", pos, []byte(seq), qual, cigar, 60, 0)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDecomposeSingleSite(t *testing.T) {
	v := variant.New(region.New("chr1", 5, 6), []byte("A"), []byte("G"))
	calls := []vcf.VariantCall{{Variant: v}}
	out := Decompose(DefaultConfig(), calls, nil)
	if len(out) != 1 || len(out[0].Sites) != 1 {
		t.Fatalf("expected a single phase set with one site, got %v", out)
	}
}

func TestDecomposeJoinsConsistentlyCoObservedSites(t *testing.T) {
	v1 := variant.New(region.New("chr1", 2, 3), []byte("A"), []byte("G"))
	v2 := variant.New(region.New("chr1", 7, 8), []byte("A"), []byte("G"))
	calls := []vcf.VariantCall{{Variant: v1}, {Variant: v2}}

	// every spanning read carries G at both sites
	seq := "AAGAAAAGAA"
	var reads []*read.AlignedRead
	for i := 0; i < 5; i++ {
		reads = append(reads, mkSpanningRead(t, seq, 0))
	}
	out := Decompose(DefaultConfig(), calls, reads)
	if len(out) != 1 || len(out[0].Sites) != 2 {
		t.Fatalf("expected both sites joined into one phase set, got %v", out)
	}
}

func TestDecomposeSplitsOnDisagreement(t *testing.T) {
	v1 := variant.New(region.New("chr1", 2, 3), []byte("A"), []byte("G"))
	v2 := variant.New(region.New("chr1", 7, 8), []byte("A"), []byte("G"))
	calls := []vcf.VariantCall{{Variant: v1}, {Variant: v2}}

	var reads []*read.AlignedRead
	for i := 0; i < 3; i++ {
		reads = append(reads, mkSpanningRead(t, "AAGAAAAGAA", 0)) // both alt
	}
	for i := 0; i < 3; i++ {
		reads = append(reads, mkSpanningRead(t, "AAGAAAAAAA", 0)) // only first alt
	}
	out := Decompose(DefaultConfig(), calls, reads)
	if len(out) != 2 {
		t.Fatalf("expected the disagreement to split phase sets, got %v", out)
	}
}
