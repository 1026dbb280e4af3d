package realign

import (
	"testing"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
)

func mkRead(t *testing.T, seq string) *read.AlignedRead {
	t.Helper()
	qual := make([]byte, len(seq))
	for i := range qual {
		qual[i] = 30
	}
	cigar := []read.CigarOp{{Length: int32(len(seq)), Op: 'M'}}
	r, err := read.NewAlignedRead("r", "s", "chr1", 0, []byte(seq), qual, cigar, 60, 0)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestAssignPicksBestMatchingHaplotype(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	refHap := haplotype.New(bounds, ref, nil)
	r := mkRead(t, "AAAAAAAAAA")
	rl := likelihood.Compute(likelihood.StandardErrorModel, []*haplotype.Haplotype{refHap}, []*read.AlignedRead{r})
	if len(rl.Reads) != 1 {
		t.Fatalf("expected the read to survive likelihood computation")
	}
	tags := Assign(AssignmentConfig{Seed: 1}, 0, []*haplotype.Haplotype{refHap}, rl, ref, 0)
	if tags.HaplotypeIndex != 0 {
		t.Fatalf("expected haplotype 0, got %d", tags.HaplotypeIndex)
	}
	if tags.MD == "" {
		t.Fatalf("expected a non-empty MD string for a perfectly matching read")
	}
}

func TestAssignDeterministicAcrossRuns(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	h1 := haplotype.New(bounds, ref, nil)
	h2 := haplotype.New(bounds, ref, nil) // identical sequence, distinct haplotype object: forces a tie
	r := mkRead(t, "AAAAAAAAAA")
	rl := likelihood.Compute(likelihood.StandardErrorModel, []*haplotype.Haplotype{h1, h2}, []*read.AlignedRead{r})

	a := Assign(AssignmentConfig{Seed: 42}, 0, []*haplotype.Haplotype{h1, h2}, rl, ref, 0)
	b := Assign(AssignmentConfig{Seed: 42}, 0, []*haplotype.Haplotype{h1, h2}, rl, ref, 0)
	if a.HaplotypeIndex != b.HaplotypeIndex {
		t.Fatalf("expected the same seed to break ties identically: %d vs %d", a.HaplotypeIndex, b.HaplotypeIndex)
	}
}
