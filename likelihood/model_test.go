package likelihood

import (
	"math"
	"testing"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

func mkRead(seq string, qual byte) *read.AlignedRead {
	quals := make([]byte, len(seq))
	for i := range quals {
		quals[i] = qual
	}
	cigar := []read.CigarOp{{Length: int32(len(seq)), Op: 'M'}}
	r, err := read.NewAlignedRead("r1", "s1", "chr1", 0, []byte(seq), quals, cigar, 60, 0)
	if err != nil {
		panic(err)
	}
	return r
}

func TestComputePrefersMatchingHaplotype(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	refHap := haplotype.New(bounds, ref, nil)
	altHap := haplotype.New(bounds, ref, []variant.Allele{
		{Region: region.New("chr1", 4, 5), Sequence: []byte("T")},
	})

	matchingRead := mkRead("AAAATAAAAA", 30)
	rl := Compute(StandardErrorModel, []*haplotype.Haplotype{refHap, altHap}, []*read.AlignedRead{matchingRead})

	refL := rl.Of(refHap)[0]
	altL := rl.Of(altHap)[0]
	if !(altL > refL) {
		t.Fatalf("expected alt haplotype to explain the read better: ref=%v alt=%v", refL, altL)
	}
}

func TestComputeDropsPoorlyModeledReads(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	refHap := haplotype.New(bounds, ref, nil)

	garbage := mkRead("GCGCGCGCGC", 30)
	rl := Compute(StandardErrorModel, []*haplotype.Haplotype{refHap}, []*read.AlignedRead{garbage})
	if len(rl.Reads) != 0 {
		t.Fatalf("expected the mismatched read to be dropped, got %d remaining", len(rl.Reads))
	}
}

func BenchmarkComputePairHMM(b *testing.B) {
	bounds := region.New("chr1", 0, 100)
	ref := make([]byte, 100)
	for i := range ref {
		ref[i] = "ACGT"[i%4]
	}
	refHap := haplotype.New(bounds, ref, nil)
	altHap := haplotype.New(bounds, ref, []variant.Allele{
		{Region: region.New("chr1", 50, 51), Sequence: []byte("A")},
	})
	haps := []*haplotype.Haplotype{refHap, altHap}
	var reads []*read.AlignedRead
	for i := 0; i < 20; i++ {
		reads = append(reads, mkRead(string(ref[10:90]), 30))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Compute(StandardErrorModel, haps, reads)
	}
}

func TestMismappingCapBoundsWorstHaplotype(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	refHap := haplotype.New(bounds, ref, nil)
	altHap := haplotype.New(bounds, ref, []variant.Allele{
		{Region: region.New("chr1", 0, 10), Sequence: []byte("TTTTTTTTTT")},
	})
	// the read matches the non-reference haplotype, so the cap anchors on
	// a good likelihood and must pull the reference haplotype's value up
	// to within globalReadMismappingRate of it.
	r := mkRead("TTTTTTTTTT", 30)
	rl := Compute(StandardErrorModel, []*haplotype.Haplotype{refHap, altHap}, []*read.AlignedRead{r})
	best := math.Max(rl.Of(refHap)[0], rl.Of(altHap)[0])
	worst := math.Min(rl.Of(refHap)[0], rl.Of(altHap)[0])
	if best-worst > -globalReadMismappingRate+1e-6 {
		t.Fatalf("worst likelihood not capped: best=%v worst=%v", best, worst)
	}
}
