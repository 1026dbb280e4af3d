package caller

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/exascience/variantcaller/haplotype"
	"github.com/exascience/variantcaller/likelihood"
	"github.com/exascience/variantcaller/ploidy"
	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

func mkRead(t *testing.T, seq string, pos uint32) *read.AlignedRead {
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

func TestEnumerateGenotypesDiploidBiallelic(t *testing.T) {
	gs := EnumerateGenotypes(2, 2)
	if len(gs) != 3 { // {0,0}, {0,1}, {1,1}
		t.Fatalf("expected 3 diploid biallelic genotypes, got %d", len(gs))
	}
}

func TestIndividualPrefersHomAltForAllAltReads(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	refHap := haplotype.New(bounds, ref, nil)
	altHap := haplotype.New(bounds, ref, []variant.Allele{{Region: region.New("chr1", 4, 5), Sequence: []byte("T")}})
	haps := []*haplotype.Haplotype{refHap, altHap}

	var reads []*read.AlignedRead
	for i := 0; i < 10; i++ {
		reads = append(reads, mkRead(t, "AAAATAAAAA", 0))
	}

	pm := ploidy.New(2)
	ind := Individual{}
	latents, err := ind.Infer(haps, map[string][]*read.AlignedRead{"s1": reads}, likelihood.StandardErrorModel, pm)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	best := latents.Genotypes[bestGenotypeIndex(latents.GenotypePosteriors["s1"])]
	for _, hi := range best.HaplotypeIndices {
		if haps[hi] != altHap {
			t.Fatalf("expected only the alt haplotype in the winning genotype, got haplotype %d", hi)
		}
	}
	calls, err := ind.CallVariants(latents, ref, 0)
	if err != nil {
		t.Fatalf("CallVariants: %v", err)
	}
	if len(calls) == 0 {
		t.Fatalf("expected at least one called variant")
	}
}

func TestCancerAnnotatesSomaticWhenTumorSupportIsStrong(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	refHap := haplotype.New(bounds, ref, nil)
	altHap := haplotype.New(bounds, ref, []variant.Allele{{Region: region.New("chr1", 4, 5), Sequence: []byte("T")}})
	haps := []*haplotype.Haplotype{refHap, altHap}

	var normalReads, tumorReads []*read.AlignedRead
	for i := 0; i < 20; i++ {
		normalReads = append(normalReads, mkRead(t, "AAAAAAAAAA", 0))
	}
	for i := 0; i < 24; i++ {
		tumorReads = append(tumorReads, mkRead(t, "AAAATAAAAA", 0))
	}
	for i := 0; i < 6; i++ {
		tumorReads = append(tumorReads, mkRead(t, "AAAAAAAAAA", 0))
	}

	c := Cancer{Normal: "normal", Tumor: "tumor"}
	latents, err := c.Infer(haps, map[string][]*read.AlignedRead{"normal": normalReads, "tumor": tumorReads}, likelihood.StandardErrorModel, ploidy.New(2))
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(latents.Genotypes) < 2 {
		t.Fatalf("expected at least two genotype hypotheses, got %d", len(latents.Genotypes))
	}
	ann, ok := latents.Annotations["tumor"]
	if !ok || ann["SOMATIC"] != true {
		t.Fatalf("expected a SOMATIC annotation, got %+v", latents.Annotations)
	}

	calls, err := c.CallVariants(latents, ref, 0)
	if err != nil {
		t.Fatalf("CallVariants: %v", err)
	}
	if len(calls) == 0 {
		t.Fatalf("expected at least one called variant")
	}
	for _, call := range calls {
		if call.Quality > maxCallQuality {
			t.Fatalf("quality %v exceeds maxCallQuality %v", call.Quality, maxCallQuality)
		}
	}
}

func TestCancerQualityIsFiniteWithNoSomaticCandidate(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	refHap := haplotype.New(bounds, ref, nil)
	haps := []*haplotype.Haplotype{refHap}

	var reads []*read.AlignedRead
	for i := 0; i < 10; i++ {
		reads = append(reads, mkRead(t, "AAAAAAAAAA", 0))
	}

	c := Cancer{Normal: "normal", Tumor: "tumor"}
	latents, err := c.Infer(haps, map[string][]*read.AlignedRead{"normal": reads, "tumor": reads}, likelihood.StandardErrorModel, ploidy.New(2))
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(latents.Genotypes) != 1 {
		t.Fatalf("expected the degenerate single-hypothesis case, got %d genotypes", len(latents.Genotypes))
	}
	quality := phredFromLog10Error(log10ErrorOf(latents.GenotypePosteriors["tumor"], bestGenotypeIndex(latents.GenotypePosteriors["tumor"])))
	if quality > maxCallQuality {
		t.Fatalf("expected quality capped at %v, got %v", maxCallQuality, quality)
	}
}

func TestTrioAnnotatesDenovoForNonMendelianChildGenotype(t *testing.T) {
	bounds := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	refHap := haplotype.New(bounds, ref, nil)
	altHap := haplotype.New(bounds, ref, []variant.Allele{{Region: region.New("chr1", 4, 5), Sequence: []byte("T")}})
	haps := []*haplotype.Haplotype{refHap, altHap}

	var parentReads, childReads []*read.AlignedRead
	for i := 0; i < 20; i++ {
		parentReads = append(parentReads, mkRead(t, "AAAAAAAAAA", 0))
	}
	for i := 0; i < 20; i++ {
		childReads = append(childReads, mkRead(t, "AAAATAAAAA", 0))
	}

	trio := Trio{Child: "kid", Parent1: "mom", Parent2: "dad"}
	latents, err := trio.Infer(haps, map[string][]*read.AlignedRead{
		"mom": parentReads, "dad": parentReads, "kid": childReads,
	}, likelihood.StandardErrorModel, ploidy.New(2))
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	ann, ok := latents.Annotations["kid"]
	if !ok || ann["DENOVO"] != true {
		t.Fatalf("expected a DENOVO annotation for a child genotype absent from both homozygous-reference parents, got %+v", latents.Annotations)
	}
}

func TestSelectDefaultsToPopulationForMultipleSamples(t *testing.T) {
	c, err := Select(PedigreeHint{Samples: []string{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if c.Name() != "population" {
		t.Fatalf("expected population, got %s", c.Name())
	}
}

func TestSelectPicksCancerFromNormalSampleHint(t *testing.T) {
	c, err := Select(PedigreeHint{Samples: []string{"normal", "tumor"}, NormalSample: "normal"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if c.Name() != "cancer" {
		t.Fatalf("expected cancer, got %s", c.Name())
	}
}

func TestSelectPicksTrioFromParentHints(t *testing.T) {
	c, err := Select(PedigreeHint{
		Samples:        []string{"mom", "dad", "kid"},
		MaternalSample: "mom",
		PaternalSample: "dad",
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if c.Name() != "trio" {
		t.Fatalf("expected trio, got %s", c.Name())
	}
}

func TestSelectPicksTrioFromPedigreeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "family.fam")
	if err := os.WriteFile(path, []byte("FAM1 kid dad mom 1 2\nFAM1 dad 0 0 1 1\nFAM1 mom 0 0 2 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c, err := Select(PedigreeHint{
		Samples:      []string{"mom", "dad", "kid"},
		PedigreeFile: path,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	trio, ok := c.(Trio)
	if !ok {
		t.Fatalf("expected Trio, got %T", c)
	}
	if trio.Child != "kid" || trio.Parent1 != "mom" || trio.Parent2 != "dad" {
		t.Fatalf("got %+v", trio)
	}
}

func TestSelectRejectsUnknownExplicitMode(t *testing.T) {
	_, err := Select(PedigreeHint{ExplicitMode: "bogus"})
	if err == nil {
		t.Fatalf("expected an error for an unknown explicit mode")
	}
}
