package readpipeline

import (
	"testing"

	"github.com/exascience/variantcaller/read"
)

func mkRead(t *testing.T, mapq byte, flags uint16, seq string) *read.AlignedRead {
	t.Helper()
	qual := make([]byte, len(seq))
	for i := range qual {
		qual[i] = 30
	}
	cigar := []read.CigarOp{{Length: int32(len(seq)), Op: 'M'}}
	r, err := read.NewAlignedRead("r", "s", "chr1", 0, []byte(seq), qual, cigar, mapq, flags)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestBuildPredicatesFiltersLowMappingQuality(t *testing.T) {
	preds := BuildPredicates(Config{MinMappingQuality: 20})
	reads := []*read.AlignedRead{
		mkRead(t, 60, 0, "ACGT"),
		mkRead(t, 5, 0, "ACGT"),
	}
	out := Apply(preds, reads)
	if len(out) != 1 || out[0].MappingQual != 60 {
		t.Fatalf("expected only the well-mapped read to survive, got %d", len(out))
	}
}

func TestBuildPredicatesDropsDuplicatesAndQCFailsByDefault(t *testing.T) {
	preds := BuildPredicates(Config{})
	reads := []*read.AlignedRead{
		mkRead(t, 60, 0, "ACGT"),
		mkRead(t, 60, read.Duplicate, "ACGT"),
		mkRead(t, 60, read.QCFailed, "ACGT"),
		mkRead(t, 60, read.Secondary, "ACGT"),
		mkRead(t, 60, read.Supplementary, "ACGT"),
	}
	out := Apply(preds, reads)
	if len(out) != 1 {
		t.Fatalf("expected only the plain read to survive, got %d", len(out))
	}
}

func TestBuildPredicatesAllowFlagsKeepMarkedReads(t *testing.T) {
	preds := BuildPredicates(Config{
		AllowMarkedDuplicates: true,
		AllowQCFails:          true,
		AllowSecondary:        true,
		AllowSupplementary:    true,
	})
	reads := []*read.AlignedRead{
		mkRead(t, 60, read.Duplicate, "ACGT"),
		mkRead(t, 60, read.QCFailed, "ACGT"),
	}
	if out := Apply(preds, reads); len(out) != 2 {
		t.Fatalf("expected both marked reads to survive with allow flags, got %d", len(out))
	}
}

func TestBuildPredicatesGoodBaseThresholds(t *testing.T) {
	preds := BuildPredicates(Config{GoodBaseQuality: 40, MinGoodBases: 1})
	low := mkRead(t, 60, 0, "ACGT") // qualities are all 30, below GoodBaseQuality
	if out := Apply(preds, []*read.AlignedRead{low}); len(out) != 0 {
		t.Fatalf("expected the low-quality read to be dropped, got %d", len(out))
	}
}

func TestDownsampleIsDeterministicAndBounded(t *testing.T) {
	cfg := Config{DownsampleAbove: 4, DownsampleTarget: 3}
	var reads []*read.AlignedRead
	for i := 0; i < 10; i++ {
		reads = append(reads, mkRead(t, 60, 0, "ACGT"))
	}
	a := Downsample(cfg, reads, 7)
	b := Downsample(cfg, reads, 7)
	if len(a) != 3 {
		t.Fatalf("expected downsampling to the target of 3, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected the same seed to pick the same reads")
		}
	}
}

func TestDownsampleDisabledKeepsAllReads(t *testing.T) {
	cfg := Config{DisableDownsampling: true, DownsampleAbove: 1, DownsampleTarget: 1}
	reads := []*read.AlignedRead{mkRead(t, 60, 0, "ACGT"), mkRead(t, 60, 0, "ACGT")}
	if out := Downsample(cfg, reads, 1); len(out) != 2 {
		t.Fatalf("expected no downsampling when disabled, got %d", len(out))
	}
}

func TestRunAppliesTransformsBeforePredicates(t *testing.T) {
	cfg := Config{}
	drop := func(r *read.AlignedRead) bool { return r.MappingQual >= 10 }
	reads := []*read.AlignedRead{
		mkRead(t, 60, 0, "ACGT"),
		mkRead(t, 5, 0, "ACGT"),
	}
	out := Run(cfg, []Transformer{drop}, BuildPredicates(cfg), reads, 1)
	if len(out) != 1 {
		t.Fatalf("expected the rejecting transform to drop one read, got %d", len(out))
	}
}
