package candidates

import (
	"testing"

	"github.com/exascience/variantcaller/read"
	"github.com/exascience/variantcaller/region"
)

func mkRead(pos uint32, seq string, cigar []read.CigarOp) *read.AlignedRead {
	qual := make([]byte, len(seq))
	for i := range qual {
		qual[i] = 30
	}
	r, err := read.NewAlignedRead("r", "s", "chr1", pos, []byte(seq), qual, cigar, 60, 0)
	if err != nil {
		panic(err)
	}
	return r
}

func TestScanReadsDetectsSNV(t *testing.T) {
	window := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	m := []read.CigarOp{{Length: 10, Op: 'M'}}
	reads := []*read.AlignedRead{
		mkRead(0, "AAAATAAAAA", m),
		mkRead(0, "AAAATAAAAA", m),
		mkRead(0, "AAAATAAAAA", m),
	}
	supports := ScanReads(window, ref, reads)
	if len(supports) != 1 {
		t.Fatalf("expected 1 distinct variant, got %d", len(supports))
	}
	if supports[0].reads != 3 {
		t.Fatalf("expected 3 supporting reads, got %d", supports[0].reads)
	}
}

func TestGenerateAppliesThresholdAndSorts(t *testing.T) {
	window := region.New("chr1", 0, 10)
	ref := []byte("AAAAAAAAAA")
	m := []read.CigarOp{{Length: 10, Op: 'M'}}
	reads := []*read.AlignedRead{
		mkRead(0, "AAAATAAAAA", m),
		mkRead(0, "AAAATAAAAA", m),
		mkRead(0, "AAAAAAAAGA", m), // single-read-support, below threshold
	}
	cfg := DefaultConfig()
	cfg.MinSupportingReads = 2
	cfg.MinSupportFraction = 0
	out := Generate(cfg, window, ref, reads)
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate surviving threshold, got %d", len(out))
	}
}

func TestScanRepeatsFindsHomopolymer(t *testing.T) {
	window := region.New("chr1", 0, 10)
	ref := []byte("CAAAAAAAT")
	units := ScanRepeats(window, ref, 4)
	found := false
	for _, u := range units {
		if len(u.Unit) == 1 && u.Unit[0] == 'A' && u.Copies >= 5 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected to find an A homopolymer, got %v", units)
	}
}
