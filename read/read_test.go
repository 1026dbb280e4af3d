package read

import "testing"

func TestParseCigarRoundTrip(t *testing.T) {
	for _, s := range []string{"10M", "5M2I5M", "4S10M3D6M"} {
		ops, err := ParseCigar(s)
		if err != nil {
			t.Fatalf("ParseCigar(%q): %v", s, err)
		}
		if got := Format(ops); got != s {
			t.Fatalf("Format(ParseCigar(%q)) = %q", s, got)
		}
	}
}

func TestParseCigarRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "M", "10", "10M10M", "3D7M", "7M3D"} {
		if _, err := ParseCigar(s); err == nil {
			t.Fatalf("expected ParseCigar(%q) to fail", s)
		}
	}
}

func TestSpans(t *testing.T) {
	ops, err := ParseCigar("4S10M2I3D6M")
	if err != nil {
		t.Fatal(err)
	}
	if got := ReferenceSpan(ops); got != 19 {
		t.Fatalf("ReferenceSpan = %d, want 19", got)
	}
	if got := QuerySpan(ops); got != 22 {
		t.Fatalf("QuerySpan = %d, want 22", got)
	}
}

func TestNewAlignedReadEnforcesInvariants(t *testing.T) {
	cigar := []CigarOp{{Length: 4, Op: 'M'}}
	if _, err := NewAlignedRead("r", "s", "chr1", 0, []byte("ACGT"), []byte{30, 30, 30}, cigar, 60, 0); err == nil {
		t.Fatalf("expected a sequence/quality length mismatch error")
	}
	if _, err := NewAlignedRead("r", "s", "chr1", 0, []byte("ACGTA"), []byte{30, 30, 30, 30, 30}, cigar, 60, 0); err == nil {
		t.Fatalf("expected a cigar query-span mismatch error")
	}
	r, err := NewAlignedRead("r", "s", "chr1", 10, []byte("ACGT"), []byte{30, 30, 30, 30}, cigar, 60, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Region(); got.Begin != 10 || got.End != 14 {
		t.Fatalf("Region = %v, want chr1:10-14", got)
	}
}

func TestFlagAccessors(t *testing.T) {
	r := &AlignedRead{Flags: Duplicate | Reversed}
	if !r.IsDuplicate() || !r.IsReversed() {
		t.Fatalf("expected duplicate and reversed flags set")
	}
	if r.IsQCFailed() || r.IsSecondary() {
		t.Fatalf("expected other flags unset")
	}
}

func TestGoodBaseFraction(t *testing.T) {
	r := &AlignedRead{Qualities: []byte{10, 30, 30, 30}}
	if got := r.GoodBaseFraction(20); got != 0.75 {
		t.Fatalf("GoodBaseFraction = %v, want 0.75", got)
	}
}
