package ploidy

import "testing"

func TestLayeredLookupPrecedence(t *testing.T) {
	m := New(2)
	m.SetContig("chrY", 1)
	m.SetSampleContig("sampleA", "chrY", 0)

	if p := m.Ploidy("sampleA", "chrY"); p != 0 {
		t.Fatalf("sample+contig override: got %d, want 0", p)
	}
	if p := m.Ploidy("sampleB", "chrY"); p != 1 {
		t.Fatalf("contig-level default: got %d, want 1", p)
	}
	if p := m.Ploidy("sampleB", "chr1"); p != 2 {
		t.Fatalf("overall default: got %d, want 2", p)
	}
}

func TestValidatePassesForLayeredOverrides(t *testing.T) {
	m := New(2)
	m.SetContig("chrX", 2)
	m.SetSampleContig("maleSample", "chrX", 1)
	if err := m.Validate(); err != nil {
		t.Fatalf("a sample-level override disagreeing with its contig default is not ambiguous: %v", err)
	}
}

func TestValidateCatchesConflictingContigAssignment(t *testing.T) {
	m := New(2)
	m.SetContig("chrM", 1)
	m.SetContig("chrM", 2)
	if err := m.Validate(); err == nil {
		t.Fatalf("expected error for two disagreeing chrM assignments")
	}
}

func TestValidateCatchesConflictingSampleContigAssignment(t *testing.T) {
	m := New(2)
	m.SetSampleContig("sampleA", "chrY", 1)
	m.SetSampleContig("sampleA", "chrY", 0)
	if err := m.Validate(); err == nil {
		t.Fatalf("expected error for two disagreeing (sampleA, chrY) assignments")
	}
}

func TestValidateIgnoresRepeatedAgreeingAssignment(t *testing.T) {
	m := New(2)
	m.SetContig("chrM", 1)
	m.SetContig("chrM", 1)
	if err := m.Validate(); err != nil {
		t.Fatalf("repeating the same value for the same key is not a conflict: %v", err)
	}
}
