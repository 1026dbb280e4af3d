package region

import "testing"

func TestOverlapsAndContains(t *testing.T) {
	a := New("chr1", 100, 200)
	b := New("chr1", 150, 300)
	if !a.Overlaps(b) {
		t.Fatalf("expected overlap")
	}
	if a.Contains(b) || b.Contains(a) {
		t.Fatalf("neither region contains the other")
	}
	c := New("chr2", 150, 300)
	if a.Overlaps(c) {
		t.Fatalf("regions on different contigs must never overlap")
	}
}

func TestEncompassingAndOverhangs(t *testing.T) {
	a := New("chr1", 100, 200)
	b := New("chr1", 150, 300)
	enc := a.Encompassing(b)
	if enc != New("chr1", 100, 300) {
		t.Fatalf("got %v", enc)
	}
	if left := a.LeftOverhang(b); left != New("chr1", 100, 150) {
		t.Fatalf("left overhang: got %v", left)
	}
	if right := b.RightOverhang(a); right != New("chr1", 200, 300) {
		t.Fatalf("right overhang: got %v", right)
	}
}

func TestInterveningAndShift(t *testing.T) {
	a := New("chr1", 100, 200)
	b := New("chr1", 250, 300)
	if gap := a.Intervening(b); gap != New("chr1", 200, 250) {
		t.Fatalf("got %v", gap)
	}
	if shifted := a.Shift(50); shifted != New("chr1", 150, 250) {
		t.Fatalf("got %v", shifted)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, oneBased := range []bool{true, false} {
		r := New("chr1", 99, 200)
		s := Format(r, oneBased)
		parsed, err := Parse(s, oneBased)
		if err != nil {
			t.Fatalf("parse error: %v", err)
		}
		if parsed != r {
			t.Fatalf("round trip mismatch: %v != %v (via %q)", parsed, r, s)
		}
	}
}

func TestDifferenceWithSkipRegions(t *testing.T) {
	// overlapping regions plus a skip region that splits one of them.
	search := []Region{New("chr1", 100, 200), New("chr1", 150, 300)}
	skip := []Region{New("chr1", 180, 220)}
	got := Difference(search, skip)
	want := []Region{New("chr1", 100, 180), New("chr1", 220, 300)}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSortByIndexUnmappedLast(t *testing.T) {
	regions := []Region{New("chrX", 0, 1), New("chr1", 0, 1), New("unk", 0, 1)}
	index := map[string]int32{"chr1": 0, "chrX": 1, "unk": -1}
	SortByIndex(regions, func(c string) int32 { return index[c] })
	if regions[0].Contig != "chr1" || regions[1].Contig != "chrX" || regions[2].Contig != "unk" {
		t.Fatalf("got %v", regions)
	}
}
