package variant

import (
	"bytes"
	"testing"

	"github.com/exascience/variantcaller/region"
)

func TestNormalizeTrimsSharedFlanks(t *testing.T) {
	r := region.New("chr1", 10, 14)
	v := New(r, []byte("ACGT"), []byte("AGT"))
	n := Normalize(v)
	if !bytes.Equal(n.Ref.Sequence, []byte("AC")) || !bytes.Equal(n.Alt.Sequence, []byte("A")) {
		t.Fatalf("got ref=%s alt=%s", n.Ref.Sequence, n.Alt.Sequence)
	}
	if n.Ref.Region.Begin != 10 || n.Ref.Region.End != 12 {
		t.Fatalf("expected the left-anchored region [10,12), got %v", n.Ref.Region)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	r := region.New("chr1", 10, 14)
	v := New(r, []byte("ACGT"), []byte("AGT"))
	n1 := Normalize(v)
	n2 := Normalize(n1)
	if !n1.Equal(n2) {
		t.Fatalf("normalize not idempotent: %v != %v", n1, n2)
	}
}

func TestMatchAfterNormalization(t *testing.T) {
	r := region.New("chr1", 10, 14)
	a := New(r, []byte("ACGT"), []byte("AGT"))
	b := New(r, []byte("ACGT"), []byte("AGT"))
	if !Match(a, b) {
		t.Fatalf("expected match")
	}
}

func TestLessOrdersByPositionThenSequence(t *testing.T) {
	r1 := region.New("chr1", 10, 11)
	r2 := region.New("chr1", 20, 21)
	a := New(r1, []byte("A"), []byte("C"))
	b := New(r2, []byte("A"), []byte("C"))
	if !Less(a, b) {
		t.Fatalf("expected a < b")
	}
}
