package haplotype

import (
	"testing"

	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

func TestWindowExtension(t *testing.T) {
	g := NewGenerator(Config{Extension: ExtendConservative, MinFlankPad: 5})
	active := region.New("chr1", 100, 110)
	w := g.Window(active)
	if w.Begin != 90 || w.End != 120 {
		t.Fatalf("got %v", w)
	}
}

func TestWindowMinFlankPadOverridesSmallExtension(t *testing.T) {
	g := NewGenerator(Config{Extension: ExtendConservative, MinFlankPad: 50})
	active := region.New("chr1", 100, 110)
	w := g.Window(active)
	if w.Begin != 50 || w.End != 160 {
		t.Fatalf("got %v", w)
	}
}

func TestBuildAlwaysIncludesReference(t *testing.T) {
	cfg := DefaultConfig()
	g := NewGenerator(cfg)
	window := region.New("chr1", 0, 10)
	ref := []byte("ACGTACGTAC")
	haps := g.Build(window, ref, nil)
	if len(haps) != 1 || !haps[0].IsReference {
		t.Fatalf("expected exactly the reference haplotype, got %d", len(haps))
	}
}

func TestBuildCombinesNonOverlappingCandidates(t *testing.T) {
	cfg := DefaultConfig()
	g := NewGenerator(cfg)
	window := region.New("chr1", 0, 10)
	ref := []byte("ACGTACGTAC")
	v1 := variant.New(region.New("chr1", 2, 3), []byte("G"), []byte("C"))
	v2 := variant.New(region.New("chr1", 6, 7), []byte("G"), []byte("A"))
	haps := g.Build(window, ref, []variant.Variant{v1, v2})
	// reference + {v1} + {v2} + {v1,v2} = 4 distinct haplotypes
	if len(haps) != 4 {
		t.Fatalf("expected 4 haplotypes, got %d", len(haps))
	}
}

func TestHoldoutIsDeterministic(t *testing.T) {
	g := NewGenerator(Config{OverflowLimit: 4})
	var candidates []variant.Variant
	for i := 0; i < 30; i++ {
		pos := uint32(i * 2)
		candidates = append(candidates, variant.New(region.New("chr1", pos, pos+1), []byte("A"), []byte("C")))
	}
	a, da := g.holdout(append([]variant.Variant(nil), candidates...), g.cfg.OverflowLimit)
	b, db := g.holdout(append([]variant.Variant(nil), candidates...), g.cfg.OverflowLimit)
	if len(a) != len(b) || len(da) != len(db) {
		t.Fatalf("holdout not deterministic in length")
	}
	for i := range a {
		if !variant.Match(a[i], b[i]) {
			t.Fatalf("holdout not deterministic at %d", i)
		}
	}
}

func TestBuildSkipsHoldoutUnderTargetLimit(t *testing.T) {
	g := NewGenerator(Config{TargetLimit: 1000, OverflowLimit: 1000, MaxHoldoutDepth: 2})
	window := region.New("chr1", 0, 10)
	ref := []byte("ACGTACGTAC")
	v1 := variant.New(region.New("chr1", 2, 3), []byte("G"), []byte("C"))
	v2 := variant.New(region.New("chr1", 6, 7), []byte("G"), []byte("A"))
	haps := g.Build(window, ref, []variant.Variant{v1, v2})
	// well under TargetLimit: holdout must not have dropped either candidate.
	if len(haps) != 4 {
		t.Fatalf("expected 4 haplotypes with no holdout engaged, got %d", len(haps))
	}
}

func TestBuildBailsOutWhenOverflowLimitUnreachable(t *testing.T) {
	g := NewGenerator(Config{TargetLimit: 2, OverflowLimit: 2, MaxHoldoutDepth: 0})
	window := region.New("chr1", 0, 100)
	ref := make([]byte, 100)
	for i := range ref {
		ref[i] = 'A'
	}
	var candidates []variant.Variant
	for i := 0; i < 20; i++ {
		pos := uint32(i * 4)
		candidates = append(candidates, variant.New(region.New("chr1", pos, pos+1), []byte("A"), []byte("C")))
	}
	haps := g.Build(window, ref, candidates)
	if haps != nil {
		t.Fatalf("expected Build to bail out with nil haplotypes, got %d", len(haps))
	}
}

func TestReintroduceRespectsTargetLimitAndDepth(t *testing.T) {
	g := NewGenerator(Config{MaxHoldoutDepth: 1})
	kept := []variant.Variant{
		variant.New(region.New("chr1", 0, 1), []byte("A"), []byte("C")),
	}
	held := []variant.Variant{
		variant.New(region.New("chr1", 10, 11), []byte("A"), []byte("C")),
		variant.New(region.New("chr1", 20, 21), []byte("A"), []byte("C")),
	}
	out := g.reintroduce(kept, held, 3)
	if len(out) != 2 {
		t.Fatalf("expected exactly one reintroduction (depth=1), got %d kept", len(out))
	}
}

func TestBuildLowersTargetLimitInDenseRegion(t *testing.T) {
	g := NewGenerator(Config{TargetLimit: 8, OverflowLimit: 1000, MaxHoldoutDepth: 0, DenseRegionMAD: 3.0})
	window := region.New("chr1", 0, 100)
	ref := make([]byte, 100)
	for i := range ref {
		ref[i] = 'A'
	}
	var candidates []variant.Variant
	for i := 0; i < 6; i++ {
		pos := uint32(i * 4)
		candidates = append(candidates, variant.New(region.New("chr1", pos, pos+1), []byte("A"), []byte("C")))
	}
	background := []float64{1, 1, 1, 1}
	haps := g.Build(window, ref, candidates, background...)
	// 6 candidates against a background of 1 is dense, halving TargetLimit
	// to 4: combinations(6)=63 > 4, so holdout must have engaged and
	// trimmed the haplotype set below the full power set (63 combinations
	// plus the reference haplotype: 64 haplotypes).
	if len(haps) >= 64 {
		t.Fatalf("expected dense-region holdout to shrink the haplotype set, got %d", len(haps))
	}
}

func TestIsDenseRegion(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	background := []float64{2, 3, 2, 3, 2, 3, 2}
	if g.IsDenseRegion(3, background) {
		t.Fatalf("3 should not be dense against this background")
	}
	if !g.IsDenseRegion(50, background) {
		t.Fatalf("50 should be dense against this background")
	}
}
