package assembly

import (
	"testing"

	"github.com/exascience/variantcaller/region"
)

func TestAddSequenceAndHasCycleOnLinearGraph(t *testing.T) {
	g := NewGraph(4)
	g.AddSequence([]byte("ACGTTGCAAC"), true) // every 4-mer occurs once
	if g.HasCycle() {
		t.Fatalf("a linear reference sequence should not form a cycle")
	}
}

func TestHasCycleDetectsRepeatInducedCycle(t *testing.T) {
	g := NewGraph(3)
	// "ATCATCATC" revisits the same 3-mers, inducing a cycle at k=3.
	g.AddSequence([]byte("ATCATCATCATC"), true)
	if !g.HasCycle() {
		t.Fatalf("expected a cycle from a short tandem repeat at this k")
	}
}

func TestExtractBubblesFindsSNVFromReadPath(t *testing.T) {
	g := NewGraph(4)
	ref := []byte("AAAACCCCGGGGTTTT")
	read := []byte("AAAACCCAGGGGTTTT") // one substitution vs reference
	g.AddSequence(ref, true)
	g.AddSequence(read, false)
	variants := g.ExtractBubbles(region.New("chr1", 1000, 1016), DefaultConfig())
	if len(variants) == 0 {
		t.Fatalf("expected at least one variant from the divergent read path")
	}
}

func TestExtractBubblesDropsLowScoredBubble(t *testing.T) {
	g := NewGraph(4)
	ref := []byte("AAAACCCCGGGGTTTT")
	g.AddSequence(ref, true)
	// 9 reads agree with the reference, 1 diverges: the bubble's depth
	// share is 1/(1+0.5*10), below a 0.2 score floor.
	for i := 0; i < 9; i++ {
		g.AddSequence(ref, false)
	}
	g.AddSequence([]byte("AAAACCCAGGGGTTTT"), false)
	cfg := DefaultConfig()
	cfg.MinBubbleScore = 0.2
	if variants := g.ExtractBubbles(region.New("chr1", 0, 16), cfg); len(variants) != 0 {
		t.Fatalf("expected the low-scored bubble to be discarded, got %d variants", len(variants))
	}
}

func TestPruneRemovesRareReadKmersButKeepsReference(t *testing.T) {
	g := NewGraph(4)
	ref := []byte("AAAACCCCGGGGTTTT")
	g.AddSequence(ref, true)
	g.AddSequence([]byte("AAAACCCAGGGGTTTT"), false) // divergent k-mers seen once
	g.Prune(2)
	if g.hasNonRefVertices() {
		t.Fatalf("expected the single-observation read k-mers to be pruned")
	}
	if _, _, bubbles, _ := g.Bubbles(); len(bubbles) != 0 {
		t.Fatalf("expected no bubbles after pruning, got %d", len(bubbles))
	}
	refPath, _, _, _ := g.Bubbles()
	if refPath == nil {
		t.Fatalf("pruning must never break the reference path")
	}
}

func TestSubdivideCoversRegionWithOverlap(t *testing.T) {
	bins := subdivide(region.New("chr1", 0, 1000), 400, 50)
	if len(bins) < 3 {
		t.Fatalf("expected at least 3 bins over 1000 bases, got %d", len(bins))
	}
	if bins[0].Begin != 0 || bins[len(bins)-1].End != 1000 {
		t.Fatalf("bins must cover the whole region, got %v", bins)
	}
	for i := 1; i < len(bins); i++ {
		if bins[i].Begin >= bins[i-1].End {
			t.Fatalf("adjacent bins must overlap, got %v then %v", bins[i-1], bins[i])
		}
	}
}

func TestAssembleFallsBackOnCyclicGraph(t *testing.T) {
	// "ACG" repeats within the reference, so k=3 cycles and the cascade
	// must fall back to k=10; the substituted base sits mid-sequence with
	// a full k of matching flank on both sides, so the read path rejoins
	// the reference path at k=10.
	ref := []byte("ACGTACGATTACAGGCATCGATCCAGGTTA")
	reads := [][]byte{[]byte("ACGTACGATTACAGGTATCGATCCAGGTTA")}
	cfg := DefaultConfig()
	cfg.KmerSizes = []int{3, 10}
	cfg.MinKmerObservations = 1 // a single read carries the variant here
	variants := Assemble(region.New("chr1", 0, 30), ref, reads, cfg)
	if len(variants) == 0 {
		t.Fatalf("expected the cascade to eventually find an acyclic k and emit the substitution")
	}
}

func TestAssembleCapsVariantSize(t *testing.T) {
	ref := []byte("ACGTACGATTACAGGCATCGATCCAGGTTACTGAGTCCAT")
	// the read deletes ref[15:20], a size-4 deletion
	read := append(append([]byte(nil), ref[:15]...), ref[20:]...)
	cfg := DefaultConfig()
	cfg.KmerSizes = []int{10}
	cfg.MinKmerObservations = 1
	variants := Assemble(region.New("chr1", 0, 40), ref, [][]byte{read}, cfg)
	if len(variants) == 0 {
		t.Fatalf("expected the deletion under the default size cap")
	}
	cfg.MaxVariantSize = 3
	if variants := Assemble(region.New("chr1", 0, 40), ref, [][]byte{read}, cfg); len(variants) != 0 {
		t.Fatalf("expected the deletion to be discarded past max-variant-size, got %d", len(variants))
	}
}
