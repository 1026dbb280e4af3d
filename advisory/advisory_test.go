package advisory

import (
	"sync"
	"testing"
)

func TestWarnFirstOccurrenceOnly(t *testing.T) {
	c := NewChannel()
	if !c.Warn(KindDenseRegion, "chr1:1-10", "first") {
		t.Fatalf("expected first warning to report true")
	}
	if c.Warn(KindDenseRegion, "chr1:20-30", "second") {
		t.Fatalf("expected second warning of the same kind to report false")
	}
	summary, counts := c.Summary()
	if len(summary) != 1 || summary[0].Message != "first" {
		t.Fatalf("expected summary to retain only the first occurrence, got %v", summary)
	}
	if counts[KindDenseRegion] != 2 {
		t.Fatalf("expected total count 2, got %d", counts[KindDenseRegion])
	}
}

func TestWarnConcurrentSafe(t *testing.T) {
	c := NewChannel()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Warn(KindHaplotypeOverflow, "chrX", "overflow")
		}()
	}
	wg.Wait()
	_, counts := c.Summary()
	if counts[KindHaplotypeOverflow] != 100 {
		t.Fatalf("expected 100 recorded occurrences, got %d", counts[KindHaplotypeOverflow])
	}
}
