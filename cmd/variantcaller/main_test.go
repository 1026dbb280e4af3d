package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

func TestGroupByContigPreservesFirstSeenOrderAndGroupsWindows(t *testing.T) {
	windows := []region.Region{
		region.New("chr2", 0, 10),
		region.New("chr1", 0, 10),
		region.New("chr2", 10, 20),
	}
	groups := groupByContig(windows)
	if len(groups) != 2 {
		t.Fatalf("expected 2 contig groups, got %d", len(groups))
	}
	if groups[0].contig != "chr2" || groups[1].contig != "chr1" {
		t.Fatalf("expected first-seen contig order chr2, chr1, got %s, %s", groups[0].contig, groups[1].contig)
	}
	if len(groups[0].windows) != 2 {
		t.Fatalf("expected chr2 to have 2 windows, got %d", len(groups[0].windows))
	}
}

func TestExternalInWindowFiltersByOverlap(t *testing.T) {
	w := region.New("chr1", 100, 200)
	in := variant.New(region.New("chr1", 150, 151), []byte("A"), []byte("G"))
	outsideContig := variant.New(region.New("chr2", 150, 151), []byte("A"), []byte("G"))
	beforeWindow := variant.New(region.New("chr1", 10, 11), []byte("A"), []byte("G"))

	got := externalInWindow([]variant.Variant{in, outsideContig, beforeWindow}, w)
	if len(got) != 1 {
		t.Fatalf("expected 1 overlapping variant, got %d", len(got))
	}
	if got[0].Ref.Region.Begin != 150 {
		t.Fatalf("expected the in-window variant to survive filtering, got %+v", got[0])
	}
}

func TestExternalInWindowEmptyInputYieldsNil(t *testing.T) {
	if got := externalInWindow(nil, region.New("chr1", 0, 10)); got != nil {
		t.Fatalf("expected nil for no external variants, got %v", got)
	}
}

func TestEstimatedReadConcurrencyFloorsAtOne(t *testing.T) {
	if n := estimatedReadConcurrency(0); n != 1 {
		t.Fatalf("expected a floor of 1, got %d", n)
	}
	if n := estimatedReadConcurrency(bytesPerInFlightWindow * 4); n != 4 {
		t.Fatalf("expected 4 concurrent windows for a 4x budget, got %d", n)
	}
}

func TestCreateWorkingDirectoryNumbersOnCollision(t *testing.T) {
	base := t.TempDir()
	first, err := createWorkingDirectory(base, "run")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(first) != "run" {
		t.Fatalf("expected first directory named %q, got %q", "run", first)
	}
	second, err := createWorkingDirectory(base, "run")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(second) != "run-2" {
		t.Fatalf("expected second directory named %q, got %q", "run-2", second)
	}
	if _, err := os.Stat(first); err != nil {
		t.Fatalf("expected %s to exist: %v", first, err)
	}
	if _, err := os.Stat(second); err != nil {
		t.Fatalf("expected %s to exist: %v", second, err)
	}
}

func TestAppendUniqueSkipsDuplicates(t *testing.T) {
	samples := appendUnique(appendUnique(nil, "a"), "a")
	if len(samples) != 1 {
		t.Fatalf("expected appendUnique to dedupe, got %v", samples)
	}
	samples = appendUnique(samples, "b")
	if len(samples) != 2 || samples[1] != "b" {
		t.Fatalf("expected appendUnique to add a new name, got %v", samples)
	}
}

func TestSplitCommaListDropsEmptyFields(t *testing.T) {
	got := splitCommaList("chr1,,chr2,")
	if len(got) != 2 || got[0] != "chr1" || got[1] != "chr2" {
		t.Fatalf("expected [chr1 chr2], got %v", got)
	}
}
