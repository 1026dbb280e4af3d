// Package region implements contig-qualified, zero-based half-open genomic
// intervals and the set algebra used throughout the caller to describe
// active windows, flanks, and skip regions.
//
// A Region carries its contig name so that intervals from different
// contigs are never silently compared as if they were on the same
// sequence.
package region

import (
	"fmt"
	"sort"
)

// Region is a zero-based, half-open interval [Begin, End) on Contig.
type Region struct {
	Contig     string
	Begin, End uint32
}

// New creates a Region, panicking if Begin > End. A malformed interval
// is a caller bug, not an I/O condition, so it is not reported as an
// error value.
func New(contig string, begin, end uint32) Region {
	if begin > end {
		panic(fmt.Sprintf("region: invalid region %s:%d-%d, begin > end", contig, begin, end))
	}
	return Region{Contig: contig, Begin: begin, End: end}
}

// Length returns End-Begin.
func (r Region) Length() uint32 { return r.End - r.Begin }

// IsEmpty reports whether the region spans zero bases.
func (r Region) IsEmpty() bool { return r.Begin == r.End }

// String renders the region as "contig:begin-end" using 0-based coordinates.
func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Contig, r.Begin, r.End)
}

// sameContig reports whether r and other are on the same contig; regions
// on different contigs never overlap/contain/encompass one another.
func (r Region) sameContig(other Region) bool { return r.Contig == other.Contig }

// Overlaps reports whether r and other share at least one base.
func (r Region) Overlaps(other Region) bool {
	return r.sameContig(other) && r.Begin < other.End && other.Begin < r.End
}

// Contains reports whether other lies entirely within r.
func (r Region) Contains(other Region) bool {
	return r.sameContig(other) && r.Begin <= other.Begin && other.End <= r.End
}

// ContainsPos reports whether pos lies within r.
func (r Region) ContainsPos(pos uint32) bool {
	return pos >= r.Begin && pos < r.End
}

// Encompassing returns the smallest region containing both r and other.
// Panics if they are on different contigs.
func (r Region) Encompassing(other Region) Region {
	if !r.sameContig(other) {
		panic("region: Encompassing across different contigs")
	}
	begin := r.Begin
	if other.Begin < begin {
		begin = other.Begin
	}
	end := r.End
	if other.End > end {
		end = other.End
	}
	return Region{r.Contig, begin, end}
}

// LeftOverhang returns the portion of r strictly left of other's Begin,
// or an empty region anchored at r.Begin if there is no such overhang.
func (r Region) LeftOverhang(other Region) Region {
	if !r.sameContig(other) || other.Begin <= r.Begin {
		return Region{r.Contig, r.Begin, r.Begin}
	}
	end := other.Begin
	if end > r.End {
		end = r.End
	}
	return Region{r.Contig, r.Begin, end}
}

// RightOverhang returns the portion of r strictly right of other's End,
// or an empty region anchored at r.End if there is no such overhang.
func (r Region) RightOverhang(other Region) Region {
	if !r.sameContig(other) || other.End >= r.End {
		return Region{r.Contig, r.End, r.End}
	}
	begin := other.End
	if begin < r.Begin {
		begin = r.Begin
	}
	return Region{r.Contig, begin, r.End}
}

// Intervening returns the gap between r and other when they are disjoint
// and r precedes other; returns an empty region at r.End when they
// overlap or other precedes r.
func (r Region) Intervening(other Region) Region {
	if !r.sameContig(other) || r.End >= other.Begin {
		return Region{r.Contig, r.End, r.End}
	}
	return Region{r.Contig, r.End, other.Begin}
}

// Shift translates r by offset (which may be negative); panics on
// underflow past zero.
func (r Region) Shift(offset int64) Region {
	begin := int64(r.Begin) + offset
	end := int64(r.End) + offset
	if begin < 0 || end < 0 {
		panic("region: Shift underflows past position zero")
	}
	return Region{r.Contig, uint32(begin), uint32(end)}
}

// Less orders regions by (contig, begin, end) given an externally supplied
// contig index (e.g. reference dictionary order); unknown contigs (index
// -1) sort last, the same ordering alignment files use for unmapped
// records.
func Less(a, b Region, contigIndex func(string) int32) bool {
	ia, ib := contigIndex(a.Contig), contigIndex(b.Contig)
	switch {
	case ia != ib:
		if ia < 0 {
			return false
		}
		if ib < 0 {
			return true
		}
		return ia < ib
	case a.Begin != b.Begin:
		return a.Begin < b.Begin
	default:
		return a.End < b.End
	}
}

// SortByIndex sorts regions in place using Less with the given contig
// index function.
func SortByIndex(regions []Region, contigIndex func(string) int32) {
	sort.SliceStable(regions, func(i, j int) bool {
		return Less(regions[i], regions[j], contigIndex)
	})
}

// Difference subtracts the skip regions from the search regions.
// Overlapping regions on either side are flattened first, so overlapping
// search regions never yield duplicate output spans.
func Difference(search, skip []Region) []Region {
	searchByContig := groupFlattened(search)
	skipByContig := groupFlattened(skip)

	var contigs []string
	seen := map[string]bool{}
	for _, s := range search {
		if !seen[s.Contig] {
			seen[s.Contig] = true
			contigs = append(contigs, s.Contig)
		}
	}

	var result []Region
	for _, contig := range contigs {
		for _, s := range searchByContig[contig] {
			remaining := []Region{s}
			for _, skipRegion := range skipByContig[contig] {
				var next []Region
				for _, cur := range remaining {
					next = append(next, subtractOne(cur, skipRegion)...)
				}
				remaining = next
			}
			for _, r := range remaining {
				if !r.IsEmpty() {
					result = append(result, r)
				}
			}
		}
	}
	return result
}

func groupFlattened(regions []Region) map[string][]Region {
	byContig := make(map[string][]Region)
	for _, r := range regions {
		byContig[r.Contig] = append(byContig[r.Contig], r)
	}
	for contig, ivals := range byContig {
		sort.Slice(ivals, func(i, j int) bool { return ivals[i].Begin < ivals[j].Begin })
		byContig[contig] = flatten(ivals)
	}
	return byContig
}

func subtractOne(r, cut Region) []Region {
	if !r.Overlaps(cut) {
		return []Region{r}
	}
	var out []Region
	if cut.Begin > r.Begin {
		out = append(out, Region{r.Contig, r.Begin, cut.Begin})
	}
	if cut.End < r.End {
		out = append(out, Region{r.Contig, cut.End, r.End})
	}
	return out
}

func flatten(sorted []Region) []Region {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Begin <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
		} else {
			out = append(out, r)
		}
	}
	return out
}

// Parse parses a "contig:begin-end" string into a Region. If oneBased is
// true, begin and end are interpreted as inclusive 1-based coordinates,
// otherwise as the region's native zero-based half-open coordinates.
func Parse(s string, oneBased bool) (Region, error) {
	var contig string
	var begin, end uint64
	colon := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			colon = i
			break
		}
	}
	if colon < 0 {
		return Region{}, fmt.Errorf("region: invalid region string %q, missing ':'", s)
	}
	contig = s[:colon]
	rest := s[colon+1:]
	dash := -1
	for i, c := range rest {
		if c == '-' {
			dash = i
			break
		}
	}
	if dash < 0 {
		return Region{}, fmt.Errorf("region: invalid region string %q, missing '-'", s)
	}
	if _, err := fmt.Sscanf(rest[:dash], "%d", &begin); err != nil {
		return Region{}, fmt.Errorf("region: invalid begin in %q: %v", s, err)
	}
	if _, err := fmt.Sscanf(rest[dash+1:], "%d", &end); err != nil {
		return Region{}, fmt.Errorf("region: invalid end in %q: %v", s, err)
	}
	if oneBased {
		if begin == 0 {
			return Region{}, fmt.Errorf("region: invalid 1-based begin 0 in %q", s)
		}
		begin--
	}
	if end < begin {
		return Region{}, fmt.Errorf("region: invalid region %q, end before begin", s)
	}
	return Region{Contig: contig, Begin: uint32(begin), End: uint32(end)}, nil
}

// Format renders r back into the same string form Parse accepts, i.e.
// Parse(Format(r, oneBased), oneBased) == r for all r.
func Format(r Region, oneBased bool) string {
	begin := uint64(r.Begin)
	if oneBased {
		begin++
	}
	return fmt.Sprintf("%s:%d-%d", r.Contig, begin, uint64(r.End))
}
