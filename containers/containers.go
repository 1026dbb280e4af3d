// Package containers implements ordered collections of region-tagged
// values supporting overlap and containment range queries.
//
// A Set holds "Mappable" values, anything with a Region, kept sorted
// by region start so that an overlap query can binary-search its right
// bound; the elements before that bound are still filtered linearly.
package containers

import (
	"sort"

	"github.com/exascience/variantcaller/region"
)

// Mappable is implemented by any value that occupies a genomic region.
type Mappable interface {
	Region() region.Region
}

// Set is an ordered, region-indexed collection of Mappable values, all on
// the same contig. The zero value is an empty Set.
type Set struct {
	items []Mappable
	dirty bool
}

// Add appends v to the set; the set is marked dirty and re-sorted lazily
// on the next query, so a burst of Adds pays for one sort.
func (s *Set) Add(v Mappable) {
	s.items = append(s.items, v)
	s.dirty = true
}

// Len returns the number of elements.
func (s *Set) Len() int { return len(s.items) }

// All returns the elements in region-sorted order.
func (s *Set) All() []Mappable {
	s.ensureSorted()
	return s.items
}

func (s *Set) ensureSorted() {
	if !s.dirty {
		return
	}
	sort.SliceStable(s.items, func(i, j int) bool {
		ri, rj := s.items[i].Region(), s.items[j].Region()
		if ri.Begin != rj.Begin {
			return ri.Begin < rj.Begin
		}
		return ri.End < rj.End
	})
	s.dirty = false
}

// Overlapping returns every element whose region overlaps r, in
// region-sorted order.
//
// Items are sorted by (Begin, End), so Begin alone gives a valid upper
// bound via binary search: no item at or past index hi can start before
// r.End. End is not monotonic in that ordering, though (a short interval
// can start right after a long one that hasn't ended yet), so there is
// no equivalent binary search for a lower bound, items[:hi] is scanned
// linearly and filtered by Overlaps.
func (s *Set) Overlapping(r region.Region) []Mappable {
	s.ensureSorted()
	items := s.items
	hi := sort.Search(len(items), func(i int) bool {
		return items[i].Region().Begin >= r.End
	})
	if hi == 0 {
		return nil
	}
	out := items[:hi:hi]
	filtered := out[:0:0]
	for _, it := range out {
		if it.Region().Overlaps(r) {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

// Contained returns every element entirely contained within r.
func (s *Set) Contained(r region.Region) []Mappable {
	s.ensureSorted()
	var out []Mappable
	for _, it := range s.Overlapping(r) {
		if r.Contains(it.Region()) {
			out = append(out, it)
		}
	}
	return out
}

// Encompassing returns the smallest region encompassing every element in
// the set, or the zero Region if the set is empty.
func (s *Set) Encompassing() region.Region {
	s.ensureSorted()
	if len(s.items) == 0 {
		return region.Region{}
	}
	enc := s.items[0].Region()
	for _, it := range s.items[1:] {
		enc = enc.Encompassing(it.Region())
	}
	return enc
}
