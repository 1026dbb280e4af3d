// Package readpipeline implements the per-sample transform → filter →
// downsample pipeline that feeds reads to the rest of the engine,
// streamed by region.
//
// Predicates are compiled from Config into per-read closures up front,
// so configuration is resolved once per sample rather than on every
// read.
package readpipeline

import (
	"golang.org/x/exp/rand"

	"github.com/exascience/variantcaller/read"
)

// Predicate decides whether a read survives filtering.
type Predicate func(*read.AlignedRead) bool

// Transformer mutates a read in place (e.g. hard-clipping adapters);
// returning false drops the read, so a transform that discovers a read
// is unusable can reject it without a second pass.
type Transformer func(*read.AlignedRead) bool

// Config bundles the read-filtering tunables.
type Config struct {
	MinMappingQuality     byte
	GoodBaseQuality       byte
	MinGoodBases          int
	MinGoodBaseFraction   float64
	MinReadLength         int
	MaxReadLength         int
	AllowMarkedDuplicates bool
	AllowQCFails          bool
	AllowSecondary        bool
	AllowSupplementary    bool
	NoUnmappedSegments    bool
	DisableDownsampling   bool
	DownsampleAbove       int
	DownsampleTarget      int
}

// BuildPredicates compiles Config into the ordered predicate list applied
// to every read before assembly/candidate generation.
func BuildPredicates(cfg Config) []Predicate {
	var preds []Predicate
	if cfg.MinMappingQuality > 0 {
		min := cfg.MinMappingQuality
		preds = append(preds, func(r *read.AlignedRead) bool { return r.MappingQual >= min })
	}
	if !cfg.AllowMarkedDuplicates {
		preds = append(preds, func(r *read.AlignedRead) bool { return !r.IsDuplicate() })
	}
	if !cfg.AllowQCFails {
		preds = append(preds, func(r *read.AlignedRead) bool { return !r.IsQCFailed() })
	}
	if !cfg.AllowSecondary {
		preds = append(preds, func(r *read.AlignedRead) bool { return !r.IsSecondary() })
	}
	if !cfg.AllowSupplementary {
		preds = append(preds, func(r *read.AlignedRead) bool { return !r.IsSupplementary() })
	}
	if cfg.NoUnmappedSegments {
		preds = append(preds, func(r *read.AlignedRead) bool { return !r.IsMateUnmapped() })
	}
	if cfg.MinReadLength > 0 {
		min := cfg.MinReadLength
		preds = append(preds, func(r *read.AlignedRead) bool { return len(r.Sequence) >= min })
	}
	if cfg.MaxReadLength > 0 {
		max := cfg.MaxReadLength
		preds = append(preds, func(r *read.AlignedRead) bool { return len(r.Sequence) <= max })
	}
	if cfg.MinGoodBases > 0 {
		minGood, goodQ := cfg.MinGoodBases, cfg.GoodBaseQuality
		preds = append(preds, func(r *read.AlignedRead) bool {
			var good int
			for _, q := range r.Qualities {
				if q >= goodQ {
					good++
				}
			}
			return good >= minGood
		})
	}
	if cfg.MinGoodBaseFraction > 0 {
		frac, goodQ := cfg.MinGoodBaseFraction, cfg.GoodBaseQuality
		preds = append(preds, func(r *read.AlignedRead) bool { return r.GoodBaseFraction(goodQ) >= frac })
	}
	return preds
}

// Apply runs every predicate against reads, returning the surviving
// subset in their original order.
func Apply(preds []Predicate, reads []*read.AlignedRead) []*read.AlignedRead {
	out := reads[:0:0]
next:
	for _, r := range reads {
		for _, p := range preds {
			if !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

// Downsample reduces pileups above cfg.DownsampleAbove down to
// cfg.DownsampleTarget reads, using a fixed-seed PRNG so repeated runs
// are deterministic.
func Downsample(cfg Config, reads []*read.AlignedRead, seed int64) []*read.AlignedRead {
	if cfg.DisableDownsampling || cfg.DownsampleAbove <= 0 || len(reads) <= cfg.DownsampleAbove {
		return reads
	}
	rng := rand.New(rand.NewSource(uint64(seed)))
	target := cfg.DownsampleTarget
	if target <= 0 || target > len(reads) {
		target = len(reads)
	}
	perm := rng.Perm(len(reads))[:target]
	// keep original order among the kept reads
	keep := make(map[int]bool, target)
	for _, idx := range perm {
		keep[idx] = true
	}
	out := make([]*read.AlignedRead, 0, target)
	for i, r := range reads {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out
}

// Run applies transformers, then predicates, then downsampling, to the
// reads of a single sample restricted to one active window. This is the
// per-sample, per-region unit the call pipeline invokes before candidate
// generation.
func Run(cfg Config, transforms []Transformer, preds []Predicate, reads []*read.AlignedRead, downsampleSeed int64) []*read.AlignedRead {
	transformed := reads[:0:0]
	for _, r := range reads {
		keep := true
		for _, t := range transforms {
			if !t(r) {
				keep = false
				break
			}
		}
		if keep {
			transformed = append(transformed, r)
		}
	}
	filtered := Apply(preds, transformed)
	return Downsample(cfg, filtered, downsampleSeed)
}
