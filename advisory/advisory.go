// Package advisory implements the typed, rate-limited warning channel
// used for recoverable conditions worth surfacing once but not worth
// aborting over.
//
// One shared Channel keyed by Kind replaces a bespoke package-level
// "warned" boolean per warning site, so new warning sites don't each
// need their own global.
package advisory

import "sync"

// Kind identifies a distinct class of recoverable warning.
type Kind string

const (
	KindSmallReferenceCache    Kind = "small-reference-cache"
	KindHaplotypeOverflow      Kind = "haplotype-overflow"
	KindDenseRegion            Kind = "dense-region"
	KindPoorlyModeledReads     Kind = "poorly-modeled-reads"
	KindAmbiguousPedigreeRole  Kind = "ambiguous-pedigree-role"
	KindContigOutputOrderGuess Kind = "contig-output-order-guessed"
)

// Advisory is one recorded warning.
type Advisory struct {
	Kind    Kind
	Region  string // free-form location hint, e.g. a region.Region.String()
	Message string
}

// Channel collects advisories from any number of goroutines, reporting
// each distinct Kind at most once,
// while still counting every occurrence for a final summary.
type Channel struct {
	mu       sync.Mutex
	seen     map[Kind]*Advisory
	order    []Kind
	counts   map[Kind]int
}

// NewChannel returns an empty advisory channel.
func NewChannel() *Channel {
	return &Channel{seen: make(map[Kind]*Advisory), counts: make(map[Kind]int)}
}

// Warn records an advisory, returning true if this is the first
// occurrence of its Kind (the caller can use this to decide whether to
// also log immediately).
func (c *Channel) Warn(kind Kind, region, message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[kind]++
	if _, ok := c.seen[kind]; ok {
		return false
	}
	a := &Advisory{Kind: kind, Region: region, Message: message}
	c.seen[kind] = a
	c.order = append(c.order, kind)
	return true
}

// Summary returns the first-seen Advisory per Kind, in first-seen order,
// alongside how many times each Kind was raised in total.
func (c *Channel) Summary() ([]Advisory, map[Kind]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Advisory, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, *c.seen[k])
	}
	counts := make(map[Kind]int, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}
	return out, counts
}
