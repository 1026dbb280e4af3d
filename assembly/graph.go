// Package assembly implements the local reassembler: a colored de Bruijn
// graph built from the reference plus sample reads, a multi-k fallback
// cascade when a given k produces a graph with cycles, and bubble
// extraction that turns non-reference paths back into Variants via the
// global aligner.
//
// Read k-mers are added as graph edges and the reference is collapsed
// as one colored path through the same graph; vertices and edges are
// keyed by interned integer ids so threading a read is map lookups, not
// string comparisons.
package assembly

import (
	"sort"

	"github.com/exascience/variantcaller/align"
	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

// vertex is one distinct k-mer observed in the reference or a read.
// count tracks how many times the k-mer was observed across all added
// sequences, for Prune to threshold against.
type vertex struct {
	id    int32
	kmer  string
	isRef bool
	count int32
}

// edge connects two (k-1)-overlapping k-mers; multiplicity counts how
// many source sequences traversed it, isRef marks edges that lie on the
// reference path.
type edge struct {
	to           int32
	multiplicity int32
	isRef        bool
}

// Graph is a colored de Bruijn graph over a fixed k-mer size.
type Graph struct {
	k        int
	nextID   int32
	index    map[string]int32
	vertices map[int32]*vertex
	out      map[int32][]*edge
}

// NewGraph returns an empty graph with k-mer size k.
func NewGraph(k int) *Graph {
	return &Graph{
		k:        k,
		index:    make(map[string]int32),
		vertices: make(map[int32]*vertex),
		out:      make(map[int32][]*edge),
	}
}

func (g *Graph) vertexFor(kmer string, isRef bool) *vertex {
	if id, ok := g.index[kmer]; ok {
		v := g.vertices[id]
		if isRef {
			v.isRef = true
		}
		v.count++
		return v
	}
	g.nextID++
	v := &vertex{id: g.nextID, kmer: kmer, isRef: isRef, count: 1}
	g.index[kmer] = v.id
	g.vertices[v.id] = v
	return v
}

// Prune removes non-reference vertices observed fewer than
// minObservations times, together with every edge touching them, so
// sequencing-error k-mers don't spawn spurious bubbles. Reference
// vertices are never pruned: the reference path must stay intact for
// bubble extraction.
func (g *Graph) Prune(minObservations int32) {
	if minObservations <= 1 {
		return
	}
	for id, v := range g.vertices {
		if v.isRef || v.count >= minObservations {
			continue
		}
		delete(g.vertices, id)
		delete(g.index, v.kmer)
		delete(g.out, id)
	}
	for id, edges := range g.out {
		kept := edges[:0]
		for _, e := range edges {
			if _, ok := g.vertices[e.to]; ok {
				kept = append(kept, e)
			}
		}
		g.out[id] = kept
	}
}

// hasNonRefVertices reports whether any read-only k-mers survive in the
// graph, i.e. whether there is divergent sequence that bubble
// enumeration ought to be able to close.
func (g *Graph) hasNonRefVertices() bool {
	for _, v := range g.vertices {
		if !v.isRef {
			return true
		}
	}
	return false
}

func (g *Graph) addEdge(from, to *vertex, isRef bool) {
	for _, e := range g.out[from.id] {
		if e.to == to.id {
			e.multiplicity++
			if isRef {
				e.isRef = true
			}
			return
		}
	}
	g.out[from.id] = append(g.out[from.id], &edge{to: to.id, multiplicity: 1, isRef: isRef})
}

// AddSequence threads seq through the graph as a chain of overlapping
// k-mers, marking the chain as reference if isRef.
func (g *Graph) AddSequence(seq []byte, isRef bool) {
	if len(seq) < g.k+1 {
		return
	}
	prev := g.vertexFor(string(seq[0:g.k]), isRef)
	for i := 1; i+g.k <= len(seq); i++ {
		cur := g.vertexFor(string(seq[i:i+g.k]), isRef)
		g.addEdge(prev, cur, isRef)
		prev = cur
	}
}

// HasCycle reports whether the graph contains a cycle reachable from any
// vertex, the trigger for the multi-k fallback cascade. Standard
// three-color DFS.
func (g *Graph) HasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int32]int8, len(g.vertices))
	var visit func(id int32) bool
	visit = func(id int32) bool {
		color[id] = gray
		for _, e := range g.out[id] {
			switch color[e.to] {
			case gray:
				return true
			case white:
				if visit(e.to) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for id := range g.vertices {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// Path is a sequence of vertex ids from a source to a sink.
type Path []int32

// sequence reconstructs the concrete bases a path spells out: the first
// vertex's full k-mer, then one trailing base per subsequent vertex.
func (g *Graph) sequence(p Path) []byte {
	if len(p) == 0 {
		return nil
	}
	out := append([]byte(nil), g.vertices[p[0]].kmer...)
	for i := 1; i < len(p); i++ {
		kmer := g.vertices[p[i]].kmer
		out = append(out, kmer[len(kmer)-1])
	}
	return out
}

// Bubble is a non-reference path through the graph that diverges from
// and later rejoins the reference path.
type Bubble struct {
	Path    Path
	Support int32 // minimum edge multiplicity along the path
}

// sourceAndSink returns the first and last reference vertex ids, in
// insertion order, which bound every traversal.
func (g *Graph) sourceAndSink() (source, sink int32, ok bool) {
	var refIDs []int32
	for id, v := range g.vertices {
		if v.isRef {
			refIDs = append(refIDs, id)
		}
	}
	if len(refIDs) == 0 {
		return 0, 0, false
	}
	sort.Slice(refIDs, func(i, j int) bool { return refIDs[i] < refIDs[j] })
	return refIDs[0], refIDs[len(refIDs)-1], true
}

// maxPaths bounds how many distinct source-to-sink paths a single
// traversal will enumerate, guarding against combinatorial blowup in
// highly repetitive or poorly-assembled regions.
const maxPaths = 128

const maxMultiplicity = 1<<31 - 1

// Bubbles enumerates every distinct source-to-sink path through the
// graph up to maxPaths: the reference path (with its minimum edge
// multiplicity) plus one Bubble per non-reference path. truncated
// reports that enumeration hit the maxPaths bound, i.e. the bubble
// budget was blown before the traversal finished.
func (g *Graph) Bubbles() (refPath Path, refSupport int32, bubbles []Bubble, truncated bool) {
	source, sink, ok := g.sourceAndSink()
	if !ok {
		return nil, 0, nil, false
	}
	total := 0
	var walk func(cur int32, path Path, minMult int32, depth int)
	walk = func(cur int32, path Path, minMult int32, depth int) {
		if total >= maxPaths {
			truncated = true
			return
		}
		if depth > 2*len(g.vertices)+8 {
			return
		}
		path = append(path, cur)
		if cur == sink {
			total++
			cp := append(Path(nil), path...)
			if g.isReferencePath(cp) {
				if refPath == nil {
					refPath, refSupport = cp, minMult
				}
			} else {
				bubbles = append(bubbles, Bubble{Path: cp, Support: minMult})
			}
			return
		}
		for _, e := range g.out[cur] {
			m := minMult
			if e.multiplicity < m {
				m = e.multiplicity
			}
			walk(e.to, path, m, depth+1)
			if total >= maxPaths {
				truncated = true
				return
			}
		}
	}
	walk(source, nil, maxMultiplicity, 0)
	return refPath, refSupport, bubbles, truncated
}

// BubbleScoreSetter scores a bubble from its own support and the
// reference path's support; bubbles scoring below Config.MinBubbleScore
// are discarded.
type BubbleScoreSetter func(bubbleSupport, refSupport int32) float64

// DepthScorer is the depth-based scorer: the bubble's share of the
// combined depth, with the reference's contribution weighted by
// refAlleleFraction, so a high-depth reference path doesn't drown out a
// well-supported subclonal bubble.
func DepthScorer(refAlleleFraction float64) BubbleScoreSetter {
	return func(bubbleSupport, refSupport int32) float64 {
		total := float64(bubbleSupport) + refAlleleFraction*float64(refSupport)
		if total <= 0 {
			return 0
		}
		return float64(bubbleSupport) / total
	}
}

// Config bundles the reassembler's tunables: the multi-k cascade, bin
// subdivision, k-mer pruning, and bubble scoring/capping.
type Config struct {
	// KmerSizes is the cascade of k values tried in order per bin.
	KmerSizes []int
	// BinSize subdivides the assembled region; BinOverlap is the overlap
	// between adjacent bins so variants near a boundary aren't missed.
	BinSize    int
	BinOverlap int
	// MinKmerObservations prunes k-mers seen fewer times than this.
	MinKmerObservations int32
	// MinBubbleScore discards bubbles the scorer rates below it;
	// MaxBubbles caps how many retained bubbles become variants.
	MinBubbleScore float64
	MaxBubbles     int
	// MaxVariantSize discards any extracted variant larger than this.
	MaxVariantSize int
	// ScoreBubble scores each bubble; nil selects
	// DepthScorer(defaultRefAlleleFraction).
	ScoreBubble BubbleScoreSetter
}

const defaultRefAlleleFraction = 0.5

// DefaultConfig sizes the cascade and caps for a short-read active
// region.
func DefaultConfig() Config {
	return Config{
		KmerSizes:           []int{25, 35, 55},
		BinSize:             400,
		BinOverlap:          50,
		MinKmerObservations: 2,
		MinBubbleScore:      0.1,
		MaxBubbles:          30,
		MaxVariantSize:      200,
	}
}

func (cfg Config) scorer() BubbleScoreSetter {
	if cfg.ScoreBubble != nil {
		return cfg.ScoreBubble
	}
	return DepthScorer(defaultRefAlleleFraction)
}

// ExtractBubbles scores the graph's bubbles, drops those below
// cfg.MinBubbleScore, caps the rest at cfg.MaxBubbles (best first), and
// aligns each retained bubble's path against the reference path to mint
// Variants. refRegion must cover the reference path's span.
func (g *Graph) ExtractBubbles(refRegion region.Region, cfg Config) []variant.Variant {
	refPath, refSupport, bubbles, _ := g.Bubbles()
	if refPath == nil {
		return nil
	}
	kept := scoreAndCap(bubbles, refSupport, cfg)
	refSeq := g.sequence(refPath)

	seen := map[string]bool{}
	var out []variant.Variant
	for _, b := range kept {
		for _, v := range pathVariants(refRegion, refSeq, g.sequence(b.Path)) {
			if cfg.MaxVariantSize > 0 && v.Size() > cfg.MaxVariantSize {
				continue
			}
			addUnique(&out, seen, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return variant.Less(out[i], out[j]) })
	return out
}

// scoreAndCap applies cfg's scorer and MinBubbleScore/MaxBubbles to
// bubbles, returning the retained set best-scored first; ties break by
// shorter path, so the simplest explanation survives a cap.
func scoreAndCap(bubbles []Bubble, refSupport int32, cfg Config) []Bubble {
	scorer := cfg.scorer()
	type scored struct {
		b     Bubble
		score float64
	}
	var kept []scored
	for _, b := range bubbles {
		s := scorer(b.Support, refSupport)
		if s < cfg.MinBubbleScore {
			continue
		}
		kept = append(kept, scored{b: b, score: s})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		return len(kept[i].b.Path) < len(kept[j].b.Path)
	})
	if cfg.MaxBubbles > 0 && len(kept) > cfg.MaxBubbles {
		kept = kept[:cfg.MaxBubbles]
	}
	out := make([]Bubble, len(kept))
	for i, s := range kept {
		out[i] = s.b
	}
	return out
}

// pathVariants aligns seq (a bubble path's bases) against refSeq (the
// reference path's bases anchored at refRegion) and emits one Variant
// per mismatching base, insertion run, and deletion run.
func pathVariants(refRegion region.Region, refSeq, seq []byte) []variant.Variant {
	var out []variant.Variant
	res := align.Align(refSeq, seq, align.DefaultPenalties)
	pos := refRegion.Begin
	qpos := 0
	for _, op := range res.Cigar {
		switch op.Op {
		case 'M':
			for k := int32(0); k < op.Length; k++ {
				if refSeq[pos-refRegion.Begin+uint32(k)] != seq[qpos+int(k)] {
					out = append(out, variant.New(
						region.New(refRegion.Contig, pos+uint32(k), pos+uint32(k)+1),
						refSeq[pos-refRegion.Begin+uint32(k):pos-refRegion.Begin+uint32(k)+1],
						seq[qpos+int(k):qpos+int(k)+1],
					))
				}
			}
			pos += uint32(op.Length)
			qpos += int(op.Length)
		case 'I':
			ins := append([]byte(nil), seq[qpos:qpos+int(op.Length)]...)
			out = append(out, variant.New(region.New(refRegion.Contig, pos, pos), nil, ins))
			qpos += int(op.Length)
		case 'D':
			del := append([]byte(nil), refSeq[pos-refRegion.Begin:pos-refRegion.Begin+uint32(op.Length)]...)
			out = append(out, variant.New(region.New(refRegion.Contig, pos, pos+uint32(op.Length)), del, nil))
			pos += uint32(op.Length)
		}
	}
	return out
}

func addUnique(out *[]variant.Variant, seen map[string]bool, v variant.Variant) {
	n := variant.Normalize(v)
	key := n.Ref.Region.String() + ":" + string(n.Ref.Sequence) + ">" + string(n.Alt.Sequence)
	if seen[key] {
		return
	}
	seen[key] = true
	*out = append(*out, n)
}

func (g *Graph) isReferencePath(p Path) bool {
	for _, id := range p {
		if !g.vertices[id].isRef {
			return false
		}
	}
	return true
}

// Assemble subdivides refRegion into BinSize bins with BinOverlap
// overlap and assembles each bin independently, deduplicating variants
// across the overlaps. refSeq must cover refRegion.
func Assemble(refRegion region.Region, refSeq []byte, reads [][]byte, cfg Config) []variant.Variant {
	seen := map[string]bool{}
	var out []variant.Variant
	for _, bin := range subdivide(refRegion, cfg.BinSize, cfg.BinOverlap) {
		binSeq := refSeq[bin.Begin-refRegion.Begin : bin.End-refRegion.Begin]
		for _, v := range assembleBin(bin, binSeq, reads, cfg) {
			addUnique(&out, seen, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return variant.Less(out[i], out[j]) })
	return out
}

// subdivide splits r into bins of at most binSize with overlap bases
// shared between neighbors; a non-positive binSize yields r whole.
func subdivide(r region.Region, binSize, overlap int) []region.Region {
	if binSize <= 0 || int(r.Length()) <= binSize {
		return []region.Region{r}
	}
	if overlap < 0 || overlap >= binSize {
		overlap = 0
	}
	step := uint32(binSize - overlap)
	var out []region.Region
	for begin := r.Begin; begin < r.End; begin += step {
		end := begin + uint32(binSize)
		if end > r.End {
			end = r.End
		}
		out = append(out, region.Region{Contig: r.Contig, Begin: begin, End: end})
		if end == r.End {
			break
		}
	}
	return out
}

// assembleBin runs the multi-k cascade over one bin: at each k, build
// and prune the graph, then fall back to the next k when the graph
// cycles, when divergent k-mers exist but no bubble closes back into
// the reference path, or when enumeration blows the bubble budget.
// Returns nil when every k fails.
func assembleBin(bin region.Region, binSeq []byte, reads [][]byte, cfg Config) []variant.Variant {
	for _, k := range cfg.KmerSizes {
		if k >= len(binSeq) {
			continue
		}
		g := NewGraph(k)
		g.AddSequence(binSeq, true)
		for _, r := range reads {
			g.AddSequence(r, false)
		}
		g.Prune(cfg.MinKmerObservations)
		if g.HasCycle() {
			continue
		}
		refPath, _, bubbles, truncated := g.Bubbles()
		if refPath == nil {
			continue
		}
		if truncated || (cfg.MaxBubbles > 0 && len(bubbles) > 4*cfg.MaxBubbles) {
			continue // bubble budget exceeded at this k
		}
		if len(bubbles) == 0 && g.hasNonRefVertices() {
			continue // divergent sequence present but no bubble closed
		}
		return g.ExtractBubbles(bin, cfg)
	}
	return nil
}
