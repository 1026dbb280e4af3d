// Package reference defines the engine's borrowed view onto the
// reference genome: contig lengths and random subsequence access, backed
// by an mmap'd FASTA with an LRU cache of decoded windows.
//
// The rest of the engine depends only on the Genome interface; the one
// concrete implementation mmaps a plain FASTA plus its .fai companion
// and resolves line-wrapped offsets itself.
package reference

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Genome is the borrowed, read-only view onto the reference genome that
// every other component depends on. Implementations must be safe for
// concurrent use by multiple worker goroutines.
type Genome interface {
	Contigs() []string
	ContigLength(contig string) (uint32, bool)
	Sequence(contig string, begin, end uint32) ([]byte, error)
	Close() error
}

// faiEntry is one line of a .fai index.
type faiEntry struct {
	length    int64
	offset    int64
	lineBases int64
	lineWidth int64
}

// MmapGenome is a Genome backed by a read-only mmap of a FASTA file,
// with a bounded LRU cache of decoded windows: FASTA line-wrapping makes
// direct mmap slicing awkward for arbitrary [begin,end) queries, so
// decoded (newline-stripped) windows are cached instead.
type MmapGenome struct {
	data      []byte
	fai       map[string]faiEntry
	order     []string
	mu        sync.Mutex
	cache     map[cacheKey][]byte
	cacheLRU  []cacheKey
	footprint int64 // bytes currently cached
	maxBytes  int64
}

type cacheKey struct {
	contig     string
	begin, end uint32
}

// minCacheFootprintWarning is the threshold below which the cache is
// "suspiciously small".
const minCacheFootprintWarning = 1 << 20 // 1 MB

// Open mmaps fastaPath and parses its companion .fai index (fastaPath+".fai").
// maxCacheBytes bounds the decoded-window cache; a value below minCacheFootprintWarning
// is accepted but the caller should surface the associated warning.
func Open(fastaPath string, maxCacheBytes int64) (*MmapGenome, error) {
	f, err := os.Open(fastaPath)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("reference: mmap %s: %w", fastaPath, err)
	}
	fai, order, err := parseFai(fastaPath + ".fai")
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	return &MmapGenome{
		data:     data,
		fai:      fai,
		order:    order,
		cache:    make(map[cacheKey][]byte),
		maxBytes: maxCacheBytes,
	}, nil
}

func parseFai(path string) (map[string]faiEntry, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reference: missing .fai index %s: %w", path, err)
	}
	defer f.Close()
	fai := make(map[string]faiEntry)
	var order []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != 5 {
			return nil, nil, fmt.Errorf("reference: malformed .fai line %q", sc.Text())
		}
		length, _ := strconv.ParseInt(fields[1], 10, 64)
		offset, _ := strconv.ParseInt(fields[2], 10, 64)
		lineBases, _ := strconv.ParseInt(fields[3], 10, 64)
		lineWidth, _ := strconv.ParseInt(fields[4], 10, 64)
		fai[fields[0]] = faiEntry{length, offset, lineBases, lineWidth}
		order = append(order, fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return fai, order, nil
}

// Contigs returns contig names in .fai (== reference dictionary) order.
func (g *MmapGenome) Contigs() []string { return g.order }

// ContigLength returns contig's length in bases.
func (g *MmapGenome) ContigLength(contig string) (uint32, bool) {
	e, ok := g.fai[contig]
	if !ok {
		return 0, false
	}
	return uint32(e.length), true
}

// Sequence returns the upper-cased reference bases in [begin,end) on
// contig, decoding from the mmap and caching the result.
func (g *MmapGenome) Sequence(contig string, begin, end uint32) ([]byte, error) {
	if begin > end {
		return nil, fmt.Errorf("reference: invalid range [%d,%d)", begin, end)
	}
	key := cacheKey{contig, begin, end}
	g.mu.Lock()
	if cached, ok := g.cache[key]; ok {
		g.touch(key)
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	e, ok := g.fai[contig]
	if !ok {
		return nil, fmt.Errorf("reference: unknown contig %q", contig)
	}
	if int64(end) > e.length {
		return nil, fmt.Errorf("reference: range [%d,%d) exceeds contig %s length %d", begin, end, contig, e.length)
	}
	out := make([]byte, 0, end-begin)
	pos := int64(begin)
	for pos < int64(end) {
		line := pos / e.lineBases
		col := pos % e.lineBases
		fileOffset := e.offset + line*e.lineWidth + col
		remainingOnLine := e.lineBases - col
		n := int64(end) - pos
		if n > remainingOnLine {
			n = remainingOnLine
		}
		out = append(out, g.data[fileOffset:fileOffset+n]...)
		pos += n
	}
	for i, b := range out {
		out[i] = toUpperAndN(b)
	}

	g.mu.Lock()
	g.store(key, out)
	g.mu.Unlock()
	return out, nil
}

func (g *MmapGenome) touch(key cacheKey) {
	for i, k := range g.cacheLRU {
		if k == key {
			g.cacheLRU = append(g.cacheLRU[:i], g.cacheLRU[i+1:]...)
			g.cacheLRU = append(g.cacheLRU, key)
			return
		}
	}
}

func (g *MmapGenome) store(key cacheKey, seq []byte) {
	if g.maxBytes <= 0 {
		g.cache[key] = seq
		g.cacheLRU = append(g.cacheLRU, key)
		return
	}
	for g.footprint+int64(len(seq)) > g.maxBytes && len(g.cacheLRU) > 0 {
		evict := g.cacheLRU[0]
		g.cacheLRU = g.cacheLRU[1:]
		g.footprint -= int64(len(g.cache[evict]))
		delete(g.cache, evict)
	}
	g.cache[key] = seq
	g.cacheLRU = append(g.cacheLRU, key)
	g.footprint += int64(len(seq))
}

// Close unmaps the underlying file.
func (g *MmapGenome) Close() error {
	return unix.Munmap(g.data)
}

var iupacUpperN = [256]byte{}

func init() {
	for c := 0; c < 256; c++ {
		iupacUpperN[c] = byte(c)
	}
	for _, c := range []byte("acgtACGT") {
		u := c
		if u >= 'a' {
			u -= 'a' - 'A'
		}
		iupacUpperN[c] = u
	}
	for _, c := range []byte("RYMKWSBDHVNrymkwsbdhvn") {
		iupacUpperN[c] = 'N'
	}
}

func toUpperAndN(b byte) byte { return iupacUpperN[b] }
