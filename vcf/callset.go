// Package vcf defines the engine's call-emission types, VariantCall,
// GenotypeCall, PhaseCall, and the ordered CallSet the realign/emission
// pipeline produces, plus a minimal VCFv4.3 writer.
//
// VariantCall is produced only by this engine's own callers, so Info and
// format values are plain Go maps, there is no third-party file to
// round-trip with interned keys. Sort is a pargo parallel stable sort so
// a whole-genome call set doesn't pay a single-threaded sort at the end
// of the run.
package vcf

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	psort "github.com/exascience/pargo/sort"

	"github.com/exascience/variantcaller/region"
	"github.com/exascience/variantcaller/variant"
)

// GenotypeCall is one sample's called genotype at a VariantCall's site.
type GenotypeCall struct {
	Sample     string
	Alleles    []int // indices into VariantCall.Alt, plus 0 for reference; -1 for unknown
	Phased     bool
	PhaseSet   int64 // 0 if unphased
	Quality    float64
	Depth      int
	AlleleDepth []int
	Extra      map[string]interface{}
}

// PhaseCall records that a run of VariantCall sites belongs to the same
// phase set, with a confidence score.
type PhaseCall struct {
	PhaseSet int64
	Sites    []region.Region
	Score    float64
}

// VariantCall is one emitted record: the called Variant plus per-sample
// genotypes and site-level metadata.
type VariantCall struct {
	Variant  variant.Variant
	ID       string
	Quality  float64
	Filter   string // "PASS" or a semicolon-joined list of failed filter names
	Info     map[string]interface{}
	Genotypes []GenotypeCall
}

// Region returns the call's site, implementing containers.Mappable.
func (c VariantCall) Region() region.Region { return c.Variant.Ref.Region }

// CallSet is the full output of one caller invocation: an ordered,
// deduplicated list of VariantCalls plus the phase sets spanning them.
type CallSet struct {
	// RunID identifies this invocation in the VCF header for provenance
	// and log correlation; empty suppresses the header line.
	RunID   string
	Samples []string
	Calls   []VariantCall
	Phases  []PhaseCall
}

// Sort orders Calls by (region, ref, alt), the canonical output order
// needed for byte-identical reruns, using a parallel stable sort so a
// whole-genome call set doesn't pay a single-threaded sort at the end of
// the run.
func (cs *CallSet) Sort() {
	psort.StableSort(callSorter(cs.Calls))
}

type callSorter []VariantCall

func (s callSorter) SequentialSort(i, j int) {
	sub := s[i:j]
	sort.SliceStable(sub, func(a, b int) bool {
		return variant.Less(sub[a].Variant, sub[b].Variant)
	})
}

func (s callSorter) NewTemp() psort.StableSorter {
	return callSorter(make([]VariantCall, len(s)))
}

func (s callSorter) Len() int { return len(s) }

func (s callSorter) Less(i, j int) bool {
	return variant.Less(s[i].Variant, s[j].Variant)
}

func (s callSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(callSorter)
	return func(i, j, length int) {
		copy(dst[i:i+length], src[j:j+length])
	}
}

// StripGenotypes drops all per-sample genotype data from cs, leaving
// only site-level fields, the "--sites-only" cohort-VCF output mode.
func (cs *CallSet) StripGenotypes() {
	cs.Samples = nil
	for i := range cs.Calls {
		cs.Calls[i].Genotypes = nil
	}
}

// WriteVCF renders cs as a minimal VCFv4.3 stream. contigOrder, if
// non-nil, overrides the emission order of ##contig header lines; when
// nil, contigs appear in first-seen order within cs.Calls.
func WriteVCF(w io.Writer, cs *CallSet, contigOrder []string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "##fileformat=VCFv4.3")
	if cs.RunID != "" {
		fmt.Fprintf(bw, "##variantcaller_runID=%s\n", cs.RunID)
	}
	order := contigOrder
	if order == nil {
		seen := make(map[string]bool)
		for _, call := range cs.Calls {
			if c := call.Variant.Ref.Region.Contig; !seen[c] {
				seen[c] = true
				order = append(order, c)
			}
		}
	}
	for _, c := range order {
		fmt.Fprintf(bw, "##contig=<ID=%s>\n", c)
	}
	fmt.Fprintln(bw, `##INFO=<ID=DP,Number=1,Type=Integer,Description="Total depth">`)
	fmt.Fprintln(bw, `##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`)
	fmt.Fprintln(bw, `##FORMAT=<ID=PS,Number=1,Type=Integer,Description="Phase set">`)
	columns := []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT"}
	columns = append(columns, cs.Samples...)
	fmt.Fprintln(bw, strings.Join(columns, "\t"))

	for _, call := range cs.Calls {
		if err := writeRecord(bw, cs.Samples, call); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeRecord(bw *bufio.Writer, samples []string, c VariantCall) error {
	r := c.Variant.Ref.Region
	id := c.ID
	if id == "" {
		id = "."
	}
	filter := c.Filter
	if filter == "" {
		filter = "PASS"
	}
	qual := "."
	if c.Quality != 0 {
		qual = fmt.Sprintf("%.2f", c.Quality)
	}
	info := "."
	if len(c.Info) > 0 {
		var parts []string
		for k, v := range c.Info {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(parts)
		info = strings.Join(parts, ";")
	}

	ref := string(c.Variant.Ref.Sequence)
	alt := string(c.Variant.Alt.Sequence)
	if ref == "" {
		ref = "."
	}
	if alt == "" {
		alt = "."
	}

	_, err := fmt.Fprintf(bw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\tGT:PS",
		r.Contig, r.Begin+1, id, ref, alt, qual, filter, info)
	if err != nil {
		return err
	}
	gtBySample := make(map[string]GenotypeCall, len(c.Genotypes))
	for _, g := range c.Genotypes {
		gtBySample[g.Sample] = g
	}
	for _, s := range samples {
		g, ok := gtBySample[s]
		if !ok {
			if _, err := fmt.Fprint(bw, "\t./.:0"); err != nil {
				return err
			}
			continue
		}
		sep := "/"
		if g.Phased {
			sep = "|"
		}
		alleleStrs := make([]string, len(g.Alleles))
		for i, a := range g.Alleles {
			if a < 0 {
				alleleStrs[i] = "."
			} else {
				alleleStrs[i] = fmt.Sprintf("%d", a)
			}
		}
		if _, err := fmt.Fprintf(bw, "\t%s:%d", strings.Join(alleleStrs, sep), g.PhaseSet); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(bw)
	return err
}

// ReadVariants parses the CHROM/POS/REF/ALT columns of a VCF stream into
// candidate Variants, ignoring header lines, QUAL/FILTER/INFO/FORMAT,
// and any genotype columns. A multi-allelic ALT ("A,G") yields one
// Variant per alternate allele, all sharing the record's REF. This feeds
// candidates.GenerateActive's external-variant merge, the CLI's
// counterpart to htslib-backed VCF ingestion.
func ReadVariants(r io.Reader) ([]variant.Variant, error) {
	var out []variant.Variant
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 5 {
			return nil, fmt.Errorf("vcf: line %d: expected at least 5 columns, got %d", lineNo, len(fields))
		}
		pos, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("vcf: line %d: invalid POS %q: %w", lineNo, fields[1], err)
		}
		ref := []byte(fields[3])
		begin := uint32(pos - 1) // VCF POS is 1-based
		r := region.New(fields[0], begin, begin+uint32(len(ref)))
		for _, alt := range strings.Split(fields[4], ",") {
			if alt == "" || alt == "." {
				continue
			}
			out = append(out, variant.New(r, ref, []byte(alt)))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vcf: %w", err)
	}
	return out, nil
}
