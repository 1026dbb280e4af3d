// Package pedigree provides a minimal reader for PLINK-style .fam
// pedigree files, used only to resolve the trio caller's
// maternal/paternal sample hints when the caller is invoked with a
// pedigree file rather than explicit sample flags. Full pedigree
// semantics (multi-generation families, sex-linked ploidy inference,
// affection status) are out of scope for this engine; this package
// exists so the in-scope trio-selection logic in caller.Select has
// something real to parse.
//
// Parsing is a plain bufio.Scanner plus strings.Fields rather than a
// dedicated encoding package, since PLINK .fam has no quoting or
// escaping rules that would need one.
package pedigree

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Member is one row of a .fam file: FamilyID, IndividualID, PaternalID,
// MaternalID (0 if unknown/founder), Sex (1=male, 2=female, 0=unknown),
// Phenotype.
type Member struct {
	FamilyID     string
	IndividualID string
	PaternalID   string
	MaternalID   string
	Sex          int
	Phenotype    string
}

// Pedigree is a parsed .fam file, indexed by IndividualID.
type Pedigree struct {
	Members map[string]Member
}

// Parse reads a PLINK .fam-style pedigree file.
func Parse(r io.Reader) (*Pedigree, error) {
	p := &Pedigree{Members: make(map[string]Member)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, fmt.Errorf("pedigree: line %d: expected at least 5 columns, got %d", lineNo, len(fields))
		}
		m := Member{
			FamilyID:     fields[0],
			IndividualID: fields[1],
			PaternalID:   fields[2],
			MaternalID:   fields[3],
			Sex:          parseSex(fields[4]),
		}
		if len(fields) > 5 {
			m.Phenotype = fields[5]
		}
		p.Members[m.IndividualID] = m
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("pedigree: %w", err)
	}
	return p, nil
}

func parseSex(s string) int {
	switch s {
	case "1":
		return 1
	case "2":
		return 2
	default:
		return 0
	}
}

// TrioFor returns the mother and father sample IDs for child, with ok
// reporting whether child is in the pedigree with both parents known.
func (p *Pedigree) TrioFor(child string) (mother, father string, ok bool) {
	m, exists := p.Members[child]
	if !exists || m.MaternalID == "0" || m.PaternalID == "0" {
		return "", "", false
	}
	return m.MaternalID, m.PaternalID, true
}
