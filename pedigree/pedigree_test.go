package pedigree

import (
	"strings"
	"testing"
)

func TestParseAndTrioFor(t *testing.T) {
	input := "FAM1 kid dad mom 1 2\nFAM1 dad 0 0 1 1\nFAM1 mom 0 0 2 1\n"
	p, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	mother, father, ok := p.TrioFor("kid")
	if !ok || mother != "mom" || father != "dad" {
		t.Fatalf("got mother=%s father=%s ok=%v", mother, father, ok)
	}
}

func TestTrioForFounderHasNoTrio(t *testing.T) {
	input := "FAM1 dad 0 0 1 1\n"
	p, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, ok := p.TrioFor("dad"); ok {
		t.Fatalf("expected a founder to have no resolvable trio")
	}
}
