package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestExitCodePerClass(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{User("candidates", "no reads"), 1},
		{System("reference", "mmap failed", errors.New("ENOMEM")), 2},
		{Program("haplotype", "overlapping alleles"), 3},
		{errors.New("plain"), 1},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.want {
			t.Fatalf("ExitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestRenderIncludesHelpForUserErrors(t *testing.T) {
	err := UserWithHelp("cli", "unknown caller mode", "pass one of: individual, population, trio")
	out := Render(err)
	if !strings.Contains(out, "pass one of: individual, population, trio") {
		t.Fatalf("expected the help text in the render, got %q", out)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := System("reference", "write failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}
