package caller

import (
	"fmt"
	"os"

	"github.com/exascience/variantcaller/errs"
	"github.com/exascience/variantcaller/pedigree"
)

// PedigreeHint carries the options a CLI invocation supplies that bear
// on which calling mode to run.
type PedigreeHint struct {
	ExplicitMode                   string // "", "individual", "population", "trio", "cancer", "polyclone", "cell"
	NormalSample                   string // non-empty => tumor/normal pair present
	MaternalSample, PaternalSample string
	PedigreeFile                   string
	Samples                        []string

	// Trio carries the de-novo tunables threaded into a built Trio
	// caller; zero-valued fields select Trio's own defaults.
	Trio Trio
	// Cancer carries the somatic tunables threaded into a built Cancer
	// caller; zero-valued fields select Cancer's own defaults.
	Cancer Cancer
	// Polyclone carries the clone tunables used when the explicit mode is
	// polyclone; zero-valued fields select Polyclone's own defaults.
	Polyclone Polyclone
}

// Select resolves which Caller to run from hint, following this
// precedence: an explicit mode always wins; otherwise a normal-sample
// hint selects Cancer, a maternal/paternal hint or pedigree file selects
// Trio, a single sample defaults to Individual, and multiple samples with
// no pedigree information default to Population. Polyclone and Cell are
// only reachable via an explicit mode, since nothing about read input
// alone distinguishes "one diploid sample" from "one polyclonal or
// single-cell sample".
func Select(hint PedigreeHint) (Caller, error) {
	switch hint.ExplicitMode {
	case "individual":
		if len(hint.Samples) != 1 {
			return nil, errs.User("caller", "individual mode requires exactly one sample")
		}
		return Individual{}, nil
	case "population":
		// a cohort of one is just an individual
		if len(hint.Samples) == 1 {
			return Individual{}, nil
		}
		return Population{}, nil
	case "trio":
		return buildTrio(hint)
	case "cancer":
		return buildCancer(hint)
	case "polyclone":
		if len(hint.Samples) != 1 {
			return nil, errs.User("caller", "polyclone mode requires exactly one sample")
		}
		return hint.Polyclone, nil
	case "cell":
		if len(hint.Samples) != 1 {
			return nil, errs.User("caller", "cell mode requires exactly one sample")
		}
		return Cell{}, nil
	case "":
		// fall through to inference below
	default:
		return nil, errs.UserWithHelp("caller", fmt.Sprintf("unknown caller mode %q", hint.ExplicitMode),
			"pass one of: individual, population, trio, cancer, polyclone, cell")
	}

	if hint.NormalSample != "" {
		return buildCancer(hint)
	}
	if hint.MaternalSample != "" || hint.PaternalSample != "" || hint.PedigreeFile != "" {
		return buildTrio(hint)
	}
	if len(hint.Samples) == 1 {
		return Individual{}, nil
	}
	return Population{}, nil
}

func buildTrio(hint PedigreeHint) (Caller, error) {
	maternal, paternal := hint.MaternalSample, hint.PaternalSample
	if (maternal == "" || paternal == "") && hint.PedigreeFile != "" {
		resolvedMaternal, resolvedPaternal, err := resolveTrioFromPedigree(hint.PedigreeFile, hint.Samples)
		if err != nil {
			return nil, err
		}
		maternal, paternal = resolvedMaternal, resolvedPaternal
	}
	if maternal == "" || paternal == "" {
		return nil, errs.User("caller", "trio mode requires both a maternal and paternal sample, directly or via a pedigree file")
	}
	var child string
	for _, s := range hint.Samples {
		if s != maternal && s != paternal {
			child = s
			break
		}
	}
	if child == "" {
		return nil, errs.User("caller", "trio mode requires a child sample distinct from both parents")
	}
	t := hint.Trio
	t.Child, t.Parent1, t.Parent2 = child, maternal, paternal
	return t, nil
}

// resolveTrioFromPedigree parses a PLINK-style .fam file and returns the
// maternal/paternal sample IDs for whichever of hint's samples has both
// parents also present among them: a pedigree whose child and parents
// are all in the run implies trio mode.
func resolveTrioFromPedigree(path string, samples []string) (maternal, paternal string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", errs.System("caller", "failed to open pedigree file", err)
	}
	defer f.Close()

	ped, err := pedigree.Parse(f)
	if err != nil {
		return "", "", errs.User("caller", fmt.Sprintf("invalid pedigree file: %v", err))
	}
	present := make(map[string]bool, len(samples))
	for _, s := range samples {
		present[s] = true
	}
	for _, s := range samples {
		mother, father, ok := ped.TrioFor(s)
		if ok && present[mother] && present[father] {
			return mother, father, nil
		}
	}
	return "", "", errs.User("caller", "pedigree file names no sample among the input samples whose parents are both also present")
}

// buildCancer resolves a Cancer caller from hint. A normal sample is
// optional: with one, it screens somatic candidates for germline
// contamination; without one (explicit -caller cancer on a lone tumor
// sample), screening is skipped. Either way the first sample other than
// the normal becomes the tumor; any further samples are not used.
func buildCancer(hint PedigreeHint) (Caller, error) {
	var tumor string
	for _, s := range hint.Samples {
		if s != hint.NormalSample {
			tumor = s
			break
		}
	}
	if tumor == "" {
		return nil, errs.User("caller", "cancer mode requires a tumor sample distinct from the normal sample")
	}
	c := hint.Cancer
	c.Normal, c.Tumor = hint.NormalSample, tumor
	return c, nil
}
