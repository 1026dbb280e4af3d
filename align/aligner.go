// Package align implements the affine-gap global aligner shared by the
// reassembler (aligning an assembled contig back to the reference to
// mint candidate variants) and the realigner (rebasing a read's CIGAR
// against its assigned haplotype).
//
// The alignment is Needleman-Wunsch (full-length global) rather than a
// local Smith-Waterman, since every caller here aligns a whole
// contig/read end-to-end against its target rather than searching for
// the best local subsequence. Scratch matrices are pooled to keep the
// hot path allocation-free.
package align

import (
	"sync"

	"github.com/exascience/variantcaller/read"
)

// Penalties bundles the affine-gap scoring scheme.
type Penalties struct {
	Match        int32
	Mismatch     int32
	GapOpen      int32
	GapExtend    int32
}

// DefaultPenalties are the usual indel-realignment scores.
var DefaultPenalties = Penalties{Match: 1, Mismatch: -4, GapOpen: -6, GapExtend: -1}

const lowInitValue = -(1 << 28)

type int32Matrix struct {
	cols  int32
	array []int32
}

func (m *int32Matrix) ensureSize(rows, cols int32) {
	m.cols = cols
	total := rows * cols
	if total <= int32(cap(m.array)) {
		m.array = m.array[:total]
		for i := range m.array {
			m.array[i] = 0
		}
	} else {
		m.array = make([]int32, total)
	}
}

func (m *int32Matrix) at(row, col int32) int32       { return m.array[row*m.cols+col] }
func (m *int32Matrix) setAt(row, col, v int32)       { m.array[row*m.cols+col] = v }
func (m *int32Matrix) rowView(row int32) []int32 {
	off := row * m.cols
	return m.array[off : off+m.cols]
}

type direction int8

const (
	dirDiag direction = iota
	dirUp
	dirLeft
)

type matrices struct {
	score, gapV, gapH int32Matrix
	backtrack         []direction
}

var matricesPool = sync.Pool{New: func() interface{} { return new(matrices) }}

func getMatrices() *matrices  { return matricesPool.Get().(*matrices) }
func putMatrices(m *matrices) { matricesPool.Put(m) }

// Result is a global alignment of query against reference.
type Result struct {
	Cigar []read.CigarOp
	Score int32
}

// Align computes the best global (Needleman-Wunsch, affine-gap)
// alignment of query against reference, then left-aligns any indels in
// the resulting CIGAR.
func Align(reference, query []byte, pen Penalties) Result {
	nrow := int32(len(reference)) + 1
	ncol := int32(len(query)) + 1

	m := getMatrices()
	defer putMatrices(m)
	m.score.ensureSize(nrow, ncol)
	m.gapV.ensureSize(nrow, ncol)
	m.gapH.ensureSize(nrow, ncol)
	if int32(len(m.backtrack)) < nrow*ncol {
		m.backtrack = make([]direction, nrow*ncol)
	}
	bt := func(row, col int32) *direction { return &m.backtrack[row*ncol+col] }

	for j := int32(1); j < ncol; j++ {
		m.score.setAt(0, j, pen.GapOpen+(j-1)*pen.GapExtend)
		m.gapH.setAt(0, j, m.score.at(0, j))
		m.gapV.setAt(0, j, lowInitValue)
		*bt(0, j) = dirLeft
	}
	for i := int32(1); i < nrow; i++ {
		m.score.setAt(i, 0, pen.GapOpen+(i-1)*pen.GapExtend)
		m.gapV.setAt(i, 0, m.score.at(i, 0))
		m.gapH.setAt(i, 0, lowInitValue)
		*bt(i, 0) = dirUp
	}

	// extension bits: the gap at this cell continues the previous cell's gap
	const vExt, hExt direction = 4, 8

	for i := int32(1); i < nrow; i++ {
		for j := int32(1); j < ncol; j++ {
			var sub int32
			if reference[i-1] == query[j-1] || reference[i-1] == 'N' || query[j-1] == 'N' {
				sub = pen.Match
			} else {
				sub = pen.Mismatch
			}
			diag := m.score.at(i-1, j-1) + sub

			openV := m.score.at(i-1, j) + pen.GapOpen
			extV := m.gapV.at(i-1, j) + pen.GapExtend
			gapV := openV
			var ext direction
			if extV > gapV {
				gapV = extV
				ext |= vExt
			}
			m.gapV.setAt(i, j, gapV)

			openH := m.score.at(i, j-1) + pen.GapOpen
			extH := m.gapH.at(i, j-1) + pen.GapExtend
			gapH := openH
			if extH > gapH {
				gapH = extH
				ext |= hExt
			}
			m.gapH.setAt(i, j, gapH)

			best := diag
			dir := dirDiag
			if gapV > best {
				best = gapV
				dir = dirUp
			}
			if gapH > best {
				best = gapH
				dir = dirLeft
			}
			m.score.setAt(i, j, best)
			*bt(i, j) = dir | ext
		}
	}

	var ops []read.CigarOp
	appendOp := func(n int32, op byte) {
		if n <= 0 {
			return
		}
		if len(ops) > 0 && ops[len(ops)-1].Op == op {
			ops[len(ops)-1].Length += n
			return
		}
		ops = append(ops, read.CigarOp{Length: n, Op: op})
	}

	i, j := nrow-1, ncol-1
	state := dirDiag
	for i > 0 || j > 0 {
		d := *bt(i, j)
		if state == dirDiag {
			state = d & 3
		}
		switch state {
		case dirDiag:
			appendOp(1, 'M')
			i--
			j--
		case dirUp:
			appendOp(1, 'D')
			if d&vExt == 0 {
				state = dirDiag
			}
			i--
		case dirLeft:
			appendOp(1, 'I')
			if d&hExt == 0 {
				state = dirDiag
			}
			j--
		}
	}
	reverse(ops)
	ops = leftAlign(reference, query, ops)

	return Result{Cigar: ops, Score: m.score.at(nrow-1, ncol-1)}
}

func reverse(ops []read.CigarOp) {
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
}

// leftAlign slides each indel left across a run of reference/query bases
// it could equivalently consume, so equal-scoring alignments always
// report the leftmost gap opening.
func leftAlign(reference, query []byte, ops []read.CigarOp) []read.CigarOp {
	refPos, queryPos := 0, 0
	for idx, op := range ops {
		switch op.Op {
		case 'M':
			refPos += int(op.Length)
			queryPos += int(op.Length)
		case 'I':
			n := shiftIndel(reference, query, ops, idx, refPos, queryPos, false)
			refPos -= n
			queryPos += int(op.Length) - n
		case 'D':
			n := shiftIndel(reference, query, ops, idx, refPos, queryPos, true)
			queryPos -= n
			refPos += int(op.Length) - n
		}
	}
	return ops
}

// shiftIndel slides the indel at ops[idx] left while the base it would
// expose matches the base it would drop, merging the preceding M block's
// trailing base count down and the following one's up by one each step.
// It returns how many positions the indel moved.
func shiftIndel(reference, query []byte, ops []read.CigarOp, idx, refPos, queryPos int, isDeletion bool) int {
	if idx == 0 {
		return 0
	}
	prev := &ops[idx-1]
	if prev.Op != 'M' || prev.Length == 0 {
		return 0
	}
	length := int(ops[idx].Length)
	shifted := 0
	for prev.Length > 0 {
		var dropBase, exposeBase byte
		if isDeletion {
			dropBase = reference[refPos-1]
			exposeBase = reference[refPos+length-1]
		} else {
			dropBase = query[queryPos-1]
			exposeBase = query[queryPos+length-1]
		}
		if dropBase != exposeBase {
			break
		}
		if idx+1 >= len(ops) || ops[idx+1].Op != 'M' {
			break // no trailing M block to absorb the shifted base into
		}
		prev.Length--
		if isDeletion {
			refPos--
		} else {
			queryPos--
		}
		ops[idx+1].Length++
		shifted++
	}
	return shifted
}
