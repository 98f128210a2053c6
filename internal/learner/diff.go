package learner

import "strings"

// Word-level diff built on a longest-common-subsequence alignment. Spans come
// back typed so callers never re-derive what changed from raw strings.

type DiffOp int

const (
	OpKept DiffOp = iota
	OpDeleted
	OpInserted
)

func (op DiffOp) String() string {
	switch op {
	case OpDeleted:
		return "deleted"
	case OpInserted:
		return "inserted"
	default:
		return "kept"
	}
}

// Span is one run of consecutive words sharing a diff operation.
type Span struct {
	Op   DiffOp
	Text string
}

// WordDiff aligns two texts word-by-word and returns the typed spans.
// Adjacent words with the same operation are merged into one span.
func WordDiff(original, edited string) []Span {
	a := strings.Fields(original)
	b := strings.Fields(edited)

	// LCS table
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	// Walk the table emitting per-word ops, merging runs as we go.
	var spans []Span
	var current []string
	var currentOp DiffOp = -1

	flush := func() {
		if len(current) > 0 {
			spans = append(spans, Span{Op: currentOp, Text: strings.Join(current, " ")})
			current = nil
		}
	}
	emit := func(op DiffOp, word string) {
		if op != currentOp {
			flush()
			currentOp = op
		}
		current = append(current, word)
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			emit(OpKept, a[i])
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			emit(OpDeleted, a[i])
			i++
		default:
			emit(OpInserted, b[j])
			j++
		}
	}
	for ; i < len(a); i++ {
		emit(OpDeleted, a[i])
	}
	for ; j < len(b); j++ {
		emit(OpInserted, b[j])
	}
	flush()

	return spans
}

// RemovedSpans returns the deleted span texts.
func RemovedSpans(spans []Span) []string {
	var removed []string
	for _, s := range spans {
		if s.Op == OpDeleted {
			removed = append(removed, s.Text)
		}
	}
	return removed
}

// AddedSpans returns the inserted span texts.
func AddedSpans(spans []Span) []string {
	var added []string
	for _, s := range spans {
		if s.Op == OpInserted {
			added = append(added, s.Text)
		}
	}
	return added
}
