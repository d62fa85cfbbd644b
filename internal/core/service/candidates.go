package service

import "github.com/Wyydra/yacall/internal/core/domain"

// candidateQueue holds remote candidates that arrived before the remote
// description. It flushes once; after that nothing is ever queued again.
type candidateQueue struct {
	pending []domain.Candidate
	flushed bool
}

// hold queues c and reports true, or reports false once the queue has been
// flushed and the caller must apply c itself.
func (q *candidateQueue) hold(c domain.Candidate) bool {
	if q.flushed {
		return false
	}
	q.pending = append(q.pending, c)
	return true
}

// flush returns the queued candidates in arrival order. Only the first call
// returns anything.
func (q *candidateQueue) flush() []domain.Candidate {
	if q.flushed {
		return nil
	}
	q.flushed = true
	out := q.pending
	q.pending = nil
	return out
}

func (q *candidateQueue) len() int {
	return len(q.pending)
}
