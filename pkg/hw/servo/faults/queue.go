package faults

import (
	"container/heap"
	"time"
)

type scheduledFrame struct {
	due time.Time
	// submission order, breaks ties between frames due at the same instant
	sequence uint64
	frame    []byte
}

// frameQueue is a min-heap of frames ordered by due time
type frameQueue []scheduledFrame

var _ heap.Interface = (*frameQueue)(nil)

func (q frameQueue) Len() int { return len(q) }

func (q frameQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].sequence < q[j].sequence
	}
	return q[i].due.Before(q[j].due)
}

func (q frameQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *frameQueue) Push(x any) {
	*q = append(*q, x.(scheduledFrame))
}

func (q *frameQueue) Pop() any {
	old := *q
	last := old[len(old)-1]
	old[len(old)-1] = scheduledFrame{}
	*q = old[:len(old)-1]
	return last
}

func (q frameQueue) peek() scheduledFrame {
	return q[0]
}
