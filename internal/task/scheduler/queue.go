package scheduler

import "time"

// item is a planned firing. It is live only while gen matches the job's
// current generation; replaced or cancelled jobs leave stale items behind
// that the loop discards on pop.
type item struct {
	at  time.Time
	key string
	gen uint64
}

type fireQueue []item

func (q fireQueue) Len() int { return len(q) }
func (q fireQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].gen < q[j].gen
	}
	return q[i].at.Before(q[j].at)
}
func (q fireQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *fireQueue) Push(x any)   { *q = append(*q, x.(item)) }
func (q *fireQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
