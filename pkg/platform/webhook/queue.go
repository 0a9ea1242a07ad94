package webhook

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// jobHeap is a container/heap.Interface ordering jobs by NextAttempt
// ascending: the earliest-due job is always the root. Jobs with equal
// NextAttempt fall back to seq, their enqueue order, since
// container/heap is not a stable sort and this is the only thing that
// gives cross-endpoint jobs sharing a lane FIFO fairness.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if !h[i].NextAttempt.Equal(h[j].NextAttempt) {
		return h[i].NextAttempt.Before(h[j].NextAttempt)
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)         { *h = append(*h, x.(*Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// JobQueue is a concurrent multi-producer/multi-consumer priority
// queue keyed on Job.NextAttempt. Pop blocks until the earliest-due
// job becomes due, a new job arrives that might be due sooner, the
// queue is closed, or ctx is cancelled.
type JobQueue struct {
	mu      sync.Mutex
	items   jobHeap
	closed  bool
	wake    chan struct{}
	nextSeq int64
}

// NewJobQueue constructs an empty queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{wake: make(chan struct{})}
}

// Push adds job to the queue and wakes any blocked Pop.
func (q *JobQueue) Push(job *Job) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.nextSeq++
	job.seq = q.nextSeq
	heap.Push(&q.items, job)
	wake := q.wake
	q.wake = make(chan struct{})
	q.mu.Unlock()
	close(wake)
}

// Len reports the number of queued jobs, due or not.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pop returns the next due job, blocking until one is due, closed, or
// ctx is done. ok is false in the latter two cases.
func (q *JobQueue) Pop(ctx context.Context) (job *Job, ok bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.items) == 0 {
			wake := q.wake
			q.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, false
			case <-wake:
				continue
			}
		}

		now := time.Now()
		next := q.items[0]
		if next.NextAttempt.After(now) {
			wait := next.NextAttempt.Sub(now)
			wake := q.wake
			q.mu.Unlock()

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, false
			case <-wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		job = heap.Pop(&q.items).(*Job)
		q.mu.Unlock()
		return job, true
	}
}

// Close wakes every blocked Pop and rejects further Push calls.
func (q *JobQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	wake := q.wake
	q.mu.Unlock()
	close(wake)
}
