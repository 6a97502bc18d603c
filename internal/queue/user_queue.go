package queue

import (
	"container/list"
	"fmt"
)

// userQueue holds the pending jobs of one user in arrival order. It is
// guarded by the manager's lock.
type userQueue struct {
	userID     string
	jobs       *list.List
	processing *Job
}

func newUserQueue(userID string) *userQueue {
	return &userQueue{
		userID: userID,
		jobs:   list.New(),
	}
}

func (q *userQueue) enqueue(job *Job) error {
	if job.UserID != q.userID {
		return fmt.Errorf("job user %s does not match queue %s", job.UserID, q.userID)
	}
	q.jobs.PushBack(job)
	return nil
}

// dequeue returns the next job, or nil when the queue is empty or a job of
// this user is already in flight.
func (q *userQueue) dequeue() *Job {
	if q.processing != nil {
		return nil
	}
	front := q.jobs.Front()
	if front == nil {
		return nil
	}
	job, ok := front.Value.(*Job)
	if !ok {
		return nil
	}
	q.jobs.Remove(front)
	q.processing = job
	return job
}

func (q *userQueue) complete(job *Job) bool {
	if q.processing != job {
		return false
	}
	q.processing = nil
	return true
}

// requeue puts an undelivered job back at the head of the queue.
func (q *userQueue) requeue(job *Job) {
	if q.processing == job {
		q.processing = nil
	}
	q.jobs.PushFront(job)
}

func (q *userQueue) size() int {
	return q.jobs.Len()
}

func (q *userQueue) idle() bool {
	return q.jobs.Len() == 0 && q.processing == nil
}

// drain removes and returns every waiting job.
func (q *userQueue) drain() []*Job {
	out := make([]*Job, 0, q.jobs.Len())
	for e := q.jobs.Front(); e != nil; e = e.Next() {
		if job, ok := e.Value.(*Job); ok {
			out = append(out, job)
		}
	}
	q.jobs.Init()
	return out
}
