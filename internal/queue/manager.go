package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultMaxPending bounds the jobs waiting for one user.
const DefaultMaxPending = 32

// Stats is a snapshot of the manager.
type Stats struct {
	Users          int    `json:"users"`
	Queued         int    `json:"queued"`
	Processing     int    `json:"processing"`
	WaitingWorkers int    `json:"waiting_workers"`
	Submitted      uint64 `json:"submitted"`
	Completed      uint64 `json:"completed"`
	Failed         uint64 `json:"failed"`
	Dropped        uint64 `json:"dropped"`
}

// Manager keeps one FIFO per user and hands jobs to workers. A user's next
// job is released only after the previous one completes; users with work
// are visited round-robin.
type Manager struct {
	mu         sync.Mutex
	queues     map[string]*userQueue
	order      []string
	next       int
	waiting    []chan *Job
	closing    bool
	closed     bool
	drained    chan struct{}
	maxPending int
	machine    *stateMachine
	stats      Stats
	logger     *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxPending sets how many jobs a user may have waiting.
func WithMaxPending(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxPending = n
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a queue manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		queues:     make(map[string]*userQueue),
		maxPending: DefaultMaxPending,
		machine:    newStateMachine(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "queue"))
	return m
}

// Submit appends job to its user's queue.
func (m *Manager) Submit(job *Job) error {
	if job == nil {
		return ErrNilJob
	}
	if job.UserID == "" {
		return fmt.Errorf("job %s has no user", job.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing || m.closed {
		_ = m.machine.Transition(job, StateDropped, ErrQueueStopped)
		m.stats.Dropped++
		return ErrQueueStopped
	}

	q, ok := m.queues[job.UserID]
	if !ok {
		q = newUserQueue(job.UserID)
		m.queues[job.UserID] = q
		m.order = append(m.order, job.UserID)
	}
	if q.size() >= m.maxPending {
		_ = m.machine.Transition(job, StateDropped, ErrQueueFull)
		m.stats.Dropped++
		m.logger.Warn("Dropping job, user queue full",
			slog.String("user_id", job.UserID),
			slog.String("job_id", job.ID),
			slog.Int("pending", q.size()))
		return fmt.Errorf("%w: user %s", ErrQueueFull, job.UserID)
	}
	if err := q.enqueue(job); err != nil {
		return err
	}
	m.stats.Submitted++
	m.dispatchLocked()
	return nil
}

// RequestJob blocks until a job is available, ctx is done, or the manager
// is closed. The returned job is in StateProcessing and must be passed to
// CompleteJob.
func (m *Manager) RequestJob(ctx context.Context) (*Job, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrQueueStopped
	}
	if job := m.nextLocked(); job != nil {
		m.startLocked(job)
		m.mu.Unlock()
		return job, nil
	}
	ch := make(chan *Job, 1)
	m.waiting = append(m.waiting, ch)
	m.mu.Unlock()

	select {
	case job := <-ch:
		if job == nil {
			return nil, ErrQueueStopped
		}
		return job, nil
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		m.forgetLocked(ch)
		// A job handed over while we were giving up goes back to its user.
		select {
		case job := <-ch:
			if job != nil {
				m.returnLocked(job)
			}
		default:
		}
		return nil, ctx.Err()
	}
}

// CompleteJob ends an in-flight job. A nil err marks it completed,
// anything else failed. The user's next job becomes available.
func (m *Manager) CompleteJob(job *Job, err error) error {
	if job == nil {
		return ErrNilJob
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[job.UserID]
	if !ok || !q.complete(job) {
		return fmt.Errorf("%w: %s", ErrNotInFlight, job.ID)
	}

	to := StateCompleted
	if err != nil {
		to = StateFailed
	}
	if terr := m.machine.Transition(job, to, err); terr != nil {
		return terr
	}
	if to == StateCompleted {
		m.stats.Completed++
	} else {
		m.stats.Failed++
	}

	if q.idle() {
		m.removeLocked(job.UserID)
	}
	m.dispatchLocked()

	if m.closing && m.drained != nil && len(m.queues) == 0 {
		close(m.drained)
		m.drained = nil
	}
	return nil
}

// Shutdown stops accepting jobs and waits until every queued and in-flight
// job has completed or ctx is done. Jobs still waiting then are dropped and
// blocked workers are released with ErrQueueStopped.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	if len(m.queues) == 0 {
		m.closeLocked()
		m.mu.Unlock()
		return nil
	}
	if m.drained == nil {
		m.drained = make(chan struct{})
	}
	drained := m.drained
	m.mu.Unlock()

	select {
	case <-drained:
		m.mu.Lock()
		m.closeLocked()
		m.mu.Unlock()
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		dropped := m.closeLocked()
		m.mu.Unlock()
		m.logger.Warn("Queue shutdown timed out", slog.Int("dropped", dropped))
		return fmt.Errorf("queue shutdown: %w", ctx.Err())
	}
}

// Stats returns current queue statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.Users = len(m.queues)
	s.WaitingWorkers = len(m.waiting)
	for _, q := range m.queues {
		s.Queued += q.size()
		if q.processing != nil {
			s.Processing++
		}
	}
	return s
}

// nextLocked picks the next job round-robin, skipping users with a job in
// flight.
func (m *Manager) nextLocked() *Job {
	n := len(m.order)
	for i := 0; i < n; i++ {
		idx := (m.next + i) % n
		q := m.queues[m.order[idx]]
		if q == nil {
			continue
		}
		if job := q.dequeue(); job != nil {
			m.next = (idx + 1) % n
			return job
		}
	}
	return nil
}

func (m *Manager) startLocked(job *Job) {
	if err := m.machine.Transition(job, StateProcessing, nil); err != nil {
		m.logger.Error("Failed to start job", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

// dispatchLocked hands jobs to waiting workers while both are available.
func (m *Manager) dispatchLocked() {
	for len(m.waiting) > 0 {
		job := m.nextLocked()
		if job == nil {
			return
		}
		ch := m.waiting[0]
		m.waiting = m.waiting[1:]
		m.startLocked(job)
		ch <- job
	}
}

// returnLocked undoes a hand-over that no worker picked up.
func (m *Manager) returnLocked(job *Job) {
	job.setState(StateQueued, nil)
	if q, ok := m.queues[job.UserID]; ok {
		q.requeue(job)
	}
	m.dispatchLocked()
}

func (m *Manager) forgetLocked(ch chan *Job) {
	for i, w := range m.waiting {
		if w == ch {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			return
		}
	}
}

func (m *Manager) removeLocked(userID string) {
	delete(m.queues, userID)
	for i, id := range m.order {
		if id != userID {
			continue
		}
		m.order = append(m.order[:i], m.order[i+1:]...)
		if m.next > i {
			m.next--
		}
		if m.next >= len(m.order) {
			m.next = 0
		}
		return
	}
}

// closeLocked drops waiting jobs and releases blocked workers. In-flight
// jobs can still be completed.
func (m *Manager) closeLocked() int {
	m.closed = true
	dropped := 0
	for id, q := range m.queues {
		for _, job := range q.drain() {
			_ = m.machine.Transition(job, StateDropped, ErrQueueStopped)
			dropped++
		}
		if q.idle() {
			m.removeLocked(id)
		}
	}
	m.stats.Dropped += uint64(dropped)
	for _, ch := range m.waiting {
		ch <- nil
	}
	m.waiting = nil
	if m.drained != nil {
		close(m.drained)
		m.drained = nil
	}
	return dropped
}
