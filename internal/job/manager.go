// Package job tracks background audit runs. At most one job runs at a time;
// callers poll snapshots or subscribe to progress updates.
package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrJobRunning is returned by Start while another job is running
	ErrJobRunning = errors.New("a job is already running")
	// ErrNoRunningJob is returned by Cancel when nothing is running
	ErrNoRunningJob = errors.New("no job is running")
	// ErrJobNotFound is returned for unknown job ids
	ErrJobNotFound = errors.New("job not found")
)

// State is the lifecycle state of a job
type State string

// Job states
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Status is a snapshot of one job
type Status struct {
	ID         string     `json:"id,omitempty"`
	State      State      `json:"state"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Done reports whether the job has finished
func (s Status) Done() bool {
	return s.State == StateCompleted || s.State == StateError
}

// Func is the work of a job. It reports progress in percent through report
// and must return when ctx is cancelled.
type Func func(ctx context.Context, report func(percent int, message string)) error

type job struct {
	status      Status
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers map[chan Status]struct{}
}

// Manager runs jobs one at a time and keeps their snapshots
type Manager struct {
	mu      sync.Mutex
	rootCtx context.Context
	jobs    map[string]*job
	latest  string
	running string
}

// NewManager creates a manager whose jobs derive from rootCtx
func NewManager(rootCtx context.Context) *Manager {
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	return &Manager{
		rootCtx: rootCtx,
		jobs:    make(map[string]*job),
	}
}

// Start launches fn as a new job. While another job runs it returns the
// status of that job together with ErrJobRunning.
func (m *Manager) Start(fn Func) (Status, error) {
	m.mu.Lock()
	if m.running != "" {
		current := m.jobs[m.running].status
		m.mu.Unlock()
		return current, ErrJobRunning
	}

	ctx, cancel := context.WithCancel(m.rootCtx)
	now := time.Now().UTC()
	j := &job{
		status: Status{
			ID:        uuid.NewString(),
			State:     StateRunning,
			Message:   "Queued",
			StartedAt: &now,
			UpdatedAt: now,
		},
		cancel:      cancel,
		done:        make(chan struct{}),
		subscribers: make(map[chan Status]struct{}),
	}
	m.jobs[j.status.ID] = j
	m.latest = j.status.ID
	m.running = j.status.ID
	status := j.status
	m.mu.Unlock()

	slog.Info("Job started", "job_id", status.ID)

	go func() {
		err := fn(ctx, func(percent int, message string) {
			m.update(j, percent, message)
		})
		m.finish(j, err)
	}()

	return status, nil
}

func (m *Manager) update(j *job, percent int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.status.State != StateRunning {
		return
	}
	j.status.Progress = max(0, min(percent, 100))
	j.status.Message = message
	j.status.UpdatedAt = time.Now().UTC()
	m.broadcastLocked(j)
}

func (m *Manager) finish(j *job, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	j.status.FinishedAt = &now
	j.status.UpdatedAt = now
	switch {
	case errors.Is(err, context.Canceled):
		j.status.State = StateError
		j.status.Message = "Cancelled"
		j.status.Error = err.Error()
	case err != nil:
		j.status.State = StateError
		j.status.Message = "Failed"
		j.status.Error = err.Error()
	default:
		j.status.State = StateCompleted
		j.status.Progress = 100
		if j.status.Message == "" {
			j.status.Message = "Completed"
		}
	}
	j.cancel()
	if m.running == j.status.ID {
		m.running = ""
	}

	m.broadcastLocked(j)
	for ch := range j.subscribers {
		close(ch)
	}
	j.subscribers = nil
	close(j.done)

	if err != nil {
		slog.Error("Job failed", "job_id", j.status.ID, "error", err)
	} else {
		slog.Info("Job completed", "job_id", j.status.ID)
	}
}

// broadcastLocked sends the current snapshot to subscribers without blocking
func (m *Manager) broadcastLocked(j *job) {
	for ch := range j.subscribers {
		select {
		case ch <- j.status:
		default:
		}
	}
}

// Get returns the snapshot of the job with id
func (m *Manager) Get(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Status{}, false
	}
	return j.status, true
}

// Latest returns the snapshot of the most recent job, or an idle status
func (m *Manager) Latest() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == "" {
		return Status{State: StateIdle, Message: "Idle", UpdatedAt: time.Now().UTC()}
	}
	return m.jobs[m.latest].status
}

// Running reports whether a job is running
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running != ""
}

// Cancel requests cancellation of the running job and returns its status
func (m *Manager) Cancel() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running == "" {
		return Status{}, ErrNoRunningJob
	}
	j := m.jobs[m.running]
	j.cancel()
	j.status.Message = "Cancelling"
	j.status.UpdatedAt = time.Now().UTC()
	slog.Info("Job cancellation requested", "job_id", j.status.ID)
	return j.status, nil
}

// Subscribe returns a channel receiving snapshots of the job with id. The
// current snapshot is delivered first and the channel is closed when the job
// finishes. Slow subscribers miss intermediate snapshots. The returned func
// unsubscribes.
func (m *Manager) Subscribe(id string) (<-chan Status, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, nil, ErrJobNotFound
	}

	ch := make(chan Status, 16)
	ch <- j.status
	if j.status.Done() {
		close(ch)
		return ch, func() {}, nil
	}
	j.subscribers[ch] = struct{}{}

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := j.subscribers[ch]; ok {
			delete(j.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

// Wait blocks until the job with id finishes or ctx is done
func (m *Manager) Wait(ctx context.Context, id string) (Status, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Status{}, ErrJobNotFound
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}

	status, _ := m.Get(id)
	return status, nil
}

// Shutdown cancels the running job and waits for it to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	id := m.running
	if id != "" {
		m.jobs[id].cancel()
	}
	m.mu.Unlock()

	if id == "" {
		return nil
	}
	_, err := m.Wait(ctx, id)
	return err
}
