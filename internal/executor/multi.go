package executor

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Runner is the lifecycle-plus-dispatch surface both Executor and
// MultiExecutor implement, so a caller configured for
// google_scp_pbs_async_executor_threads_count can hold either a
// single-thread Executor or a MultiExecutor pool interchangeably.
type Runner interface {
	Init() error
	Run() error
	Stop()
	Schedule(work func(), priority Priority) error
}

// MultiExecutor is a multi-threaded executor composed of N single-thread
// Executors, per spec 4.4. Schedule distributes work round-robin across the
// pool unless an affinity hint pins it to a specific worker.
type MultiExecutor struct {
	workers []*Executor
	next    atomic.Uint64
}

// NewMulti constructs a pool of threadCount single-thread executors, each
// with its own pair of bounded priority queues of size queueCap.
func NewMulti(threadCount, queueCap int, dropTasksOnStop bool, log logrus.FieldLogger) *MultiExecutor {
	workers := make([]*Executor, threadCount)
	for i := range workers {
		workers[i] = New(queueCap, dropTasksOnStop, log)
	}
	return &MultiExecutor{workers: workers}
}

// Init initializes every worker. It aborts and returns the first error
// encountered without initializing the remaining workers.
func (m *MultiExecutor) Init() error {
	for _, w := range m.workers {
		if err := w.Init(); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every worker.
func (m *MultiExecutor) Run() error {
	for _, w := range m.workers {
		if err := w.Run(); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every worker, waiting for each to drain in turn.
func (m *MultiExecutor) Stop() {
	for _, w := range m.workers {
		w.Stop()
	}
}

// Schedule round-robins work across the pool.
func (m *MultiExecutor) Schedule(work func(), priority Priority) error {
	idx := m.next.Add(1) - 1
	w := m.workers[idx%uint64(len(m.workers))]
	return w.Schedule(work, priority)
}

// ScheduleOn pins work to the worker at the given affinity index, per spec
// 4.4's notion of an affinity hint. The index is reduced modulo the pool
// size so any hint value is accepted.
func (m *MultiExecutor) ScheduleOn(affinity int, work func(), priority Priority) error {
	if affinity < 0 {
		affinity = -affinity
	}
	w := m.workers[affinity%len(m.workers)]
	return w.Schedule(work, priority)
}

// ThreadCount reports the number of workers in the pool.
func (m *MultiExecutor) ThreadCount() int {
	return len(m.workers)
}
