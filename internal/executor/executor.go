package executor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/privacysandbox/pbs/internal/concurrent"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// Priority is the scheduling priority of an AsyncTask, per spec 3/4.4.
type Priority int

const (
	// Normal is the default priority.
	Normal Priority = iota
	// High tasks are drained ahead of Normal tasks by the worker.
	High
)

func validPriority(p Priority) bool {
	return p == Normal || p == High
}

type task struct {
	work      func()
	priority  Priority
	createdAt time.Time
}

type state int32

const (
	stateUninitialized state = iota
	stateInitialized
	stateRunning
	stateStopped
)

var nextThreadID int64

// Executor is a single-thread async executor: one worker goroutine draining
// two bounded priority queues, per spec 4.4.
type Executor struct {
	queueCap        int
	dropTasksOnStop bool
	log             logrus.FieldLogger

	highQ   *concurrent.Queue[task]
	normalQ *concurrent.Queue[task]

	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	st      atomic.Int32

	threadID string

	startedCh chan struct{}
	stoppedCh chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a single-thread Executor. queueCap bounds each of the two
// priority queues independently. If log is nil, a disabled logger is used.
func New(queueCap int, dropTasksOnStop bool, log logrus.FieldLogger) *Executor {
	if log == nil {
		l := logrus.New()
		l.SetOutput(nopWriter{})
		log = l
	}
	e := &Executor{
		queueCap:        queueCap,
		dropTasksOnStop: dropTasksOnStop,
		log:             log,
		highQ:           concurrent.NewQueue[task](queueCap),
		normalQ:         concurrent.NewQueue[task](queueCap),
		threadID:        fmt.Sprintf("pbs-worker-%d", atomic.AddInt64(&nextThreadID, 1)),
		startedCh:       make(chan struct{}),
		stoppedCh:       make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Init transitions Uninitialized -> Initialized. It is idempotent.
func (e *Executor) Init() error {
	if e.st.CompareAndSwap(int32(stateUninitialized), int32(stateInitialized)) {
		return nil
	}
	if state(e.st.Load()) == stateInitialized {
		return nil
	}
	return pbserrors.New(pbserrors.Internal, "executor: Init called out of order")
}

// Run transitions Initialized -> Running and starts the worker goroutine.
// Re-running a stopped executor is not supported, per spec 4.4.
func (e *Executor) Run() error {
	if !e.st.CompareAndSwap(int32(stateInitialized), int32(stateRunning)) {
		return pbserrors.New(pbserrors.Internal, "executor: Run requires Initialized state")
	}
	go e.loop()
	e.startOnce.Do(func() { close(e.startedCh) })
	return nil
}

// Stop transitions Running -> Stopped, wakes the worker, and blocks until it
// has observed both the started and stopped signals. It is illegal to call
// Stop before Run; this implementation waits for Run instead of racing, per
// spec 4.4.
func (e *Executor) Stop() {
	<-e.startedCh
	e.st.Store(int32(stateStopped))
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
	<-e.stoppedCh
}

// GetThreadId returns a stable identifier for this executor's single worker.
func (e *Executor) GetThreadId() string {
	return e.threadID
}

// Schedule enqueues work at the given priority. It fails with NotRunning if
// the executor is not running, InvalidPriority if priority is unsupported,
// and QueueFull if the target queue is at capacity, per spec 4.4.
func (e *Executor) Schedule(work func(), priority Priority) error {
	if state(e.st.Load()) != stateRunning {
		return pbserrors.NotRunning
	}
	if !validPriority(priority) {
		return pbserrors.InvalidPriority
	}
	t := task{work: work, priority: priority, createdAt: time.Now()}
	q := e.normalQ
	if priority == High {
		q = e.highQ
	}
	if err := q.TryEnqueue(t); err != nil {
		return err
	}
	e.mu.Lock()
	e.pending++
	e.cond.Broadcast()
	e.mu.Unlock()
	return nil
}

func (e *Executor) loop() {
	defer e.stopOnce.Do(func() { close(e.stoppedCh) })
	for {
		e.mu.Lock()
		for e.pending == 0 && state(e.st.Load()) == stateRunning {
			e.cond.Wait()
		}
		stopped := state(e.st.Load()) != stateRunning
		if e.pending == 0 {
			e.mu.Unlock()
			if stopped {
				return
			}
			continue
		}
		e.pending--
		e.mu.Unlock()

		t, err := e.highQ.TryDequeue()
		if err != nil {
			t, err = e.normalQ.TryDequeue()
		}
		if err != nil {
			// Another waiter already drained the task this pending credit
			// accounted for; nothing to do this iteration.
			continue
		}
		if stopped && e.dropTasksOnStop {
			continue
		}
		e.runTask(t)
	}
}

func (e *Executor) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("async task panicked: %v", r)
		}
	}()
	t.work()
}
