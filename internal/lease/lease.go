// Package lease implements the v1-only lease manager: lock-based ownership
// that gates request acceptance for a partitioned deployment, plus an
// optional read-only preference-applier hook that advises how many locks a
// node should try to hold.
package lease

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// TransitionType names a lease state transition a LeasableLock can undergo.
type TransitionType int

const (
	TransitionNotAcquired TransitionType = iota
	TransitionAcquired
	TransitionLost
	TransitionRenewed
)

func (t TransitionType) String() string {
	switch t {
	case TransitionAcquired:
		return "acquired"
	case TransitionLost:
		return "lost"
	case TransitionRenewed:
		return "renewed"
	default:
		return "not_acquired"
	}
}

// OwnerInfo identifies the current holder of a lease, when known.
type OwnerInfo struct {
	AcquirerID      string
	ServiceEndpoint string
}

// LeasableLock is the lock a Manager acquires and renews a lease on. A
// single-partition deployment wires one in-process implementation; a
// multi-partition deployment wires one per partition.
type LeasableLock interface {
	ShouldRefreshLease() bool
	RefreshLease() error
	ConfiguredLeaseDuration() time.Duration
	CurrentLeaseOwner() (OwnerInfo, bool)
	IsCurrentLeaseOwner() bool
}

// TransitionCallback is invoked whenever a managed lock's lease transitions.
type TransitionCallback func(TransitionType, *OwnerInfo)

// Manager periodically refreshes a lease on a LeasableLock and gates request
// acceptance on whether this node currently holds it.
type Manager struct {
	lock         LeasableLock
	pollInterval time.Duration
	callback     TransitionCallback
	log          logrus.FieldLogger

	mu       sync.Mutex
	wasOwner bool

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager constructs a Manager. callback may be nil.
func NewManager(lock LeasableLock, pollInterval time.Duration, callback TransitionCallback, log logrus.FieldLogger) *Manager {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		lock:         lock,
		pollInterval: pollInterval,
		callback:     callback,
		log:          log,
	}
}

// Run starts the background refresh loop. It is a no-op if already running.
func (m *Manager) Run() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.loop()
}

// Stop halts the refresh loop and blocks until it has exited.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	<-m.doneCh
}

// Acceptable reports whether this node currently holds the lease and should
// therefore accept requests for the partition the lock guards.
func (m *Manager) Acceptable() bool {
	return m.lock.IsCurrentLeaseOwner()
}

func (m *Manager) loop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Manager) tick() {
	if !m.lock.ShouldRefreshLease() {
		return
	}
	if err := m.lock.RefreshLease(); err != nil {
		m.log.WithError(err).Warn("lease refresh failed")
	}
	m.reportTransition()
}

func (m *Manager) reportTransition() {
	m.mu.Lock()
	defer m.mu.Unlock()

	isOwner := m.lock.IsCurrentLeaseOwner()
	var transition TransitionType
	switch {
	case isOwner && !m.wasOwner:
		transition = TransitionAcquired
	case isOwner && m.wasOwner:
		transition = TransitionRenewed
	case !isOwner && m.wasOwner:
		transition = TransitionLost
	default:
		m.wasOwner = isOwner
		return
	}
	m.wasOwner = isOwner

	if m.callback == nil {
		return
	}
	owner, ok := m.lock.CurrentLeaseOwner()
	if ok {
		m.callback(transition, &owner)
	} else {
		m.callback(transition, nil)
	}
}
