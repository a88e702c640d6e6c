package lifecycle

import (
	"sync"
)

// LifeCycle coordinates starting and stopping a background worker.
// Typical use:
//
//	lc := lifecycle.NewLifeCycle()
//	lc.Start()
//	go func() {
//		<-lc.StopCh()
//		// clean up
//		lc.StopComplete()
//	}()
//	lc.Stop()
//	lc.Wait() // blocks until the goroutine acknowledged the stop
type LifeCycle interface {
	// Start is idempotent; it returns false if already started.
	Start() bool
	// Stop is idempotent; it returns false if already stopped.
	Stop() bool
	// StopComplete is called by the worker once its stop action finished.
	// It unblocks Wait.
	StopComplete()
	// StopCh broadcasts the stop signal once Stop is called.
	StopCh() <-chan struct{}
	// Wait blocks until StopComplete is called.
	Wait()
}

type lifeCycle struct {
	sync.RWMutex
	// stopCh is non-nil between Start and Stop.
	stopCh         chan struct{}
	stopCompleteCh chan struct{}
}

// NewLifeCycle creates a new LifeCycle instance
func NewLifeCycle() LifeCycle {
	return &lifeCycle{
		stopCompleteCh: make(chan struct{}, 1),
	}
}

func (l *lifeCycle) Start() bool {
	l.Lock()
	defer l.Unlock()

	if l.stopCh != nil {
		return false
	}
	l.stopCh = make(chan struct{})
	return true
}

func (l *lifeCycle) Stop() bool {
	l.Lock()
	defer l.Unlock()

	if l.stopCh == nil {
		return false
	}
	close(l.stopCh)
	l.stopCh = nil
	return true
}

func (l *lifeCycle) StopCh() <-chan struct{} {
	l.RLock()
	defer l.RUnlock()

	// Stop may already have run; hand out a closed channel so a late
	// caller does not block forever.
	if l.stopCh == nil {
		closedCh := make(chan struct{})
		close(closedCh)
		return closedCh
	}
	return l.stopCh
}

func (l *lifeCycle) StopComplete() {
	l.RLock()
	defer l.RUnlock()

	select {
	case l.stopCompleteCh <- struct{}{}:
	default:
		// already acknowledged
	}
}

func (l *lifeCycle) Wait() {
	<-l.stopCompleteCh
}
