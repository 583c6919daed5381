package component

import (
	"sync"
	"time"
)

// Inflight tracks the message handlers running inside a component between
// Open and Drain. The zero value is closed: Enter refuses every handler.
//
//	leave, ok := c.inflight.Enter()
//	if !ok {
//		return
//	}
//	defer leave()
type Inflight struct {
	mu     sync.Mutex
	open   bool
	active *sync.WaitGroup
}

// Open starts admitting handlers. Each Open gets its own wait group, so a
// Drain that timed out cannot collide with handlers of the next run.
func (f *Inflight) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	f.active = &sync.WaitGroup{}
}

// Enter admits one handler. It returns false once Drain has begun; otherwise
// the caller must call leave when done.
func (f *Inflight) Enter() (leave func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil, false
	}
	wg := f.active
	wg.Add(1)
	return wg.Done, true
}

// Drain stops admitting handlers and waits up to timeout for the admitted
// ones to leave. It reports whether they all did.
func (f *Inflight) Drain(timeout time.Duration) bool {
	f.mu.Lock()
	f.open = false
	wg := f.active
	f.mu.Unlock()

	if wg == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
