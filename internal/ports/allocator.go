// Package ports leases host ports from a bounded range.
//
// A bind probe alone cannot prevent two concurrent leases from picking the
// same port: the probe listener is closed before the container binds it. The
// allocator therefore keeps an in-process lease set, and a port is marked
// leased under the mutex before Lease returns, covering the probe-to-commit
// window.
package ports

import (
	"fmt"
	"net"
	"sync"

	"github.com/dockhive/dockhive/internal/apperror"
)

// Allocator hands out unique ports from [start, end].
type Allocator struct {
	start int
	end   int

	mu     sync.Mutex
	leased map[int]struct{}
	next   int // scan cursor, wraps around the range
}

// NewAllocator creates an Allocator over the inclusive range [start, end].
func NewAllocator(start, end int) (*Allocator, error) {
	if start <= 0 || end < start {
		return nil, fmt.Errorf("ports: invalid range %d-%d", start, end)
	}
	return &Allocator{
		start:  start,
		end:    end,
		leased: make(map[int]struct{}),
		next:   start,
	}, nil
}

// Seed marks ports as already leased, recovering allocator state from the
// catalog after a restart. Ports outside the range are recorded anyway so
// Release stays a no-op-safe on them.
func (a *Allocator) Seed(ports []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range ports {
		a.leased[p] = struct{}{}
	}
}

// Lease returns an unused port from the range, confirmed free by a bind
// probe and reserved before return. Returns apperror.ErrPortExhausted when
// every port in the range is leased or unbindable.
func (a *Allocator) Lease() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.end - a.start + 1
	for i := 0; i < size; i++ {
		port := a.next
		a.next++
		if a.next > a.end {
			a.next = a.start
		}

		if _, taken := a.leased[port]; taken {
			continue
		}
		if !bindable(port) {
			// Something outside our lease table holds it.
			continue
		}

		a.leased[port] = struct{}{}
		return port, nil
	}

	return 0, apperror.PortExhausted()
}

// Release frees a lease. Releasing a port that is not leased is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.leased, port)
}

// LeasedCount returns the number of active leases.
func (a *Allocator) LeasedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.leased)
}

// bindable probes local availability by briefly binding the port.
func bindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
