// Package executor runs dispatch loops against live device sessions and keeps
// the registry of which sessions are currently usable.
package executor

import (
	"context"
	"sort"
	"sync"
)

// Session is a connected device that can deliver text messages.
type Session interface {
	SendText(ctx context.Context, to, body string) error
	IsConnected() bool
}

// Registry maps device ids to live sessions. A device is present only while
// its session reports connected.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
	waiters  map[string][]chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		waiters:  make(map[string][]chan struct{}),
	}
}

// Register stores s under deviceID, replacing any previous session, and wakes
// every WaitFor call on that device.
func (r *Registry) Register(deviceID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[deviceID] = s
	for _, ch := range r.waiters[deviceID] {
		close(ch)
	}
	delete(r.waiters, deviceID)
}

func (r *Registry) Deregister(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, deviceID)
}

// Get returns the device's session if it is registered and still connected.
func (r *Registry) Get(deviceID string) (Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[deviceID]
	r.mu.Unlock()

	if !ok || !s.IsConnected() {
		return nil, false
	}
	return s, true
}

// WaitFor blocks until deviceID is registered or ctx is done.
func (r *Registry) WaitFor(ctx context.Context, deviceID string) (Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[deviceID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	ch := make(chan struct{})
	r.waiters[deviceID] = append(r.waiters[deviceID], ch)
	r.mu.Unlock()

	select {
	case <-ch:
		r.mu.Lock()
		s := r.sessions[deviceID]
		r.mu.Unlock()
		return s, nil
	case <-ctx.Done():
		r.dropWaiter(deviceID, ch)
		return nil, ctx.Err()
	}
}

func (r *Registry) dropWaiter(deviceID string, ch chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.waiters[deviceID]
	for i, c := range list {
		if c == ch {
			r.waiters[deviceID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.waiters[deviceID]) == 0 {
		delete(r.waiters, deviceID)
	}
}

// Devices lists registered device ids in sorted order.
func (r *Registry) Devices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
