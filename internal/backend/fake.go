package backend

import (
	"context"
	"sync"
)

// FakeBackend is a test Backend that records requests instead of spawning.
type FakeBackend struct {
	mu       sync.Mutex
	requests []Request
	closed   bool

	// Err, if set, is returned by Spawn to simulate a failed process split.
	Err error
	// PID is reported in the returned Handle.
	PID int
}

var _ Backend = (*FakeBackend)(nil)

// NewFakeBackend creates a FakeBackend that succeeds with PID 4242.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{PID: 4242}
}

func (f *FakeBackend) Spawn(ctx context.Context, req Request) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if f.Err != nil {
		return Handle{}, f.Err
	}
	f.requests = append(f.requests, req)
	return Handle{ID: req.ID, PID: f.PID}, nil
}

func (f *FakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Requests returns the successfully spawned requests.
func (f *FakeBackend) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Closed reports whether Close was called.
func (f *FakeBackend) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
