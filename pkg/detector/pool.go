package detector

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultPoolSize = 2
	AcquireTimeout  = 5 * time.Second
)

// sessionPool hands out exclusive sessions: an AdvancedSession owns its
// input and output tensors, so two goroutines must never run one at once.
type sessionPool struct {
	sessions chan *modelSession
	size     int
	mu       sync.Mutex
	closed   bool
}

func newSessionPool(size int, create func() (*modelSession, error)) (*sessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &sessionPool{
		sessions: make(chan *modelSession, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		session, err := create()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	return pool, nil
}

func (p *sessionPool) Acquire(ctx context.Context) (*modelSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pool is closed")
	}

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, fmt.Errorf("pool is closed")
		}
		return session, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *sessionPool) Release(session *modelSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		session.Destroy()
		return
	}

	p.sessions <- session
}

func (p *sessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}
