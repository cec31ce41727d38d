package tracewire

import (
	"sync"
)

// IDPool manages a pool of pre-generated ids to amortize crypto/rand
// overhead on the span-creation hot path.
type IDPool struct {
	factory func() uint64
	ids     chan uint64
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new id pool with the specified capacity.
func NewIDPool(capacity int, factory func() uint64) *IDPool {
	pool := &IDPool{
		ids:     make(chan uint64, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	// Background refill keeps the channel topped up.
	go pool.refill()
	return pool
}

// Get retrieves an id from the pool or generates one if the pool is
// empty (fallback for burst load).
func (p *IDPool) Get() uint64 {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

// refill maintains the pool by generating ids in the background.
func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
			select {
			case p.ids <- p.factory():
				// Pool had capacity.
			case <-p.stopCh:
				return
			}
		}
	}
}

// Close shuts down the id pool gracefully. Safe to call more than once.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
