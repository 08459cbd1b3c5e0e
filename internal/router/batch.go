package router

import (
	"sync"
	"time"

	"github.com/mossy-p/collab-signaling/config"
	"github.com/mossy-p/collab-signaling/internal/models"
)

// Batch is one session's pending ICE candidate queue. A single
// session owns it, but the read loop and the flush ticker both touch
// it, hence the mutex.
type Batch struct {
	mu        sync.Mutex
	queue     []*models.SignalMessage
	threshold int
	maxDrain  int
	interval  time.Duration
	lastFlush time.Time
}

func NewBatch(cfg config.BatchConfig) *Batch {
	return &Batch{
		threshold: cfg.Threshold,
		maxDrain:  cfg.MaxPerFlush,
		interval:  cfg.FlushInterval,
		lastFlush: time.Now(),
	}
}

// Add queues a candidate and reports whether the queue has reached the
// flush threshold.
func (b *Batch) Add(msg *models.SignalMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, msg)
	return len(b.queue) >= b.threshold
}

// Due reports whether the flush interval has elapsed and candidates
// are waiting.
func (b *Batch) Due(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) > 0 && now.Sub(b.lastFlush) >= b.interval
}

// Drain dequeues up to the per-flush bound and stamps the flush time.
func (b *Batch) Drain() []*models.SignalMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFlush = time.Now()
	n := len(b.queue)
	if n == 0 {
		return nil
	}
	if n > b.maxDrain {
		n = b.maxDrain
	}
	out := b.queue[:n]
	b.queue = append([]*models.SignalMessage(nil), b.queue[n:]...)
	return out
}

// Discard drops all pending candidates. Used when the session closes:
// the sender is gone, so its batch is never flushed.
func (b *Batch) Discard() {
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
}

// Len returns the number of pending candidates.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
