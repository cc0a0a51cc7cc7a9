// Package host is the host side of the plugin boundary: a named-signal bus
// that fans plugin signals out to any number of listeners.
package host

import (
	"sync"
	"time"

	"connstate/internal/logging"
)

var logger = logging.Logger("host")

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// Signal is one emitted signal.
type Signal struct {
	Name      string    `json:"signal"`
	Args      []any     `json:"args"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Bus dispatches signals to subscribers. EmitSignal never blocks: a
// subscriber whose queue is full misses the signal.
type Bus struct {
	buffer int
	now    func() time.Time

	mu     sync.RWMutex
	subs   map[int]chan Signal
	nextID int
	closed bool
}

// NewBus creates a bus with the given per-subscriber buffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{buffer: buffer, now: time.Now, subs: make(map[int]chan Signal)}
}

// Subscribe registers a listener. The returned cancel function closes the
// channel and is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Signal, func()) {
	ch := make(chan Signal, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
}

// EmitSignal implements plugin.Emitter.
func (b *Bus) EmitSignal(name string, args ...any) {
	sig := Signal{Name: name, Args: args, EmittedAt: b.now().UTC()}
	if sig.Args == nil {
		sig.Args = []any{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- sig:
		default:
			logger.Warn("signal subscriber is slow, dropping signal", "signal", name, "subscriber", id)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later subscriptions get a closed channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	return nil
}
