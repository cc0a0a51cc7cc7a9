package netpath

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultPollInterval is used when no positive interval is configured.
const DefaultPollInterval = 5 * time.Second

// PollingSource snapshots the links on a fixed interval. It delivers the
// initial path right after Subscribe and one path per tick afterwards, on a
// goroutine owned by the subscription.
type PollingSource struct {
	inspector *Inspector
	interval  time.Duration
	clock     clock.Clock
}

// NewPollingSource creates a polling source.
func NewPollingSource(inspector *Inspector, interval time.Duration, clk clock.Clock) *PollingSource {
	if inspector == nil {
		inspector = NewInspector()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &PollingSource{inspector: inspector, interval: interval, clock: clk}
}

// Interval returns the effective poll interval.
func (s *PollingSource) Interval() time.Duration {
	return s.interval
}

// Subscribe implements Source. The initial snapshot is taken synchronously
// so a broken link lister fails the subscription instead of the loop.
func (s *PollingSource) Subscribe(h Handler) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	initial, err := s.inspector.Snapshot(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &pollSubscription{cancel: cancel, done: make(chan struct{})}
	ticker := s.clock.Ticker(s.interval)
	go func() {
		defer close(sub.done)
		defer ticker.Stop()

		h(initial)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				path, err := s.inspector.Snapshot(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("poll snapshot failed", "error", err)
					continue
				}
				if ctx.Err() != nil {
					return
				}
				h(path)
			}
		}
	}()
	return sub, nil
}

// Probe implements Source.
func (s *PollingSource) Probe(ctx context.Context) (Path, error) {
	return s.inspector.Snapshot(ctx)
}

type pollSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *pollSubscription) Cancel() {
	p.once.Do(p.cancel)
	<-p.done
}
