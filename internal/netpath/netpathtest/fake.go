// Package netpathtest provides a scripted netpath.Source for tests.
package netpathtest

import (
	"context"
	"sync"

	"connstate/internal/netpath"
)

// Source is a netpath.Source whose notifications are pushed by the test.
// Push delivers synchronously on the calling goroutine.
type Source struct {
	mu         sync.Mutex
	handler    netpath.Handler
	subscribes int
	cancels    int
	probes     int

	SubscribeErr error
	ProbePath    netpath.Path
	ProbeErr     error
	// ProbeBlock, when non-nil, makes Probe wait until it is closed or ctx ends.
	ProbeBlock chan struct{}
}

// New returns an empty fake source.
func New() *Source {
	return &Source{}
}

// Subscribe implements netpath.Source.
func (s *Source) Subscribe(h netpath.Handler) (netpath.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	if s.SubscribeErr != nil {
		return nil, s.SubscribeErr
	}
	s.handler = h
	return &subscription{src: s}, nil
}

// Probe implements netpath.Source.
func (s *Source) Probe(ctx context.Context) (netpath.Path, error) {
	s.mu.Lock()
	s.probes++
	block := s.ProbeBlock
	path, err := s.ProbePath, s.ProbeErr
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return netpath.Path{}, ctx.Err()
		}
	}
	return path, err
}

// Push delivers p to the current subscriber. It reports false when nobody
// is subscribed.
func (s *Source) Push(p netpath.Path) bool {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h(p)
	return true
}

// Subscribed reports whether a subscription is live.
func (s *Source) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

// Counts returns how many times Subscribe, Cancel and Probe were called.
func (s *Source) Counts() (subscribes, cancels, probes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes, s.cancels, s.probes
}

type subscription struct {
	once sync.Once
	src  *Source
}

func (sub *subscription) Cancel() {
	sub.once.Do(func() {
		sub.src.mu.Lock()
		sub.src.handler = nil
		sub.src.cancels++
		sub.src.mu.Unlock()
	})
}

// Active builds a satisfied path over a single interface of kind.
func Active(kind netpath.InterfaceKind, expensive bool) netpath.Path {
	return netpath.Path{
		Status:    netpath.StatusSatisfied,
		Expensive: expensive,
		Interfaces: []netpath.Interface{{
			Name:      kind.String() + "0",
			Kind:      kind,
			Up:        true,
			Routable:  true,
			Expensive: expensive,
		}},
	}
}

// Inactive builds the path the inspector reports when an interface of kind
// is attached but holds no routable address.
func Inactive(kind netpath.InterfaceKind, expensive bool) netpath.Path {
	p := Active(kind, expensive)
	p.Status = netpath.StatusRequiresConnection
	p.Expensive = false
	p.Interfaces[0].Routable = false
	return p
}
