package netpath

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"connstate/internal/logging"
)

var logger = logging.Logger("netpath")

// ErrUnsupported is returned when the platform has no native notification source.
var ErrUnsupported = errors.New("netpath: native path notifications unsupported on this platform")

// Handler receives path notifications. Each source documents the goroutine
// it calls Handler on; calls from one subscription never overlap.
type Handler func(Path)

// Subscription is a live registration with a notification source.
type Subscription interface {
	// Cancel releases the registration. It blocks until no further Handler
	// call can start and is safe to call more than once.
	Cancel()
}

// Source delivers path-change notifications and answers synchronous probes.
type Source interface {
	Subscribe(h Handler) (Subscription, error)
	Probe(ctx context.Context) (Path, error)
}

// SourceKind selects a Source implementation.
type SourceKind string

const (
	SourceAuto    SourceKind = "auto"
	SourceNetlink SourceKind = "netlink"
	SourcePoll    SourceKind = "poll"
)

// ParseSourceKind normalizes a configured source name.
func ParseSourceKind(raw string) (SourceKind, error) {
	switch kind := SourceKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "":
		return SourceAuto, nil
	case SourceAuto, SourceNetlink, SourcePoll:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown path source %q", raw)
	}
}

// New builds the Source for kind. Auto prefers rtnetlink and falls back to
// polling when the platform or the sandbox refuses the socket.
func New(kind SourceKind, inspector *Inspector, pollInterval time.Duration, clk clock.Clock) (Source, error) {
	if inspector == nil {
		inspector = NewInspector()
	}
	if clk == nil {
		clk = clock.New()
	}
	poll := NewPollingSource(inspector, pollInterval, clk)

	switch kind {
	case SourcePoll:
		return poll, nil
	case SourceNetlink:
		native, err := NewNetlinkSource(inspector)
		if err != nil {
			return nil, err
		}
		return native, nil
	case SourceAuto, "":
		native, err := NewNetlinkSource(inspector)
		if errors.Is(err, ErrUnsupported) {
			logger.Info("native path notifications unavailable, using polling", "interval", pollInterval)
			return poll, nil
		}
		if err != nil {
			return nil, err
		}
		return &FallbackSource{Primary: native, Fallback: poll}, nil
	default:
		return nil, fmt.Errorf("unknown path source %q", kind)
	}
}

// FallbackSource subscribes to Primary and switches to Fallback when the
// primary subscription cannot be established.
type FallbackSource struct {
	Primary  Source
	Fallback Source

	mu     sync.Mutex
	active Source
}

// Subscribe implements Source.
func (s *FallbackSource) Subscribe(h Handler) (Subscription, error) {
	sub, err := s.Primary.Subscribe(h)
	if err == nil {
		s.setActive(s.Primary)
		return sub, nil
	}
	logger.Warn("primary path source failed, falling back", "error", err)

	sub, fbErr := s.Fallback.Subscribe(h)
	if fbErr != nil {
		return nil, errors.Join(err, fbErr)
	}
	s.setActive(s.Fallback)
	return sub, nil
}

// Probe implements Source using whichever source is subscribed.
func (s *FallbackSource) Probe(ctx context.Context) (Path, error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		active = s.Primary
	}
	return active.Probe(ctx)
}

func (s *FallbackSource) setActive(src Source) {
	s.mu.Lock()
	s.active = src
	s.mu.Unlock()
}
