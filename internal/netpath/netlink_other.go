//go:build !linux

package netpath

import "context"

// NetlinkSource is only available on Linux.
type NetlinkSource struct{}

// NewNetlinkSource always fails with ErrUnsupported off Linux.
func NewNetlinkSource(_ *Inspector) (*NetlinkSource, error) {
	return nil, ErrUnsupported
}

// Subscribe implements Source.
func (s *NetlinkSource) Subscribe(_ Handler) (Subscription, error) {
	return nil, ErrUnsupported
}

// Probe implements Source.
func (s *NetlinkSource) Probe(_ context.Context) (Path, error) {
	return Path{}, ErrUnsupported
}

func defaultLinks() ([]Link, error) {
	return SystemLinks()
}
