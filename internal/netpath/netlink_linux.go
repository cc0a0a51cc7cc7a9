//go:build linux

package netpath

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// netlinkUpdateBuffer is the per-group queue between the kernel socket
// reader and the subscription goroutine.
const netlinkUpdateBuffer = 64

// NetlinkSource listens for rtnetlink link, address and route updates.
// Each burst of updates triggers one Inspector snapshot, delivered on the
// subscription goroutine.
type NetlinkSource struct {
	inspector *Inspector
}

// NewNetlinkSource creates a source; sockets are opened by Subscribe.
func NewNetlinkSource(inspector *Inspector) (*NetlinkSource, error) {
	if inspector == nil {
		inspector = NewInspector()
	}
	return &NetlinkSource{inspector: inspector}, nil
}

// Subscribe implements Source.
func (s *NetlinkSource) Subscribe(h Handler) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &netlinkSubscription{
		inspector: s.inspector,
		handler:   h,
		ctx:       ctx,
		cancel:    cancel,
		release:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, subscribe := range []func() error{sub.subscribeLinks, sub.subscribeAddrs, sub.subscribeRoutes} {
		if err := subscribe(); err != nil {
			cancel()
			close(sub.release)
			return nil, err
		}
	}
	go sub.run()

	logger.Debug("rtnetlink subscription established")
	return sub, nil
}

// Probe implements Source.
func (s *NetlinkSource) Probe(ctx context.Context) (Path, error) {
	return s.inspector.Snapshot(ctx)
}

type netlinkSubscription struct {
	inspector *Inspector
	handler   Handler

	ctx    context.Context
	cancel context.CancelFunc
	// release is closed to make the netlink package close its sockets.
	release chan struct{}
	done    chan struct{}
	once    sync.Once

	links  chan netlink.LinkUpdate
	addrs  chan netlink.AddrUpdate
	routes chan netlink.RouteUpdate
}

func (sub *netlinkSubscription) subscribeLinks() error {
	sub.links = nil
	ch := make(chan netlink.LinkUpdate, netlinkUpdateBuffer)
	opts := netlink.LinkSubscribeOptions{ErrorCallback: sub.onError}
	if err := netlink.LinkSubscribeWithOptions(ch, sub.release, opts); err != nil {
		return fmt.Errorf("subscribe link updates: %w", err)
	}
	sub.links = ch
	return nil
}

func (sub *netlinkSubscription) subscribeAddrs() error {
	sub.addrs = nil
	ch := make(chan netlink.AddrUpdate, netlinkUpdateBuffer)
	opts := netlink.AddrSubscribeOptions{ErrorCallback: sub.onError}
	if err := netlink.AddrSubscribeWithOptions(ch, sub.release, opts); err != nil {
		return fmt.Errorf("subscribe address updates: %w", err)
	}
	sub.addrs = ch
	return nil
}

func (sub *netlinkSubscription) subscribeRoutes() error {
	sub.routes = nil
	ch := make(chan netlink.RouteUpdate, netlinkUpdateBuffer)
	opts := netlink.RouteSubscribeOptions{ErrorCallback: sub.onError}
	if err := netlink.RouteSubscribeWithOptions(ch, sub.release, opts); err != nil {
		return fmt.Errorf("subscribe route updates: %w", err)
	}
	sub.routes = ch
	return nil
}

// onError runs on the netlink package's reader goroutines.
func (sub *netlinkSubscription) onError(err error) {
	if sub.ctx.Err() != nil {
		return
	}
	logger.Warn("rtnetlink receive failed", "error", err)
}

func (sub *netlinkSubscription) run() {
	defer close(sub.done)

	sub.deliver()
	for {
		var ok bool
		select {
		case <-sub.ctx.Done():
			return
		case _, ok = <-sub.links:
			if !ok {
				sub.resubscribe("link", sub.subscribeLinks)
			}
		case _, ok = <-sub.addrs:
			if !ok {
				sub.resubscribe("address", sub.subscribeAddrs)
			}
		case _, ok = <-sub.routes:
			if !ok {
				sub.resubscribe("route", sub.subscribeRoutes)
			}
		}
		if sub.ctx.Err() != nil {
			return
		}
		sub.drain()
		sub.deliver()
	}
}

// resubscribe replaces a group whose reader stopped, typically after the
// kernel overran the socket buffer. The snapshot that follows resyncs any
// updates lost in between.
func (sub *netlinkSubscription) resubscribe(group string, subscribe func() error) {
	if sub.ctx.Err() != nil {
		return
	}
	if err := subscribe(); err != nil {
		logger.Error("rtnetlink group lost, no further updates from it", "group", group, "error", err)
		return
	}
	logger.Info("rtnetlink group resubscribed", "group", group)
}

// drain discards queued updates so a burst yields a single snapshot.
func (sub *netlinkSubscription) drain() {
	for {
		select {
		case _, ok := <-sub.links:
			if !ok {
				return
			}
		case _, ok := <-sub.addrs:
			if !ok {
				return
			}
		case _, ok := <-sub.routes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (sub *netlinkSubscription) deliver() {
	path, err := sub.inspector.Snapshot(sub.ctx)
	if err != nil {
		if sub.ctx.Err() == nil {
			logger.Warn("path snapshot failed", "error", err)
		}
		return
	}
	sub.handler(path)
}

func (sub *netlinkSubscription) Cancel() {
	sub.once.Do(func() {
		sub.cancel()
		close(sub.release)
		<-sub.done
	})
}

// NetlinkLinks lists links over rtnetlink, including the kernel link type.
func NetlinkLinks() ([]Link, error) {
	nlLinks, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	links := make([]Link, 0, len(nlLinks))
	for _, nl := range nlLinks {
		attrs := nl.Attrs()
		link := Link{
			Name:  attrs.Name,
			Index: attrs.Index,
			Type:  nl.Type(),
			Flags: linkFlags(attrs.RawFlags),
		}
		addrs, err := netlink.AddrList(nl, netlink.FAMILY_ALL)
		if err != nil {
			// link vanished between the two requests
			continue
		}
		for _, addr := range addrs {
			if addr.IPNet != nil {
				link.Addrs = append(link.Addrs, addr.IP)
			}
		}
		links = append(links, link)
	}
	return links, nil
}

func linkFlags(raw uint32) net.Flags {
	var f net.Flags
	for _, m := range []struct {
		raw  uint32
		flag net.Flags
	}{
		{unix.IFF_UP, net.FlagUp},
		{unix.IFF_RUNNING, net.FlagRunning},
		{unix.IFF_LOOPBACK, net.FlagLoopback},
		{unix.IFF_POINTOPOINT, net.FlagPointToPoint},
		{unix.IFF_BROADCAST, net.FlagBroadcast},
		{unix.IFF_MULTICAST, net.FlagMulticast},
	} {
		if raw&m.raw != 0 {
			f |= m.flag
		}
	}
	return f
}

func defaultLinks() ([]Link, error) {
	links, err := NetlinkLinks()
	if err != nil {
		logger.Debug("rtnetlink link dump failed, using net.Interfaces", "error", err)
		return SystemLinks()
	}
	return links, nil
}
