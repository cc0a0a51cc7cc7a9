// Package netpath describes raw network path notifications as delivered by
// the operating system, and the sources that produce them.
package netpath

import (
	"sort"
	"strings"
	"time"
)

// Status reports whether the path can carry traffic.
type Status int

const (
	// StatusUnsatisfied means no usable route exists.
	StatusUnsatisfied Status = iota
	// StatusSatisfied means at least one interface can carry traffic.
	StatusSatisfied
	// StatusRequiresConnection means an interface exists but must be brought up first.
	StatusRequiresConnection
)

func (s Status) String() string {
	switch s {
	case StatusSatisfied:
		return "satisfied"
	case StatusRequiresConnection:
		return "requires_connection"
	default:
		return "unsatisfied"
	}
}

// InterfaceKind is the link technology of an interface as seen by the OS.
type InterfaceKind int

const (
	KindOther InterfaceKind = iota
	KindWifi
	KindCellular
	KindWiredEthernet
	KindBluetooth
	KindTunnel
	KindLoopback
)

func (k InterfaceKind) String() string {
	switch k {
	case KindWifi:
		return "wifi"
	case KindCellular:
		return "cellular"
	case KindWiredEthernet:
		return "wired_ethernet"
	case KindBluetooth:
		return "bluetooth"
	case KindTunnel:
		return "tunnel"
	case KindLoopback:
		return "loopback"
	default:
		return "other"
	}
}

// Interface is one network interface participating in a path.
type Interface struct {
	Name  string
	Index int
	Kind  InterfaceKind
	// Up is true when the link is administratively up and running.
	Up bool
	// Routable is true when the interface holds a global unicast address.
	Routable  bool
	Expensive bool
}

// Usable reports whether traffic can flow over the interface.
func (i Interface) Usable() bool {
	return i.Up && (i.Routable || i.Kind == KindLoopback)
}

// Path is a single path-change notification.
type Path struct {
	Status     Status
	Interfaces []Interface
	// Expensive is the OS hint that traffic over the path may be billed.
	Expensive  bool
	ObservedAt time.Time
}

// UsableInterfaces returns the usable interfaces sorted by name.
func (p Path) UsableInterfaces() []Interface {
	return p.filter(Interface.Usable)
}

// AttachedInterfaces returns the non-loopback interfaces that are up,
// routable or not, sorted by name.
func (p Path) AttachedInterfaces() []Interface {
	return p.filter(func(i Interface) bool { return i.Up && i.Kind != KindLoopback })
}

func (p Path) filter(keep func(Interface) bool) []Interface {
	out := make([]Interface, 0, len(p.Interfaces))
	for _, iface := range p.Interfaces {
		if keep(iface) {
			out = append(out, iface)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Uses reports whether a usable interface of the given kind is part of the path.
func (p Path) Uses(kind InterfaceKind) bool {
	for _, iface := range p.Interfaces {
		if iface.Kind == kind && iface.Usable() {
			return true
		}
	}
	return false
}

// Fingerprint is a stable textual digest of the path, used for logging.
func (p Path) Fingerprint() string {
	var b strings.Builder
	b.WriteString(p.Status.String())
	for _, iface := range p.UsableInterfaces() {
		b.WriteByte('|')
		b.WriteString(iface.Name)
		b.WriteByte(':')
		b.WriteString(iface.Kind.String())
	}
	if p.Expensive {
		b.WriteString("|expensive")
	}
	return b.String()
}
