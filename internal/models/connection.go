package models

import "connstate/internal/netpath"

// ConnectionType classifies the dominant interface of a path.
type ConnectionType int

const (
	ConnectionUnknown ConnectionType = iota
	ConnectionWifi
	ConnectionCellular
	ConnectionEthernet
	ConnectionBluetooth
	ConnectionVpn
	ConnectionLoopback
)

var connectionTypeNames = [...]string{
	ConnectionUnknown:   "unknown",
	ConnectionWifi:      "wifi",
	ConnectionCellular:  "cellular",
	ConnectionEthernet:  "ethernet",
	ConnectionBluetooth: "bluetooth",
	ConnectionVpn:       "vpn",
	ConnectionLoopback:  "loopback",
}

// ConnectionTypes lists every valid type in enum order.
func ConnectionTypes() []ConnectionType {
	return []ConnectionType{
		ConnectionUnknown, ConnectionWifi, ConnectionCellular, ConnectionEthernet,
		ConnectionBluetooth, ConnectionVpn, ConnectionLoopback,
	}
}

// Valid reports whether t is one of the enumerated values.
func (t ConnectionType) Valid() bool {
	return t >= ConnectionUnknown && t <= ConnectionLoopback
}

func (t ConnectionType) String() string {
	if !t.Valid() {
		return connectionTypeNames[ConnectionUnknown]
	}
	return connectionTypeNames[t]
}

// typePrecedence orders types when several interfaces are usable at once;
// the first match wins.
var typePrecedence = []struct {
	kind netpath.InterfaceKind
	typ  ConnectionType
}{
	{netpath.KindWiredEthernet, ConnectionEthernet},
	{netpath.KindWifi, ConnectionWifi},
	{netpath.KindCellular, ConnectionCellular},
	{netpath.KindBluetooth, ConnectionBluetooth},
	{netpath.KindTunnel, ConnectionVpn},
	{netpath.KindLoopback, ConnectionLoopback},
}

// ConnectionInfo is an immutable connectivity snapshot. The zero value is
// Unknown, inactive and unmetered.
type ConnectionInfo struct {
	Type      ConnectionType `json:"connection_type"`
	IsActive  bool           `json:"is_active"`
	IsMetered bool           `json:"is_metered"`
}

// NewConnectionInfo builds a snapshot, normalizing invalid types to Unknown.
func NewConnectionInfo(typ ConnectionType, active, metered bool) ConnectionInfo {
	if !typ.Valid() {
		typ = ConnectionUnknown
	}
	return ConnectionInfo{Type: typ, IsActive: active, IsMetered: metered}
}

// FromPath normalizes a raw path notification. The snapshot is metered when
// the OS flags the whole path or the dominant interface is billed.
func FromPath(p netpath.Path) ConnectionInfo {
	iface, ok := Dominant(p)
	typ := ConnectionUnknown
	if ok {
		typ = TypeOfKind(iface.Kind)
	}
	return NewConnectionInfo(typ, p.Status == netpath.StatusSatisfied, p.Expensive || (ok && iface.Expensive))
}

// Classify picks the dominant connection type of the path.
func Classify(p netpath.Path) ConnectionType {
	iface, ok := Dominant(p)
	if !ok {
		return ConnectionUnknown
	}
	return TypeOfKind(iface.Kind)
}

// Dominant returns the interface that decides the connection type. A
// satisfied path is judged on its usable interfaces. Any other path is
// judged on the attached links still waiting for a route, so loopback never
// names a path that cannot carry traffic.
func Dominant(p netpath.Path) (netpath.Interface, bool) {
	candidates := p.AttachedInterfaces()
	if p.Status == netpath.StatusSatisfied {
		candidates = p.UsableInterfaces()
	}
	for _, rule := range typePrecedence {
		for _, iface := range candidates {
			if iface.Kind == rule.kind {
				return iface, true
			}
		}
	}
	return netpath.Interface{}, false
}

// TypeOfKind maps a single interface kind to its connection type.
func TypeOfKind(kind netpath.InterfaceKind) ConnectionType {
	for _, rule := range typePrecedence {
		if rule.kind == kind {
			return rule.typ
		}
	}
	return ConnectionUnknown
}

// PerInterface returns one snapshot per usable interface. Only the
// interface that Classify would pick is marked active, and only when the
// path is satisfied.
func PerInterface(p netpath.Path) []ConnectionInfo {
	usable := p.UsableInterfaces()
	if len(usable) == 0 {
		return nil
	}
	dominant := Classify(p)
	satisfied := p.Status == netpath.StatusSatisfied

	out := make([]ConnectionInfo, 0, len(usable))
	marked := false
	for _, iface := range usable {
		typ := TypeOfKind(iface.Kind)
		active := satisfied && !marked && typ == dominant
		if active {
			marked = true
		}
		out = append(out, NewConnectionInfo(typ, active, iface.Expensive))
	}
	return out
}
