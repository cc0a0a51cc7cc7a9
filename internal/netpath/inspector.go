package netpath

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultSysRoot is where Linux exposes per-interface attributes.
const DefaultSysRoot = "/sys/class/net"

// Link is the raw OS view of one interface.
type Link struct {
	Name  string
	Index int
	// Type is the kernel link kind ("device", "tuntap", "wireguard", ...)
	// when the lister knows it.
	Type  string
	Flags net.Flags
	Addrs []net.IP
}

// LinkLister enumerates the current links.
type LinkLister func() ([]Link, error)

// SystemLinks lists links through the net package.
func SystemLinks() ([]Link, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	links := make([]Link, 0, len(ifaces))
	for i := range ifaces {
		iface := ifaces[i]
		link := Link{Name: iface.Name, Index: iface.Index, Flags: iface.Flags}
		addrs, err := iface.Addrs()
		if err != nil {
			// interface vanished between the two calls
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				link.Addrs = append(link.Addrs, ipnet.IP)
			}
		}
		links = append(links, link)
	}
	return links, nil
}

// Inspector turns the current set of links into a Path.
type Inspector struct {
	SysRoot string
	Links   LinkLister
	Now     func() time.Time
}

// NewInspector returns an Inspector reading the live system.
func NewInspector() *Inspector {
	return &Inspector{SysRoot: DefaultSysRoot, Links: defaultLinks, Now: time.Now}
}

// Snapshot builds a Path from the current links.
func (in *Inspector) Snapshot(ctx context.Context) (Path, error) {
	if err := ctx.Err(); err != nil {
		return Path{}, err
	}
	lister := in.Links
	if lister == nil {
		lister = defaultLinks
	}
	links, err := lister()
	if err != nil {
		return Path{}, err
	}

	now := time.Now
	if in.Now != nil {
		now = in.Now
	}
	path := Path{ObservedAt: now().UTC()}

	var usable, pending, billed int
	for _, link := range links {
		iface := in.describe(link)
		path.Interfaces = append(path.Interfaces, iface)
		if iface.Kind == KindLoopback {
			continue
		}
		switch {
		case iface.Usable():
			usable++
			if iface.Expensive {
				billed++
			}
		case iface.Up:
			pending++
		}
	}

	switch {
	case usable > 0:
		path.Status = StatusSatisfied
	case pending > 0:
		path.Status = StatusRequiresConnection
	default:
		path.Status = StatusUnsatisfied
	}
	path.Expensive = usable > 0 && billed == usable
	return path, nil
}

func (in *Inspector) describe(link Link) Interface {
	iface := Interface{
		Name:  link.Name,
		Index: link.Index,
		Up:    link.Flags&net.FlagUp != 0 && link.Flags&net.FlagRunning != 0,
	}
	for _, ip := range link.Addrs {
		if ip.IsGlobalUnicast() {
			iface.Routable = true
			break
		}
	}
	if link.Flags&net.FlagLoopback != 0 {
		iface.Kind = KindLoopback
		return iface
	}
	iface.Kind = in.kindOf(link)
	iface.Expensive = iface.Kind == KindCellular
	return iface
}

// ARPHRD values from linux/if_arp.h.
const (
	arphrdEther    = "1"
	arphrdPPP      = "512"
	arphrdTunnel   = "768"
	arphrdTunnel6  = "769"
	arphrdLoopback = "772"
	arphrdNone     = "65534"
)

func (in *Inspector) kindOf(link Link) InterfaceKind {
	root := in.SysRoot
	if root == "" {
		root = DefaultSysRoot
	}
	dir := filepath.Join(root, link.Name)

	if exists(filepath.Join(dir, "wireless")) || exists(filepath.Join(dir, "phy80211")) {
		return KindWifi
	}
	switch devtype(filepath.Join(dir, "uevent")) {
	case "wlan":
		return KindWifi
	case "wwan":
		return KindCellular
	case "bluetooth":
		return KindBluetooth
	case "wireguard", "vlan_tunnel":
		return KindTunnel
	}
	if exists(filepath.Join(dir, "tun_flags")) {
		return KindTunnel
	}
	switch link.Type {
	case "tuntap", "wireguard", "ipip", "ip6tnl", "gre", "ip6gre", "vti", "vti6", "sit", "xfrm":
		return KindTunnel
	}

	if kind, ok := kindFromName(link.Name); ok {
		return kind
	}

	switch readTrimmed(filepath.Join(dir, "type")) {
	case arphrdEther:
		return KindWiredEthernet
	case arphrdLoopback:
		return KindLoopback
	case arphrdPPP, arphrdTunnel, arphrdTunnel6, arphrdNone:
		return KindTunnel
	}
	if link.Flags&net.FlagPointToPoint != 0 {
		return KindTunnel
	}
	return KindOther
}

var namePrefixes = []struct {
	prefix string
	kind   InterfaceKind
}{
	{"wlan", KindWifi},
	{"wlp", KindWifi},
	{"wlx", KindWifi},
	{"wwan", KindCellular},
	{"rmnet", KindCellular},
	{"ccmni", KindCellular},
	{"pdp_ip", KindCellular},
	{"bnep", KindBluetooth},
	{"bt-pan", KindBluetooth},
	{"utun", KindTunnel},
	{"tun", KindTunnel},
	{"tap", KindTunnel},
	{"wg", KindTunnel},
	{"ipsec", KindTunnel},
	{"ppp", KindTunnel},
	{"tailscale", KindTunnel},
	{"eth", KindWiredEthernet},
	{"enp", KindWiredEthernet},
	{"eno", KindWiredEthernet},
	{"ens", KindWiredEthernet},
	{"enx", KindWiredEthernet},
	{"em", KindWiredEthernet},
}

func kindFromName(name string) (InterfaceKind, bool) {
	lower := strings.ToLower(name)
	for _, p := range namePrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.kind, true
		}
	}
	return KindOther, false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(data))
}

func devtype(ueventPath string) string {
	f, err := os.Open(ueventPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if value, ok := strings.CutPrefix(scanner.Text(), "DEVTYPE="); ok {
			return strings.ToLower(strings.TrimSpace(value))
		}
	}
	return ""
}
