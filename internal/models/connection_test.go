package models

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connstate/internal/netpath"
)

func usable(name string, kind netpath.InterfaceKind) netpath.Interface {
	return netpath.Interface{Name: name, Kind: kind, Up: true, Routable: true}
}

func TestClassifyPrecedence(t *testing.T) {
	all := []netpath.Interface{
		usable("lo", netpath.KindLoopback),
		usable("tun0", netpath.KindTunnel),
		usable("bnep0", netpath.KindBluetooth),
		usable("wwan0", netpath.KindCellular),
		usable("wlan0", netpath.KindWifi),
		usable("eth0", netpath.KindWiredEthernet),
	}
	want := []ConnectionType{
		ConnectionEthernet, ConnectionWifi, ConnectionCellular,
		ConnectionBluetooth, ConnectionVpn, ConnectionLoopback,
	}

	// drop the highest-precedence interface one at a time
	for i, expected := range want {
		remaining := all[:len(all)-i]
		p := netpath.Path{Status: netpath.StatusSatisfied, Interfaces: remaining}
		assert.Equal(t, expected, Classify(p), "with %d interfaces", len(remaining))

		reversed := make([]netpath.Interface, len(remaining))
		for j := range remaining {
			reversed[len(remaining)-1-j] = remaining[j]
		}
		p.Interfaces = reversed
		assert.Equal(t, expected, Classify(p), "order must not matter")
	}

	assert.Equal(t, ConnectionUnknown, Classify(netpath.Path{}))
	assert.Equal(t, ConnectionUnknown, Classify(netpath.Path{
		Status:     netpath.StatusSatisfied,
		Interfaces: []netpath.Interface{usable("x0", netpath.KindOther)},
	}))
}

func TestClassifyIgnoresUnusableInterfaces(t *testing.T) {
	p := netpath.Path{
		Status: netpath.StatusSatisfied,
		Interfaces: []netpath.Interface{
			{Name: "eth0", Kind: netpath.KindWiredEthernet, Up: false, Routable: true},
			usable("wlan0", netpath.KindWifi),
		},
	}
	assert.Equal(t, ConnectionWifi, Classify(p))
}

func TestFromPath(t *testing.T) {
	p := netpath.Path{
		Status:     netpath.StatusSatisfied,
		Expensive:  true,
		Interfaces: []netpath.Interface{usable("wwan0", netpath.KindCellular)},
	}
	assert.Equal(t, ConnectionInfo{Type: ConnectionCellular, IsActive: true, IsMetered: true}, FromPath(p))

	p.Status = netpath.StatusRequiresConnection
	assert.False(t, FromPath(p).IsActive)

	assert.Equal(t, ConnectionInfo{}, FromPath(netpath.Path{}), "absent input maps to the zero snapshot")
}

func inspect(t *testing.T, links ...netpath.Link) netpath.Path {
	t.Helper()
	in := &netpath.Inspector{
		SysRoot: t.TempDir(),
		Links:   func() ([]netpath.Link, error) { return links, nil },
	}
	p, err := in.Snapshot(context.Background())
	require.NoError(t, err)
	return p
}

func TestFromInspectedLinks(t *testing.T) {
	upRunning := net.FlagUp | net.FlagRunning
	lo := netpath.Link{Name: "lo", Flags: upRunning | net.FlagLoopback, Addrs: []net.IP{net.IPv4(127, 0, 0, 1)}}
	global := []net.IP{net.ParseIP("2001:db8::7")}

	cases := []struct {
		name  string
		links []netpath.Link
		want  ConnectionInfo
	}{
		{"loopback only", []netpath.Link{lo}, ConnectionInfo{}},
		{"radio down", []netpath.Link{lo, {Name: "wlan0"}}, ConnectionInfo{}},
		{"wifi without address", []netpath.Link{lo, {Name: "wlan0", Flags: upRunning}},
			ConnectionInfo{Type: ConnectionWifi}},
		{"cellular without address", []netpath.Link{lo, {Name: "wwan0", Flags: upRunning}},
			ConnectionInfo{Type: ConnectionCellular, IsMetered: true}},
		{"cellular under vpn", []netpath.Link{lo, {Name: "wwan0", Flags: upRunning, Addrs: global}, {Name: "tun0", Flags: upRunning, Addrs: global}},
			ConnectionInfo{Type: ConnectionCellular, IsActive: true, IsMetered: true}},
		{"ethernet beside cellular", []netpath.Link{lo, {Name: "wwan0", Flags: upRunning, Addrs: global}, {Name: "eth0", Flags: upRunning, Addrs: global}},
			ConnectionInfo{Type: ConnectionEthernet, IsActive: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FromPath(inspect(t, tc.links...)))
		})
	}
}

func TestPerInterfaceMarksDominantActive(t *testing.T) {
	wwan := usable("wwan0", netpath.KindCellular)
	wwan.Expensive = true
	p := netpath.Path{
		Status:     netpath.StatusSatisfied,
		Interfaces: []netpath.Interface{wwan, usable("wlan0", netpath.KindWifi)},
	}

	got := PerInterface(p)
	assert.Equal(t, []ConnectionInfo{
		{Type: ConnectionWifi, IsActive: true},
		{Type: ConnectionCellular, IsActive: false, IsMetered: true},
	}, got)

	p.Status = netpath.StatusUnsatisfied
	for _, info := range PerInterface(p) {
		assert.False(t, info.IsActive)
	}
	assert.Nil(t, PerInterface(netpath.Path{}))
}

func TestConnectionTypeString(t *testing.T) {
	assert.Equal(t, "ethernet", ConnectionEthernet.String())
	assert.Equal(t, "loopback", ConnectionLoopback.String())
	assert.Equal(t, "unknown", ConnectionType(42).String())
	assert.Len(t, ConnectionTypes(), 7)
	assert.Equal(t, ConnectionUnknown, NewConnectionInfo(-1, true, false).Type)
}

func TestRecordRoundTrip(t *testing.T) {
	for _, typ := range ConnectionTypes() {
		for _, active := range []bool{false, true} {
			for _, metered := range []bool{false, true} {
				info := NewConnectionInfo(typ, active, metered)
				rec := info.Record()

				assert.Equal(t, info, FromRecord(rec))
				assert.Equal(t, rec, FromRecord(rec).Record())

				data, err := json.Marshal(rec)
				require.NoError(t, err)
				var decoded Record
				require.NoError(t, json.Unmarshal(data, &decoded))
				assert.Equal(t, rec, FromRecord(decoded).Record(), "through JSON: %s", data)
			}
		}
	}
}

func TestRecordSchemaOrder(t *testing.T) {
	rec := NewConnectionInfo(ConnectionVpn, true, false).Record()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"connection_type":5,"is_active":true,"is_metered":false}`, string(data))
	assert.Equal(t, `{"connection_type":5,"is_active":true,"is_metered":false}`, string(data))

	var decoded Record
	require.NoError(t, json.Unmarshal([]byte(`{"extra":1,"is_metered":true,"connection_type":2}`), &decoded))
	keys := make([]string, 0, len(decoded))
	for _, f := range decoded {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{KeyConnectionType, KeyIsMetered, "extra"}, keys)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &decoded))
}

func TestFromRecordDegrades(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want ConnectionInfo
	}{
		{"empty", nil, ConnectionInfo{}},
		{"out of range type", Record{{KeyConnectionType, 9}}, ConnectionInfo{}},
		{"string type", Record{{KeyConnectionType, "wifi"}, {KeyIsActive, true}}, ConnectionInfo{IsActive: true}},
		{"fractional type", Record{{KeyConnectionType, 1.5}}, ConnectionInfo{}},
		{"float type", Record{{KeyConnectionType, 3.0}}, ConnectionInfo{Type: ConnectionEthernet}},
		{"non-bool flags", Record{{KeyIsActive, "yes"}, {KeyIsMetered, 1}}, ConnectionInfo{}},
		{"int64 type", Record{{KeyConnectionType, int64(2)}, {KeyIsMetered, true}}, ConnectionInfo{Type: ConnectionCellular, IsMetered: true}},
		{"int64 beyond int32", Record{{KeyConnectionType, int64(1<<32 + 1)}}, ConnectionInfo{}},
		{"negative int64", Record{{KeyConnectionType, int64(math.MinInt64)}}, ConnectionInfo{}},
		{"huge uint64", Record{{KeyConnectionType, uint64(math.MaxUint64)}}, ConnectionInfo{}},
		{"uint64 wrapping to wifi", Record{{KeyConnectionType, uint64(1<<63 + 1)}}, ConnectionInfo{}},
		{"huge float", Record{{KeyConnectionType, 1e300}}, ConnectionInfo{}},
		{"json number overflow", Record{{KeyConnectionType, json.Number("18446744073709551617")}}, ConnectionInfo{}},
		{"uint8 type", Record{{KeyConnectionType, uint8(4)}}, ConnectionInfo{Type: ConnectionBluetooth}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FromRecord(tc.rec))
		})
	}
}

func TestRecordMap(t *testing.T) {
	m := NewConnectionInfo(ConnectionWifi, true, true).Record().Map()
	assert.Equal(t, map[string]any{KeyConnectionType: 1, KeyIsActive: true, KeyIsMetered: true}, m)
}
