package lsl

import (
	"encoding/json"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"
)

// DefaultMulticastAddr is the UDP multicast group+port beacons are
// announced on and resolved from, standing in for liblsl's own discovery
// multicast traffic.
const DefaultMulticastAddr = "224.0.1.181:16571"

// beacon is the wire format of a discovery announcement.
type beacon struct {
	UID        string           `json:"uid"`
	Host       string           `json:"host"`
	Port       int              `json:"port"`
	Descriptor StreamDescriptor `json:"descriptor"`
}

// multicastConn wraps the shared join/send/receive plumbing used by both
// Outlet (announcer) and Resolver (listener). golang.org/x/net/ipv4 is used
// instead of net.ListenMulticastUDP directly because ipv4.PacketConn lets
// the TTL and outgoing interface be controlled per-packet, matching the
// degree of control liblsl's own resolver exercises over its beacon traffic.
type multicastConn struct {
	pconn *ipv4.PacketConn
	raw   net.PacketConn
	group *net.UDPAddr
}

func joinMulticast(addr string) (*multicastConn, error) {
	group, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	raw, err := net.ListenPacket("udp4", "0.0.0.0:"+strconv.Itoa(group.Port))
	if err != nil {
		return nil, err
	}
	pconn := ipv4.NewPacketConn(raw)
	ifaces, _ := net.Interfaces()
	joined := false
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagUp == 0 {
			continue
		}
		if err := pconn.JoinGroup(&ifi, &net.UDPAddr{IP: group.IP}); err == nil {
			joined = true
		}
	}
	if !joined {
		// fall back to the default interface; still usable on loopback-only hosts.
		_ = pconn.JoinGroup(nil, &net.UDPAddr{IP: group.IP})
	}
	_ = pconn.SetMulticastTTL(4)
	_ = pconn.SetMulticastLoopback(true)
	return &multicastConn{pconn: pconn, raw: raw, group: group}, nil
}

func (m *multicastConn) send(b beacon) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = m.pconn.WriteTo(payload, nil, m.group)
	return err
}

func (m *multicastConn) close() error {
	return m.raw.Close()
}
