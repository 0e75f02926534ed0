// Package endpoint defines Endpoint, the immutable address and port value used
// as a client connection target or a server bind address.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

var (
	// ErrInvalidAddress is returned when an address literal cannot be parsed
	// for the requested family.
	ErrInvalidAddress = errors.New("endpoint: invalid address")
	// ErrInvalidPort is returned when a port is outside 0..65535.
	ErrInvalidPort = errors.New("endpoint: invalid port")
)

// Family is the address family of an Endpoint.
type Family int

const (
	Unspecified Family = iota // Dual-stack wildcard or unknown family
	IPv4                      // IPv4 address
	IPv6                      // IPv6 address
)

// String returns a human-readable name for the family.
func (f Family) String() string {
	switch f {
	case Unspecified:
		return "Unspecified"
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return "Unknown"
	}
}

// Protocol selects the wildcard family for Any.
type Protocol int

const (
	ProtocolAny  Protocol = iota // Dual-stack wildcard
	ProtocolIPv4                 // 0.0.0.0
	ProtocolIPv6                 // ::
)

// Endpoint is an immutable address and port. The zero value is the
// unspecified wildcard on port 0.
type Endpoint struct {
	addr   netip.Addr
	port   uint16
	family Family
}

// New builds an Endpoint from an IPv4 or IPv6 address literal.
//
// Parameters:
//   - address: IP literal such as "127.0.0.1" or "::1"
//   - port: Port number in 0..65535
//
// Returns:
//   - The Endpoint
//   - ErrInvalidAddress or ErrInvalidPort on bad input
func New(address string, port int) (Endpoint, error) {
	return NewFamily(address, port, Unspecified)
}

// NewFamily builds an Endpoint from an address literal that must belong to the
// given family. Unspecified accepts either family. IPv4-mapped IPv6 literals
// are accepted as IPv4 when IPv4 is requested.
//
// Parameters:
//   - address: IP literal
//   - port: Port number in 0..65535
//   - family: Required family, or Unspecified
//
// Returns:
//   - The Endpoint
//   - ErrInvalidAddress or ErrInvalidPort on bad input
func NewFamily(address string, port int, family Family) (Endpoint, error) {
	if port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	addr, err := netip.ParseAddr(address)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	switch family {
	case IPv4:
		addr = addr.Unmap()
		if !addr.Is4() {
			return Endpoint{}, fmt.Errorf("%w: %q is not IPv4", ErrInvalidAddress, address)
		}
	case IPv6:
		if !addr.Is6() {
			return Endpoint{}, fmt.Errorf("%w: %q is not IPv6", ErrInvalidAddress, address)
		}
	}

	return fromAddr(addr, uint16(port)), nil
}

// Any returns the wildcard Endpoint of the selected family, used to listen on
// every local interface.
//
// Parameters:
//   - port: Port number; values outside 0..65535 are truncated to 16 bits
//   - protocol: ProtocolIPv4, ProtocolIPv6 or ProtocolAny
//
// Returns:
//   - The wildcard Endpoint
func Any(port int, protocol Protocol) Endpoint {
	switch protocol {
	case ProtocolIPv4:
		return Endpoint{addr: netip.IPv4Unspecified(), port: uint16(port), family: IPv4}
	case ProtocolIPv6:
		return Endpoint{addr: netip.IPv6Unspecified(), port: uint16(port), family: IPv6}
	default:
		return Endpoint{port: uint16(port), family: Unspecified}
	}
}

// Parse builds an Endpoint from a "host:port" string whose host is an IP
// literal (IPv6 in brackets) or empty for the dual-stack wildcard.
//
// Parameters:
//   - hostport: The address string
//
// Returns:
//   - The Endpoint
//   - An error wrapping ErrInvalidAddress or ErrInvalidPort on bad input
func Parse(hostport string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidPort, portStr)
	}

	if host == "" {
		if port < 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
		}

		return Any(port, ProtocolAny), nil
	}

	return New(host, port)
}

// FromAddrPort converts a netip.AddrPort into an Endpoint.
func FromAddrPort(ap netip.AddrPort) Endpoint {
	return fromAddr(ap.Addr(), ap.Port())
}

// FromTCPAddr converts a *net.TCPAddr into an Endpoint. A nil address yields
// the zero Endpoint.
func FromTCPAddr(a *net.TCPAddr) Endpoint {
	if a == nil {
		return Endpoint{}
	}

	return FromAddrPort(a.AddrPort())
}

// FromNetAddr converts a net.Addr reported by a connection or listener. Non-TCP
// addresses are parsed from their string form; failures yield the zero Endpoint.
func FromNetAddr(a net.Addr) Endpoint {
	if tcp, ok := a.(*net.TCPAddr); ok {
		return FromTCPAddr(tcp)
	}

	if a == nil {
		return Endpoint{}
	}

	ep, err := Parse(a.String())
	if err != nil {
		return Endpoint{}
	}

	return ep
}

func fromAddr(addr netip.Addr, port uint16) Endpoint {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}

	family := IPv6
	if addr.Is4() {
		family = IPv4
	}

	return Endpoint{addr: addr, port: port, family: family}
}

// Address returns the textual address, or an empty string for the dual-stack
// wildcard.
func (e Endpoint) Address() string {
	if !e.addr.IsValid() {
		return ""
	}

	return e.addr.String()
}

// Port returns the port number.
func (e Endpoint) Port() int {
	return int(e.port)
}

// Family returns the address family.
func (e Endpoint) Family() Family {
	return e.family
}

// IsZero reports whether e is the zero Endpoint.
func (e Endpoint) IsZero() bool {
	return e == Endpoint{}
}

// String returns "address:port", bracketing IPv6 addresses.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address(), strconv.Itoa(int(e.port)))
}

// Network returns the dial/listen network name matching the family:
// "tcp4", "tcp6" or "tcp".
func (e Endpoint) Network() string {
	switch e.family {
	case IPv4:
		return "tcp4"
	case IPv6:
		return "tcp6"
	default:
		return "tcp"
	}
}

// AddrPort returns e as a netip.AddrPort. The dual-stack wildcard maps to an
// invalid address.
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.addr, e.port)
}

// TCPAddr returns e as a *net.TCPAddr.
func (e Endpoint) TCPAddr() *net.TCPAddr {
	if !e.addr.IsValid() {
		return &net.TCPAddr{Port: int(e.port)}
	}

	return net.TCPAddrFromAddrPort(e.AddrPort())
}

// UDPAddr returns e as a *net.UDPAddr.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	if !e.addr.IsValid() {
		return &net.UDPAddr{Port: int(e.port)}
	}

	return net.UDPAddrFromAddrPort(e.AddrPort())
}
