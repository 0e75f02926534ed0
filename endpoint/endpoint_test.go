package endpoint

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		address string
		port    int
		family  Family
		want    string
		err     error
	}{
		{name: "ipv4", address: "127.0.0.1", port: 8080, family: IPv4, want: "127.0.0.1:8080"},
		{name: "ipv6", address: "::1", port: 443, family: IPv6, want: "[::1]:443"},
		{name: "mapped ipv4 becomes ipv4", address: "::ffff:10.0.0.1", port: 1, family: IPv4, want: "10.0.0.1:1"},
		{name: "port zero allowed", address: "10.0.0.1", port: 0, family: IPv4, want: "10.0.0.1:0"},
		{name: "hostname rejected", address: "localhost", port: 80, err: ErrInvalidAddress},
		{name: "garbage rejected", address: "1.2.3", port: 80, err: ErrInvalidAddress},
		{name: "negative port", address: "127.0.0.1", port: -1, err: ErrInvalidPort},
		{name: "port too large", address: "127.0.0.1", port: 65536, err: ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := New(tt.address, tt.port)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, ep.String())
			assert.Equal(t, tt.family, ep.Family())
			assert.Equal(t, tt.port, ep.Port())
		})
	}
}

func TestNewFamily(t *testing.T) {
	t.Run("ipv6 literal rejected for ipv4", func(t *testing.T) {
		_, err := NewFamily("::1", 80, IPv4)
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("ipv4 literal rejected for ipv6", func(t *testing.T) {
		_, err := NewFamily("127.0.0.1", 80, IPv6)
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("matching family accepted", func(t *testing.T) {
		ep, err := NewFamily("fe80::1", 80, IPv6)
		require.NoError(t, err)
		assert.Equal(t, "fe80::1", ep.Address())
	})
}

func TestAny(t *testing.T) {
	t.Run("ipv4 wildcard", func(t *testing.T) {
		ep := Any(9000, ProtocolIPv4)
		assert.Equal(t, "0.0.0.0", ep.Address())
		assert.Equal(t, IPv4, ep.Family())
		assert.Equal(t, "tcp4", ep.Network())
	})

	t.Run("ipv6 wildcard", func(t *testing.T) {
		ep := Any(9000, ProtocolIPv6)
		assert.Equal(t, "::", ep.Address())
		assert.Equal(t, "tcp6", ep.Network())
	})

	t.Run("dual stack wildcard", func(t *testing.T) {
		ep := Any(9000, ProtocolAny)
		assert.Equal(t, "", ep.Address())
		assert.Equal(t, Unspecified, ep.Family())
		assert.Equal(t, "tcp", ep.Network())
		assert.Equal(t, ":9000", ep.String())
		assert.Equal(t, 9000, ep.TCPAddr().Port)
		assert.Nil(t, ep.TCPAddr().IP)
	})
}

func TestParse(t *testing.T) {
	t.Run("ipv4", func(t *testing.T) {
		ep, err := Parse("192.168.1.10:25")
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.10", ep.Address())
		assert.Equal(t, 25, ep.Port())
	})

	t.Run("bracketed ipv6", func(t *testing.T) {
		ep, err := Parse("[2001:db8::1]:8443")
		require.NoError(t, err)
		assert.Equal(t, IPv6, ep.Family())
		assert.Equal(t, "[2001:db8::1]:8443", ep.String())
	})

	t.Run("empty host is wildcard", func(t *testing.T) {
		ep, err := Parse(":1234")
		require.NoError(t, err)
		assert.Equal(t, Unspecified, ep.Family())
	})

	t.Run("missing port", func(t *testing.T) {
		_, err := Parse("127.0.0.1")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("non numeric port", func(t *testing.T) {
		_, err := Parse("127.0.0.1:http")
		assert.ErrorIs(t, err, ErrInvalidPort)
	})
}

func TestConversions(t *testing.T) {
	ep, err := New("10.1.2.3", 4000)
	require.NoError(t, err)

	t.Run("tcp addr", func(t *testing.T) {
		a := ep.TCPAddr()
		assert.Equal(t, "10.1.2.3:4000", a.String())
		assert.Equal(t, ep, FromTCPAddr(a))
	})

	t.Run("udp addr", func(t *testing.T) {
		assert.Equal(t, "10.1.2.3:4000", ep.UDPAddr().String())
	})

	t.Run("addr port", func(t *testing.T) {
		ap := ep.AddrPort()
		assert.Equal(t, netip.MustParseAddrPort("10.1.2.3:4000"), ap)
		assert.Equal(t, ep, FromAddrPort(ap))
	})

	t.Run("net addr", func(t *testing.T) {
		var a net.Addr = ep.TCPAddr()
		assert.Equal(t, ep, FromNetAddr(a))
		assert.True(t, FromNetAddr(nil).IsZero())
	})

	t.Run("nil tcp addr", func(t *testing.T) {
		assert.True(t, FromTCPAddr(nil).IsZero())
	})
}

func TestFamily_String(t *testing.T) {
	assert.Equal(t, "IPv4", IPv4.String())
	assert.Equal(t, "IPv6", IPv6.String())
	assert.Equal(t, "Unspecified", Unspecified.String())
	assert.Equal(t, "Unknown", Family(42).String())
}
