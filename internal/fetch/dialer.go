package fetch

import (
	"context"
	"fmt"
	"net"
	"time"
)

// privateRanges are CIDR blocks for private / loopback IPs.
var privateRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, block, _ := net.ParseCIDR(cidr)
		privateRanges = append(privateRanges, block)
	}
}

func isPrivateIP(ip net.IP) bool {
	for _, block := range privateRanges {
		if block.Contains(ip) {
			return true
		}
	}
	return ip.IsUnspecified()
}

type dialer struct {
	net          *net.Dialer
	allowPrivate bool
}

func newDialer(timeout time.Duration, allowPrivate bool) *dialer {
	return &dialer{net: &net.Dialer{Timeout: timeout}, allowPrivate: allowPrivate}
}

// DialContext resolves DNS then rejects private IPs before connecting.
func (d *dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.allowPrivate {
		return d.net.DialContext(ctx, network, addr)
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}

	for _, ip := range ips {
		if isPrivateIP(ip.IP) {
			return nil, fmt.Errorf("connection to private IP %s is not allowed", ip.IP)
		}
	}

	// Connect to the first resolved IP.
	return d.net.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}
