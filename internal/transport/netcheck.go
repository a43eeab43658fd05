package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/florianilch/sclogin/internal/auth"
)

// DefaultDialTimeout bounds the network precheck.
const DefaultDialTimeout = 5 * time.Second

// DialChecker checks reachability by opening a TCP connection to a server.
type DialChecker struct {
	address string
	timeout time.Duration
}

// Compile-time check to ensure DialChecker implements auth.NetworkChecker
var _ auth.NetworkChecker = (*DialChecker)(nil)

// NewDialChecker creates a DialChecker for the host of rawURL, typically the
// token endpoint. A zero timeout selects DefaultDialTimeout.
func NewDialChecker(rawURL string, timeout time.Duration) (*DialChecker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", rawURL)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return nil, fmt.Errorf("invalid url %q: missing port for scheme %q", rawURL, u.Scheme)
		}
	}

	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	return &DialChecker{
		address: net.JoinHostPort(u.Hostname(), port),
		timeout: timeout,
	}, nil
}

// Check dials the server and closes the connection right away.
func (c *DialChecker) Check(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("reaching %s: %w", c.address, err)
	}
	_ = conn.Close()
	return nil
}
