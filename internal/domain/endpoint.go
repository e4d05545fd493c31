package domain

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is the address of a host receiver. The zero value means no host is known.
type Endpoint struct {
	Host string
	Port int
}

// IsZero reports whether no endpoint is set.
func (e Endpoint) IsZero() bool {
	return e.Host == ""
}

// String returns host:port, or "" for the zero endpoint.
func (e Endpoint) String() string {
	if e.IsZero() {
		return ""
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// BaseURL returns the http base URL of the endpoint.
func (e Endpoint) BaseURL() string {
	return "http://" + e.String()
}

// ParseEndpoint parses host:port. An empty string yields the zero endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}, nil
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", s, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: invalid port", s)
	}
	return Endpoint{Host: host, Port: p}, nil
}
