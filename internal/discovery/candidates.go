package discovery

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/bft-labs/sensorrelay/internal/domain"
)

// MaxCandidates bounds the size of an expanded candidate set.
const MaxCandidates = 1 << 16

// ExpandCandidates turns CIDR ranges, bare addresses and host:port pairs
// into a deduplicated endpoint list. Entries without a port use port.
func ExpandCandidates(specs []string, port int) ([]domain.Endpoint, error) {
	seen := make(map[domain.Endpoint]bool)
	var out []domain.Endpoint
	add := func(ep domain.Endpoint) error {
		if seen[ep] {
			return nil
		}
		if len(out) == MaxCandidates {
			return fmt.Errorf("%w: more than %d discovery candidates", domain.ErrInvalidConfig, MaxCandidates)
		}
		seen[ep] = true
		out = append(out, ep)
		return nil
	}

	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}

		if strings.Contains(spec, "/") {
			prefix, err := netip.ParsePrefix(spec)
			if err != nil {
				return nil, fmt.Errorf("%w: candidate %q: %v", domain.ErrInvalidConfig, spec, err)
			}
			prefix = prefix.Masked()
			if bits := prefix.Addr().BitLen() - prefix.Bits(); bits > 16 {
				return nil, fmt.Errorf("%w: candidate range %q is too large", domain.ErrInvalidConfig, spec)
			}
			for a := prefix.Addr(); prefix.Contains(a); a = a.Next() {
				if err := add(domain.Endpoint{Host: a.String(), Port: port}); err != nil {
					return nil, err
				}
			}
			continue
		}

		if _, _, err := net.SplitHostPort(spec); err == nil {
			ep, err := domain.ParseEndpoint(spec)
			if err != nil {
				return nil, fmt.Errorf("%w: candidate %q: %v", domain.ErrInvalidConfig, spec, err)
			}
			if err := add(ep); err != nil {
				return nil, err
			}
			continue
		}

		if err := add(domain.Endpoint{Host: spec, Port: port}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
