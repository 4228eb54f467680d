// SPDX-License-Identifier: MPL-2.0

package mount

import (
	"fmt"
	"strings"
)

// linkEndpoint is one side of a link key: either the client host or a
// proxy IP. It reuses Location's client/ip shape for endpoint identity.
type linkEndpoint = Location

// ParseLinkKey parses a link-speed hint key in the form "(A,B)" where A and
// B are each either "client" or a proxy IP, per the mount config file's
// links map (SPEC_FULL.md, grounded on original_source/shell/src/config/network.rs
// link table keys). Order within the parentheses is not significant.
func ParseLinkKey(key string) (linkEndpoint, linkEndpoint, error) {
	trimmed := strings.TrimSpace(key)
	if !strings.HasPrefix(trimmed, "(") || !strings.HasSuffix(trimmed, ")") {
		return Location{}, Location{}, fmt.Errorf("link key %q: expected format (A,B)", key)
	}
	inner := trimmed[1 : len(trimmed)-1]
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		return Location{}, Location{}, fmt.Errorf("link key %q: expected exactly two endpoints", key)
	}
	a := parseEndpoint(strings.TrimSpace(parts[0]))
	b := parseEndpoint(strings.TrimSpace(parts[1]))
	return a, b, nil
}

func parseEndpoint(s string) linkEndpoint {
	if s == "client" {
		return Client()
	}
	return Proxy(s)
}

// linkKey is an unordered pair of endpoints, used as a map key for LinkHints.
type linkKey struct {
	a, b string
}

func newLinkKey(a, b linkEndpoint) linkKey {
	sa, sb := a.String(), b.String()
	if sa > sb {
		sa, sb = sb, sa
	}
	return linkKey{a: sa, b: sb}
}

// LinkHints holds optional link-speed hints (megabits per second) between
// pairs of locations. Per spec.md §9, the scheduler treats these as inert
// advisory data by default: nothing in the placement algorithm currently
// consults them, but the wire format and storage are part of the mount
// configuration surface, so they are parsed and kept available for a
// future cost-aware heuristic.
type LinkHints struct {
	speeds map[linkKey]int
}

// NewLinkHints returns an empty set of link hints.
func NewLinkHints() *LinkHints {
	return &LinkHints{speeds: make(map[linkKey]int)}
}

// Set records the link speed, in Mbps, between two endpoints.
func (h *LinkHints) Set(a, b linkEndpoint, mbps int) {
	h.speeds[newLinkKey(a, b)] = mbps
}

// Lookup returns the recorded speed between two endpoints and whether one
// was found. The pair is unordered: Lookup(a, b) == Lookup(b, a).
func (h *LinkHints) Lookup(a, b linkEndpoint) (int, bool) {
	mbps, ok := h.speeds[newLinkKey(a, b)]
	return mbps, ok
}

// Len reports the number of recorded link hints.
func (h *LinkHints) Len() int {
	return len(h.speeds)
}
