// SPDX-License-Identifier: MPL-2.0

// Package mount maps filesystem paths to (proxy_id, remote_path) pairs
// using an ordered mount table (spec.md §4.3), and loads the YAML mount
// configuration file (spec.md §6).
package mount

// Location identifies where a stage can run or a file lives: the client
// host, or a named proxy (spec.md §3 "PlacementPlan").
type Location struct {
	client bool
	ip     string
}

// Client is the client-host location.
func Client() Location { return Location{client: true} }

// Proxy is the location of the proxy reachable at ip.
func Proxy(ip string) Location { return Location{ip: ip} }

// IsClient reports whether this location is the client host.
func (l Location) IsClient() bool { return l.client }

// IP returns the proxy's IP address. Empty for Client.
func (l Location) IP() string { return l.ip }

// String renders the location the way the mount config file and wire
// protocol spell it ("client" or a bare IP string).
func (l Location) String() string {
	if l.client {
		return "client"
	}
	return l.ip
}

// Equal reports whether two locations name the same place.
func (l Location) Equal(o Location) bool {
	return l.client == o.client && l.ip == o.ip
}
