package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Instance is a printhost server found on the network
type Instance struct {
	// Name is the zeroconf instance name (e.g., "printhost on octopi")
	Name string

	// Hostname is the mDNS hostname (e.g., "octopi.local.")
	Hostname string

	// IP is the advertised address, IPv4 when available
	IP string

	Port int

	// Path is the API path prefix from the TXT record
	Path string

	// Version is the server version from the TXT record
	Version string

	// Metadata contains every TXT record entry
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the instance
func (i *Instance) String() string {
	return fmt.Sprintf("%s (%s) at %s", i.Name, i.Hostname, i.BaseURL())
}

// BaseURL returns the HTTP base URL of the instance, without a trailing slash
func (i *Instance) BaseURL() string {
	host := net.JoinHostPort(i.IP, strconv.Itoa(i.Port))
	return "http://" + host + strings.TrimSuffix(i.Path, "/")
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (i *Instance) GetMetadata(key string) string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata[key]
}
