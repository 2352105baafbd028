package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
		wantPath string
	}{
		{
			name: "IPv4 with TXT record",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "printhost on octopi"},
				HostName:      "octopi.local.",
				Port:          5000,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
				Text:          []string{"path=/", "version=1.0.0"},
			},
			wantIP:   "192.168.4.16",
			wantPort: 5000,
			wantPath: "/",
		},
		{
			name: "no port specified (should default)",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "bench"},
				AddrIPv4:      []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantIP:   "172.16.0.1",
			wantPort: DefaultPort,
			wantPath: "/",
		},
		{
			name: "proxied with path prefix",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "proxied"},
				Port:          80,
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
				Text:          []string{"path=/printer/"},
			},
			wantIP:   "10.0.0.5",
			wantPort: 80,
			wantPath: "/printer/",
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "v6"},
				Port:          5000,
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantIP:   "fe80::1",
			wantPort: 5000,
			wantPath: "/",
		},
		{
			name: "both families (should prefer IPv4)",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "dual"},
				Port:          5000,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::2")},
			},
			wantIP:   "192.168.1.50",
			wantPort: 5000,
			wantPath: "/",
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ghost"},
				Port:          5000,
			},
			wantNil: true,
		},
		{
			name: "no instance name",
			entry: &zeroconf.ServiceEntry{
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if inst != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", inst)
				}
				return
			}
			if inst == nil {
				t.Fatal("parseServiceEntry() = nil, want instance")
			}

			if inst.Name != tt.entry.Instance {
				t.Errorf("inst.Name = %q, want %q", inst.Name, tt.entry.Instance)
			}
			if inst.IP != tt.wantIP {
				t.Errorf("inst.IP = %v, want %v", inst.IP, tt.wantIP)
			}
			if inst.Port != tt.wantPort {
				t.Errorf("inst.Port = %v, want %v", inst.Port, tt.wantPort)
			}
			if inst.Path != tt.wantPath {
				t.Errorf("inst.Path = %v, want %v", inst.Path, tt.wantPath)
			}
			if time.Since(inst.DiscoveredAt) > time.Second {
				t.Errorf("inst.DiscoveredAt is not recent: %v", inst.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntryMetadata(t *testing.T) {
	inst := parseServiceEntry(&zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "printhost on octopi"},
		AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
		Text:          []string{"path=/", "version=1.2.3", "flag", "model=a=b"},
	})
	if inst == nil {
		t.Fatal("parseServiceEntry() = nil, want instance")
	}

	expected := map[string]string{
		"path":    "/",
		"version": "1.2.3",
		"flag":    "",
		"model":   "a=b",
	}
	if len(inst.Metadata) != len(expected) {
		t.Errorf("inst.Metadata has %d entries, want %d", len(inst.Metadata), len(expected))
	}
	for key, want := range expected {
		if got := inst.GetMetadata(key); got != want {
			t.Errorf("GetMetadata(%q) = %q, want %q", key, got, want)
		}
	}
	if inst.Version != "1.2.3" {
		t.Errorf("inst.Version = %q, want 1.2.3", inst.Version)
	}
}

func TestInstanceBaseURL(t *testing.T) {
	tests := []struct {
		inst Instance
		want string
	}{
		{Instance{IP: "192.168.1.5", Port: 5000, Path: "/"}, "http://192.168.1.5:5000"},
		{Instance{IP: "10.0.0.1", Port: 80, Path: "/printer/"}, "http://10.0.0.1:80/printer"},
		{Instance{IP: "fe80::1", Port: 5000, Path: "/"}, "http://[fe80::1]:5000"},
	}
	for _, tt := range tests {
		if got := tt.inst.BaseURL(); got != tt.want {
			t.Errorf("BaseURL() = %q, want %q", got, tt.want)
		}
	}

	var empty Instance
	if empty.GetMetadata("path") != "" {
		t.Error("GetMetadata() on nil metadata should be empty")
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()

	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}
