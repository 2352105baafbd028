// Package discovery announces printhost servers with zeroconf and finds
// them again from the command line.
//
// Servers advertise themselves as "_printhost._tcp" services in the
// "local." domain. The TXT record carries the API path prefix and the
// server version:
//
//	path=/
//	version=1.4.0
//
// # Announcing
//
// The Announcer is an extension with the identifier "discovery". Its
// settings live under plugins.discovery:
//
//   - publicName: Instance name shown to browsers (defaults to "printhost on <hostname>")
//   - publicPort: Port to advertise when a proxy sits in front of the server
//   - pathPrefix: Path prefix of the API behind that proxy
//
// Register it with the extension registry so the section shows up in the
// settings API, then run it as a server task once the engine exists:
//
//	announcer := discovery.NewAnnouncer(5000, discovery.WithBus(bus))
//	_ = registry.Register(announcer)
//	engine, _ := settings.New(storage, settings.WithExtraDefaults(registry.Defaults()))
//	srv, _ := server.New(cfg, engine, server.WithTask("announce", announcer.Task(engine)))
//
// # Browsing
//
//	scanner := discovery.NewScanner()
//	instances, err := scanner.Scan(ctx)
//	for _, inst := range instances {
//	    fmt.Println(inst.Name, inst.BaseURL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Firewall must allow mDNS (UDP port 5353)
package discovery
