// Package server exposes the settings engine over HTTP.
//
// # Routes
//
//	GET  /api/settings   effective settings, api.key redacted for non-admins
//	POST /api/settings   apply a partial settings document (admin only)
//	GET  /api/version    server version
//	GET  /push           websocket stream of change events
//	GET  /metrics        Prometheus metrics, when a gatherer is configured
//
// # Authorization
//
// Callers present an API key in the X-Api-Key header or the apikey query
// parameter. The key stored at api.key makes the caller an admin while
// api.enabled is set. Keys listed in accessControl.userKeys identify
// ordinary users, who may read but not write.
//
// # Writes
//
// A POST runs as a single settings transaction. Every recognized section is
// applied field by field with the typed setters; a value that cannot be
// coerced keeps its previous setting. A recognized section that is not an
// object rejects the whole request and nothing is applied. Scripts are
// saved after the transaction commits, and one SettingsUpdated event is
// published when anything changed.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{Port: 5000, BaseDir: dir}, engine,
//	    server.WithPlugins(registry),
//	    server.WithPublisher(bus),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
package server
