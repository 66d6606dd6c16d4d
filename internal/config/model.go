// internal/config/model.go
//
// Typed configuration model for routemgrd.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from up to three overlay layers:
//
//   • optional `.env`                  – dotenv values for local dev,
//   • optional `conf/routemgr.yaml`    – static file, lowest precedence,
//   • process environment variables    – highest precedence, matching the
//     exact names spec.md §6.2 defines (DATABASE_URL, ROUTE_CHECK_INTERVAL,
//     APITOKEN, PORT).
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the vaultClient in internal/config/vault.go before validation,
// so the model itself only ever holds plain strings.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"` matching the spec's literal variable
//     names, not a namespaced tree — this service has no multi-tenant
//     config surface to namespace.
package config

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the process lifetime.
type Config struct {
	Port               int    `koanf:"PORT"                 validate:"required,gt=0,lt=65536"`
	DatabaseURL        string `koanf:"DATABASE_URL"          validate:"required"`
	RouteCheckInterval int    `koanf:"ROUTE_CHECK_INTERVAL"  validate:"required,gt=0"`
	APIToken           string `koanf:"APITOKEN"              validate:"required"`
}
