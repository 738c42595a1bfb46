// Package apps provides the catalog of known applications for GlassCloud.
//
// The catalog is seeded from a YAML manifest at startup and consulted for
// app kind (system, core, background), lifecycle webhook URLs, and
// allowed-stream glob patterns. Packages with no manifest entry are
// unrestricted so the core stays usable without one.
//
// Example Usage:
//
//	reg := apps.NewRegistry(log)
//	loaded, err := reg.LoadManifest("configs/apps.yaml")
//	reg.SeedDefaults(cfg.Apps.DashboardPackage, cfg.Apps.CorePackage)
//	if reg.AllowsStream(pkg, sel) { ... }
package apps
