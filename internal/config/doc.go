// Package config provides 12-factor configuration for the script host.
//
// Configuration is loaded from environment variables with defaults.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - Extension: root URL of virtual scripts, options and confirm pages
//   - Variant: browser flavor and version, private-tab replace policy
//   - Cache: lifetimes of bypass/autoclose markers, code and confirmations
//   - HTTP: trusted client timeout, retries, rate limit
//   - CDP: DevTools endpoint for driving a real browser
//   - Options: path of the YAML user options file
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("confirm pages under %s\n", cfg.Extension.ConfirmURLBase())
//
// Environment Variables:
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
//   - EXTENSION_ROOT, BROWSER, BROWSER_VERSION, BROWSER_PRIVATE_REPLACE
//   - CACHE_BYPASS_TTL, CACHE_CONFIRM_TTL, HTTP_TIMEOUT, CDP_URL, CDP_ENABLED
package config
