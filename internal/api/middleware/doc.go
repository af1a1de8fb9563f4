// Package middleware holds the gin middleware in front of the host API.
//
//   - CORS: restricts browser callers to the host's own origin
//   - RateLimit: per-IP token buckets; idle clients are forgotten
//   - GlobalRateLimit: one bucket shared by every caller
//
// Recovery and request metrics come from gin and the monitoring package.
package middleware
