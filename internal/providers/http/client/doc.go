// Package client is the trusted HTTP client shared by the request handler
// and the fetch primitive.
//
// Built on go-resty/resty with the transport of hashicorp/go-retryablehttp:
//   - Automatic retries with backoff
//   - Context-based cancellation and per-client timeout
//   - Optional global rate limit (golang.org/x/time/rate)
//   - One circuit breaker per host, so a dead mirror only fails itself
//   - A cookie-less twin for anonymous requests
//
// Example Usage:
//
//	c := client.NewClient(client.DefaultOptions())
//	resp, err := c.Do(ctx, client.Request{Method: "GET", URL: u})
package client
