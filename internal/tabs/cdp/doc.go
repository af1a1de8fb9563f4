// Package cdp implements the tab surface on a Chromium instance reached
// through the DevTools protocol.
//
// Browser maps page targets onto tabs and polls the target list for created
// and updated events. Interceptor pauses .user.js document requests with the
// Fetch domain and resumes, fails or redirects them as the install
// redirector decides.
package cdp
