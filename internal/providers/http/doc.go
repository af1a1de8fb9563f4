// Package http is the trusted half of the privileged request primitive.
//
// A Session serves one page connection:
//   - GetRequestId: issues the next id and answers GotRequestId
//   - HttpRequest: performs the request through client.Client and streams
//     HttpRequested events, always ending in loadend
//   - AbortRequest: cancels a running request, or marks one that has not
//     arrived yet so it finishes as aborted
//   - TabOpen, TabClose, TabFocus: forwarded to the command registry
//
// Example Usage:
//
//	h := http.NewHandler(hc, http.WithLogger(logger), http.WithCommands(reg))
//	session := h.Attach(endpoint, &types.Source{Tab: tab})
//	_ = endpoint.Serve(ctx)
//	session.Close()
package http
