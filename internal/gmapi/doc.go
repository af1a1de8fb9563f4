// Package gmapi builds the capability object a user script sees.
//
// Each granted name resolves through a fixed cascade and lands in one of two
// namespaces:
//   - Flat: GM_xmlhttpRequest, GM_getValue, GM_log, ...
//   - Nested: GM.xmlHttpRequest, GM.getValue, ... (promise based)
//
// Names that resolve nowhere are dropped. A script that ends up with no
// capability gets no wrapper and runs against the page global directly.
//
// Example Usage:
//
//	api, wrapper := gmapi.Build(&s, &gmapi.Env{
//		VM:       vm,
//		Loop:     page,
//		Bridge:   endpoint,
//		Requests: requests.NewManager(endpoint),
//	})
//	if wrapper != nil {
//		v, ok := wrapper.Resolve("GM_getValue")
//	}
package gmapi
