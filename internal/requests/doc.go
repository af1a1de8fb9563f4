// Package requests is the page-side half of the privileged HTTP primitive.
//
// Create returns a Handle at once; the request itself runs in the trusted
// context. The exchange over the bridge is:
//
//	page                       trusted
//	GetRequestId        --->
//	                    <---   GotRequestId <id>
//	HttpRequest {id...} --->
//	                    <---   HttpRequested {id, type: loadstart}
//	                    <---   ...
//	                    <---   HttpRequested {id, type: loadend}
//
// Ids are handed out in the order GetRequestId arrives, so the oldest
// queued request always takes the next id.
package requests
