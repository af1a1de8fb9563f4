/*
Package bridge carries tagged messages between a page context (where user
scripts run) and the trusted context (where privileged work happens).

Each side owns an Endpoint. Post is one-way and never waits for the peer;
inbound messages are dispatched to the handler registered for their command,
one at a time and in arrival order, by Serve. Two transports exist: Pipe for
contexts living in the same process and WSTransport for a page context
connected over a websocket.

	pageT, hostT := bridge.Pipe()
	page := bridge.NewEndpoint("page", pageT)
	host := bridge.NewEndpoint("host", hostT)

	host.Handle(bridge.CmdGetRequestID, func(ctx context.Context, _ json.RawMessage) {
		host.Post(bridge.CmdGotRequestID, seq.Next())
	})
	go host.Serve(ctx)

Frames are JSON ({"cmd": ..., "data": ...}) encoded with sonic.
*/
package bridge
