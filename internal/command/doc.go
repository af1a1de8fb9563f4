// Package command maps command names to asynchronous handlers invoked with
// a JSON payload and the caller's Source (tab and document URL).
//
// Internal commands are callable by other packages only; public ones are
// also exposed through the HTTP API.
//
//	reg := command.NewRegistry()
//	redirector.RegisterCommands(reg)
//	res, err := reg.Call(ctx, "TabOpen", tabs.OpenOptions{URL: u}, src)
package command
