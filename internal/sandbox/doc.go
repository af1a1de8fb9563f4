/*
Package sandbox runs user scripts in page contexts.

# Overview

A Page is a goja runtime plus the event loop that owns it. Each script run
goes through three steps:

 1. Build the script's capability object (package gmapi).
 2. Call the script body, either with a scope object in front of the page
    global (granted scripts) or with GM, GM_info and unsafeWindow as
    parameters (everything else).
 3. Run the loop (goja_nodejs eventloop): bridge responses, timers,
    intervals and immediates scheduled by the script run on the same
    goroutine until nothing holds the loop. In-flight requests hold it
    until their loadend. Work left over from an interrupted run is
    dropped before the next one starts.

The page reaches the trusted context only through its bridge endpoint;
requests.Manager is registered on it at construction.

# Security Model

Scripts cannot:
  - Load Node-style modules (require, process, module, exports are removed)
  - Overwrite their API or the page global through the scope object
  - Run past Config.Timeout; the VM is interrupted and the loop reset

# Usage

	page := sandbox.New(sandbox.DefaultConfig(), transport, sandbox.WithLogger(logger))
	go page.Serve(ctx)
	res, err := page.Execute(ctx, sandbox.Job{Script: &s, Code: code})
*/
package sandbox
