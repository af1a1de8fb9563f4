// Package types provides data structures shared across scripthost packages.
//
// Core Types:
//   - Tab: a browser tab (id, window id, URL, load status, privacy flag)
//   - TabChange: the properties changed by one tab update
//   - Source: the invocation context handed to command handlers
//
// Tab ids are opaque numbers; -1 stands for "no tab" (a background caller).
package types
