// Package main runs one user script in a page context.
//
// The page connects to a running scripthost server over its /bridge
// websocket, so GM_xmlhttpRequest and tab commands are served by the
// server's trusted side. Console output is printed once the script and the
// requests it started have finished; a returned value is printed as JSON.
//
// Usage:
//
//	./scriptrun -url https://example.com/ -tab 1 hello.user.js
package main
