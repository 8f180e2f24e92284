// Package protocol defines the JSON messages exchanged over the live
// WebSocket channel of a parameter page.
//
// The client reports widget edits; the server answers each with the query
// string the browser should show, or with an error.
//
// # Client → Server
//
//	{"type":"change","key":"start_date","value":"2021-11-03"}
//	{"type":"export_all","value":"true"}
//
// # Server → Client
//
//	{"type":"url_replace","query":{"start_date":"2021-11-03"},"encoded":"start_date=2021-11-03"}
//	{"type":"error","code":"Conversion","message":"...","key":"foo"}
//
// A url_replace always carries the complete query string. The client
// replaces the address bar's query with it; it never merges.
package protocol
