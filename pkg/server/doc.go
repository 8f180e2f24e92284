// Package server serves a parameterised page over HTTP and a live
// WebSocket channel.
//
// Each request belongs to a session, identified by the params_session
// cookie and managed by a session.Manager. A request runs one render pass
// under Session.Run:
//
//  1. A params.Registry is bound to the session state and the request's
//     query string.
//  2. The Page registers its parameters. Only the session's first pass
//     reads the query string; later passes find them registered.
//  3. A widget change, if any, is decoded into the session state and
//     pushed into its parameter with UpdateFromExternal.
//  4. The parameters are exported back to the query string.
//
// # Endpoints
//
//	GET  /params?<query>              render, returns a PageView
//	POST /params/{key}?<query>        form value=<raw>: widget change
//	POST /params/_export_all?<query>  form value=<bool>: export mode
//	GET  /live?<query>                WebSocket live channel
//	GET  /metrics                     Prometheus, when a Gatherer is set
//	GET  /healthz
//
// On the live channel the browser sends change and export_all messages and
// the server answers each rewrite of the query string with a url_replace
// message, or an error message when the change is rejected.
//
// # Usage
//
//	srv := server.New(server.Config{
//	    Address: ":8080",
//	    Manager: manager,
//	    Page: func(reg *params.Registry) error {
//	        _, err := reg.RegisterFloat("ratio", 5.0)
//	        return err
//	    },
//	})
//	err := srv.Run(ctx)
package server
