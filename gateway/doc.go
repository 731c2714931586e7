// Package gateway is the HTTP and WebSocket front door of a lattice node.
//
//	POST /intents        queue an intent; 202 {"status":"queued","intent_id":...}
//	GET  /intents/{id}   collect a stored result once; 404 until it exists
//	GET  /ws/{id}        WebSocket that receives the result as JSON, then closes
//	GET  /healthz        liveness
//	GET  /metrics        Prometheus exposition when a handler is configured
package gateway
