// Package server hosts the Fiber HTTP service in front of the cache
// coordinator: request middleware, the /cache and /api routes, and the
// factory that opens storage backends from config. Diagnostics endpoints
// under /-/ live in the routes subpackage so callers can opt into them.
package server
