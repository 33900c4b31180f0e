// Package http implements the gin control API over the supervisor, bus,
// gateway and window state store.
//
// Routes:
//
//	GET    /health
//	GET    /workers               POST /workers
//	GET    /workers/:id           DELETE /workers/:id
//	POST   /workers/:id/bounds    POST /workers/:id/show
//	POST   /workers/:id/hide      POST /workers/:id/request
//	GET    /channels              POST /channels/:id/send
//	GET    /windows
//
// Domain errors map onto status codes: denied 403, schema 422, unknown
// worker 404, duplicate 409, timeout 504, worker gone 410. Bodies are
// bound with gin and the binding tags on the shared request types; build
// with -tags=sonic to have gin decode them with sonic.
package http
