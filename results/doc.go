// Package results keeps a short-lived history of execution responses.
//
// Every execution that produced a workspace identifier is recorded under that
// identifier so clients can fetch the response again through
// GET /code/executions/:id. Three backends are available: an in-process TTL
// map (memory), Redis (redis) and a no-op store (none).
package results
