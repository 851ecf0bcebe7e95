// Package pipeline implements the ingress pipeline that every request passes
// through before it reaches a domain collaborator.
//
// # Architecture
//
// The Executor runs an explicit ordered list of stages and then hands the
// surviving request to the Dispatcher:
//
//	Origin → Alias → Body → Dispatch → (handler | Translator)
//
// Each stage inspects the per-request domain.RequestContext and returns one of
// three outcomes:
//   - continue: the (possibly mutated) context moves to the next stage
//   - respond: a stage-built response terminates the request (preflight, redirect)
//   - reject: an error envelope terminates the request
//
// Stages never write to the connection. The Executor writes stage responses
// and the Translator writes every error envelope, so no partial response is
// sent before the terminal decision is known.
//
// # Error Envelope
//
// All failures are written as
//
//	{"error": {"kind": "RouteNotFound", "status": 404, "message": "...", "context": {...}}}
//
// In production mode the context is dropped and internal messages are
// replaced with a generic one.
package pipeline
