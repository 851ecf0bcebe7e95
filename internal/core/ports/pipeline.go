// Package ports defines the core interfaces for the gateway.
// This file contains the ingress pipeline stage and handler contracts.
package ports

import (
	"context"
	"net/http"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
)

// StageAction is the result action from a pipeline stage.
type StageAction string

const (
	// ActionContinue passes the (possibly mutated) context to the next stage.
	ActionContinue StageAction = "continue"
	// ActionRespond terminates the pipeline with a stage-built response.
	ActionRespond StageAction = "respond"
	// ActionReject terminates the pipeline with an error envelope.
	ActionReject StageAction = "reject"
)

// Response is a terminal response produced by a stage, such as a preflight
// answer or a redirect.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// StageOutput is returned from a pipeline stage.
type StageOutput struct {
	// Action indicates what should happen next.
	Action StageAction
	// Response is set when Action is respond.
	Response *Response
	// Envelope is set when Action is reject.
	Envelope *domain.ErrorEnvelope
}

// Continue lets the request proceed to the next stage.
func Continue() *StageOutput {
	return &StageOutput{Action: ActionContinue}
}

// Respond terminates the pipeline with resp.
func Respond(resp *Response) *StageOutput {
	return &StageOutput{Action: ActionRespond, Response: resp}
}

// Reject terminates the pipeline with env.
func Reject(env *domain.ErrorEnvelope) *StageOutput {
	return &StageOutput{Action: ActionReject, Envelope: env}
}

// Stage is one decision step of the ingress pipeline. Stages never write to
// the connection; the executor does.
type Stage interface {
	// Name returns the unique identifier for this stage.
	Name() string
	// Process inspects and may mutate rc. An error is an unexpected failure
	// and is translated to an internal error envelope.
	Process(ctx context.Context, rc *domain.RequestContext) (*StageOutput, error)
}

// Handler is a domain collaborator reached through the dispatch table.
// Returning an *domain.ErrorEnvelope keeps its kind and status; any other
// error becomes an internal error.
type Handler interface {
	ServeIngress(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) error

// ServeIngress calls f.
func (f HandlerFunc) ServeIngress(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) error {
	return f(w, r, rc)
}

// WrapHTTP adapts a plain http.Handler that reports no errors.
func WrapHTTP(h http.Handler) Handler {
	return HandlerFunc(func(w http.ResponseWriter, r *http.Request, _ *domain.RequestContext) error {
		h.ServeHTTP(w, r)
		return nil
	})
}
