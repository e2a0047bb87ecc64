// Package generator is the client side of the external 3D model generation
// service. A Client performs exactly one request per call and never retries.
package generator

import (
	"context"
	"errors"
)

var (
	// ErrPermanent marks failures that will not succeed on resubmission
	// (rejected prompt, bad credentials, malformed response).
	ErrPermanent = errors.New("permanent error")
	// ErrTransient marks network failures and overloaded-service responses.
	ErrTransient = errors.New("transient error")
)

// ModelHandle identifies a generation task accepted by the service.
type ModelHandle struct {
	ID     string `json:"model_id"`
	Status string `json:"status"`
}

// Client submits a prompt to the generation service.
type Client interface {
	Generate(ctx context.Context, prompt string) (ModelHandle, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, prompt string) (ModelHandle, error)

func (f ClientFunc) Generate(ctx context.Context, prompt string) (ModelHandle, error) {
	return f(ctx, prompt)
}

// Request is the body sent for one generation.
type Request struct {
	Prompt       string `json:"prompt"`
	Mode         string `json:"mode"`
	ArtStyle     string `json:"art_style"`
	ShouldRemesh bool   `json:"should_remesh"`
}
