/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
)

// Params contains common data that relates to the rate limiting procedure.
type Params struct {
	Identity string
	Category RouteCategory
	Key      string
	Decision Decision
}

// RequestHandler abstracts the transport-specific operations of the rate limiting procedure.
type RequestHandler interface {
	// GetContext returns the request context.
	GetContext() context.Context

	// GetKey extracts the client identity and the route path from the request.
	// Returns identity, route, bypass (whether to bypass rate limiting), and error.
	GetKey() (identity string, route string, bypass bool, err error)

	// Execute processes the actual request.
	Execute(params Params) error

	// OnReject handles request rejection when rate limit is exceeded.
	OnReject(params Params) error

	// OnError handles errors that occur during rate limiting.
	OnError(params Params, err error) error
}

// RequestProcessor handles the common rate limiting logic for any request type.
type RequestProcessor struct {
	limiter    Limiter
	classifier *RouteClassifier
}

// NewRequestProcessor creates a new generic request processor.
func NewRequestProcessor(limiter Limiter, classifier *RouteClassifier) (*RequestProcessor, error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter should not be nil")
	}
	if classifier == nil {
		classifier = NewRouteClassifier(nil)
	}
	return &RequestProcessor{limiter: limiter, classifier: classifier}, nil
}

// ProcessRequest contains the shared rate limiting logic.
// Rejected requests never reach Execute.
func (p *RequestProcessor) ProcessRequest(rh RequestHandler) error {
	identity, route, bypass, err := rh.GetKey()
	if err != nil {
		return rh.OnError(Params{Identity: identity}, fmt.Errorf("get key for rate limit: %w", err))
	}
	if bypass { // Rate limiting is bypassed for this request.
		return rh.Execute(Params{Identity: identity})
	}

	params := Params{Identity: identity, Category: p.classifier.Classify(route)}
	params.Key = MakeClientKey(identity, params.Category)

	if params.Decision, err = p.limiter.Allow(rh.GetContext(), params.Key, params.Category); err != nil {
		return rh.OnError(params, fmt.Errorf("rate limit: %w", err))
	}
	if !params.Decision.Allowed {
		return rh.OnReject(params)
	}
	return rh.Execute(params)
}
