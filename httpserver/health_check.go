/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/restapi"
)

// StatusClientClosedRequest is nginx's non-standard status for requests the client gave up on.
const StatusClientClosedRequest = 499

type HealthCheckStatus int

const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps component names (e.g. "redis") to their statuses.
type HealthCheckResult = map[string]HealthCheckStatus

// HealthCheck is called on every /healthz request.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler serves /healthz. The response is 200 when every component is healthy,
// 503 when some component is not, and 500 when the check itself fails.
type HealthCheckHandler struct {
	check HealthCheck
}

// NewHealthCheckHandler creates a handler. A nil fn reports no components.
func NewHealthCheckHandler(fn HealthCheck) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) { return HealthCheckResult{}, ctx.Err() }
	}
	return &HealthCheckHandler{check: fn}
}

func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContextOrDisabled(ctx)

	result, err := h.check(ctx)
	if err == nil {
		err = ctx.Err()
	} else {
		logger.Error("error while checking health", log.Error(err))
	}
	switch {
	case errors.Is(err, context.Canceled):
		rw.WriteHeader(StatusClientClosedRequest)
		return
	case err != nil:
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	data := healthCheckResponseData{Components: make(map[string]bool, len(result))}
	status := http.StatusOK
	for name, st := range result {
		healthy := st == HealthCheckStatusOK
		data.Components[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
		}
	}
	restapi.RespondCodeAndJSON(rw, status, data, logger)
}
