/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelDomain = "domain"
	metricsLabelCode   = "code"
	metricsLabelStatus = "status"
)

// responseErrors counts error responses, nil until MustInitAndRegisterMetrics is called.
var responseErrors *prometheus.CounterVec

// MustInitAndRegisterMetrics creates the <namespace>_restapi_response_errors_total counter
// and registers it in the default registry. It panics if the counter is already registered.
func MustInitAndRegisterMetrics(namespace string) {
	responseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restapi",
		Name:      "response_errors_total",
		Help:      "Number of error responses sent to clients by error domain, code and HTTP status.",
	}, []string{metricsLabelDomain, metricsLabelCode, metricsLabelStatus})
	prometheus.MustRegister(responseErrors)
}

// UnregisterMetrics removes the counter from the default registry.
func UnregisterMetrics() {
	if responseErrors != nil {
		prometheus.Unregister(responseErrors)
		responseErrors = nil
	}
}

func collectResponseError(httpStatusCode int, err *Error) {
	if responseErrors == nil {
		return
	}
	responseErrors.With(prometheus.Labels{
		metricsLabelDomain: err.Domain,
		metricsLabelCode:   err.Code,
		metricsLabelStatus: strconv.Itoa(httpStatusCode),
	}).Inc()
}
