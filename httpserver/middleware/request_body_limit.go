/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"code.cloudfoundry.org/bytefmt"

	"github.com/mobgames/site/log"
	"github.com/mobgames/site/restapi"
)

// RequestBodyLimit rejects requests with bodies larger than maxSizeBytes.
// A request declaring a too large Content-Length gets 413 before the next handler is called,
// otherwise the body is wrapped so reading past the limit fails with *restapi.RequestBodyTooLargeError.
func RequestBodyLimit(maxSizeBytes uint64, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if r.ContentLength >= 0 && uint64(r.ContentLength) > maxSizeBytes {
				logger := GetLoggerFromContext(r.Context())
				if logger != nil {
					logger.Warn("request body exceeds the limit",
						log.String("content_length", bytefmt.ByteSize(uint64(r.ContentLength))),
						log.String("limit", bytefmt.ByteSize(maxSizeBytes)))
				}
				restapi.RespondMalformedRequestError(rw, errDomain, restapi.NewTooLargeMalformedRequestError(maxSizeBytes), logger)
				return
			}
			restapi.SetRequestMaxBodySize(rw, r, maxSizeBytes)
			next.ServeHTTP(rw, r)
		})
	}
}
