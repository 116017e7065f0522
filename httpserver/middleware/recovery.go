/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/mobgames/site/log"
	"github.com/mobgames/site/restapi"
)

// RecoveryDefaultStackSize is how many bytes of the panicking goroutine's stack are logged.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts configures Recovery. Zero StackSize disables stack logging.
type RecoveryOpts struct {
	StackSize int
}

// Recovery turns a panic in a handler into a logged error and the 500 internal error response.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					handlePanic(rw, r, p, errDomain, opts.StackSize)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

func handlePanic(rw http.ResponseWriter, r *http.Request, p interface{}, errDomain string, stackSize int) {
	logger := GetLoggerFromContextOrDisabled(r.Context())

	// The handler aborted the response on purpose. net/http recovers it silently, so it goes on.
	if p == http.ErrAbortHandler { //nolint:errorlint
		logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
		panic(p)
	}

	var fields []log.Field
	if stackSize > 0 {
		buf := make([]byte, stackSize)
		fields = append(fields, log.Bytes("stack", buf[:runtime.Stack(buf, false)]))
	}
	logger.Error(fmt.Sprintf("Panic: %+v", p), fields...)
	restapi.RespondInternalError(rw, errDomain, logger)
}
