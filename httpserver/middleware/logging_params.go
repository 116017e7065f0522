/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/mobgames/site/log"
)

// loggableIntMap is written as a nested object of int64 fields.
type loggableIntMap map[string]int64

func (m loggableIntMap) EncodeLogfObject(e logf.FieldEncoder) error {
	for k, v := range m {
		e.EncodeFieldInt64(k, v)
	}
	return nil
}

// LoggingParams collects data that handlers and inner middlewares want to see
// in the "response completed" line of the Logging middleware.
// The RateLimit middleware adds the rate limit key, the outbound HTTP client adds time slots of upstream calls.
// It's safe for concurrent use.
type LoggingParams struct {
	mu        sync.Mutex
	fields    []log.Field
	timeSlots loggableIntMap
}

// ExtendFields adds fields to the final log line.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.mu.Lock()
	lp.fields = append(lp.fields, fields...)
	lp.mu.Unlock()
}

// AddTimeSlotDurationInMs accumulates the duration in milliseconds under the given name of the "time_slots" field.
// Time slots are logged for slow requests only.
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.timeSlots == nil {
		lp.timeSlots = loggableIntMap{}
	}
	lp.timeSlots[name] += dur.Milliseconds()
}

func (lp *LoggingParams) snapshot() ([]log.Field, loggableIntMap) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	fields := append([]log.Field(nil), lp.fields...)
	if len(lp.timeSlots) == 0 {
		return fields, nil
	}
	slots := make(loggableIntMap, len(lp.timeSlots))
	for k, v := range lp.timeSlots {
		slots[k] = v
	}
	return fields, slots
}
