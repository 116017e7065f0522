/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import "fmt"

// MockT records failures of the helpers under test instead of failing the real test.
type MockT struct {
	Failed bool
	Msgs   []string
}

func (t *MockT) FailNow() {
	t.Failed = true
}

func (t *MockT) Errorf(format string, args ...interface{}) {
	t.Failed = true
	t.Msgs = append(t.Msgs, fmt.Sprintf(format, args...))
}
