/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"bytes"
	"fmt"
	"runtime/debug"
	"sync"
)

type singleFlightCall[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

// singleFlightGroup suppresses duplicate loads of the same key.
type singleFlightGroup[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*singleFlightCall[V]
}

func (g *singleFlightGroup[K, V]) Do(key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*singleFlightCall[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}
	c := &singleFlightCall[V]{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.call(c, key, fn)
	return c.val, c.err
}

// call runs fn and releases the waiters even if fn panics.
// Waiters get PanicError, the panic itself is propagated in the calling goroutine.
func (g *singleFlightGroup[K, V]) call(c *singleFlightCall[V], key K, fn func() (V, error)) {
	defer func() {
		p := recover()
		if p != nil {
			c.err = newPanicError(p)
		}
		c.wg.Done()

		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()

		if p != nil {
			panic(p)
		}
	}()
	c.val, c.err = fn()
}

// PanicError is returned to the callers waiting for a load that panicked.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.Value, p.Stack)
}

// Unwrap returns the panic value if it's an error.
func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)
	return err
}

func newPanicError(v interface{}) error {
	stack := debug.Stack()
	// Skip the "goroutine N [status]:" line, it's misleading for the waiters.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Value: v, Stack: stack}
}
