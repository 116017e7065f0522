/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"context"
	"fmt"
	"net"
	"time"
)

// GetLocalAddrWithFreeTCPPort returns a loopback address with a TCP port nobody listens on at the moment.
func GetLocalAddrWithFreeTCPPort() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	addr := ln.Addr().String()
	if err = ln.Close(); err != nil {
		panic(err)
	}
	return addr
}

// WaitListeningServer polls addr until a TCP connection succeeds or timeout elapses.
func WaitListeningServer(addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var dialer net.Dialer
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server on %s is not listening after %s: %w", addr, timeout, err)
		case <-ticker.C:
		}
	}
}
