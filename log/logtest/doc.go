/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest contains loggers for tests: Recorder keeps every entry in memory
// so a test can check what was logged, NewLogger prints entries synchronously.
package logtest
