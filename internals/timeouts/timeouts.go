// Package timeouts holds the client-side waits shared by the CLI and SDK.
package timeouts

import "time"

const (
	// HealthCheck bounds a single daemon liveness check.
	HealthCheck = 300 * time.Millisecond
	// PollInterval is how often the CLI re-reads a task it is waiting on.
	PollInterval = 2 * time.Second
	SecondShort  = 2 * time.Second
	// SecondDefault bounds ordinary API calls.
	SecondDefault = 10 * time.Second
	// Wait is the default ceiling for `hookcode trigger --wait`.
	Wait = 45 * time.Minute
)
