package sdk

import (
	"context"
	"net/http"
	"time"

	"github.com/hookvibe/hookcode-sub000/internals/timeouts"
)

const startAttempts = 8

type InfoLogger interface {
	Info(msg string, args ...any)
}

func IsRunning(baseURL string) bool {
	return IsRunningWithTimeout(baseURL, timeouts.HealthCheck)
}

func IsRunningWithTimeout(baseURL string, timeout time.Duration) bool {
	if baseURL == "" {
		return false
	}
	if timeout <= 0 {
		timeout = timeouts.HealthCheck
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client := NewClient(
		WithBaseURL(baseURL),
		WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	_, err := client.Version(ctx)
	return err == nil
}

// WaitForStart polls the daemon with a linear backoff until it answers.
func WaitForStart(baseURL string, logger InfoLogger) bool {
	for i := range startAttempts {
		if IsRunning(baseURL) {
			return true
		}
		if logger != nil {
			logger.Info("Waiting for daemon to start", "attempt", i)
		}
		time.Sleep(time.Duration(i+1) * 150 * time.Millisecond)
	}
	return IsRunning(baseURL)
}

// WaitForStop reports whether the daemon stopped answering in time.
func WaitForStop(baseURL string) bool {
	for i := range startAttempts {
		if !IsRunning(baseURL) {
			return true
		}
		time.Sleep(time.Duration(i+1) * 150 * time.Millisecond)
	}
	return false
}
