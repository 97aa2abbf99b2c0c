package cliutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hookvibe/hookcode-sub000/internals/timeouts"
	"github.com/hookvibe/hookcode-sub000/internals/version"
	"github.com/hookvibe/hookcode-sub000/sdk"
)

// EnsureDaemonRunning starts `hookcode serve` in the background unless a
// daemon of the same version already answers. An older daemon is replaced.
func EnsureDaemonRunning(client *sdk.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.HealthCheck)
	defer cancel()

	if remoteVersion, err := client.Version(ctx); err == nil {
		if strings.TrimSpace(remoteVersion) == version.Version() {
			return nil
		}
		return replaceDaemon(client, remoteVersion)
	}

	if err := StartDaemon(); err != nil {
		return err
	}
	return waitForDaemon(client)
}

func StartDaemon() error {
	path, err := findServeBinary()
	if err != nil {
		return err
	}

	cmd := exec.Command(path, "serve")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func waitForDaemon(client *sdk.Client) error {
	if sdk.WaitForStart(client.BaseURL(), nil) {
		return nil
	}
	return errors.New("failed to reach hookcode daemon")
}

func replaceDaemon(client *sdk.Client, remoteVersion string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.SecondShort)
	defer cancel()

	remoteVersion = strings.TrimSpace(remoteVersion)
	if err := client.Shutdown(ctx); err != nil {
		if errors.Is(err, sdk.ErrShutdownUnsupported) {
			return fmt.Errorf("hookcode daemon %s is running; please stop it and retry", remoteVersion)
		}
		return fmt.Errorf("failed to shutdown hookcode daemon %s: %w", remoteVersion, err)
	}

	if !sdk.WaitForStop(client.BaseURL()) {
		return fmt.Errorf("hookcode daemon %s did not stop", remoteVersion)
	}

	if err := StartDaemon(); err != nil {
		return err
	}
	return waitForDaemon(client)
}

func findServeBinary() (string, error) {
	executable, err := os.Executable()
	if err == nil && executable != "" {
		return executable, nil
	}

	path, err := exec.LookPath("hookcode")
	if err != nil {
		return "", fmt.Errorf("hookcode not found in PATH")
	}
	return path, nil
}
