package speedtest

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// Runner executes an external command and returns its stdout and stderr
// separately. Injectable for testing.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// killGrace is how long a child gets between SIGTERM and SIGKILL after its
// deadline expires.
const killGrace = 5 * time.Second

// execRunner runs the command under ctx's deadline. On expiry the child is
// asked to terminate and force-killed after killGrace, so a wedged tool can
// never block the orchestrator indefinitely.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(termSignal)
	}
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
