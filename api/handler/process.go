package handler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"
)

// ProcessFunc runs one CLI invocation with the given positional arguments and
// returns its captured stdout and stderr. A non-zero exit is reported through
// err as *exec.ExitError alongside the captured streams.
type ProcessFunc func(ctx context.Context, args []string) (stdout, stderr []byte, err error)

// ExecProcess spawns cliPath as a child process. The child is killed when ctx
// ends and always runs with a UTF-8 locale so non-ASCII course names survive
// the pipe.
func ExecProcess(cliPath string) ProcessFunc {
	return func(ctx context.Context, args []string) ([]byte, []byte, error) {
		cmd := exec.CommandContext(ctx, cliPath, args...)
		cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")
		cmd.WaitDelay = 5 * time.Second

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		return stdout.Bytes(), stderr.Bytes(), err
	}
}
