//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

// Without process groups only the direct child is killed on cancellation,
// which is the exec.CommandContext default.
func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(*exec.Cmd) {}

func terminationSignal(*os.ProcessState) (string, bool) {
	return "", false
}
