//go:build !unix

package executor

import "os/exec"

// configureProcessGroup keeps the exec default of killing the direct child only.
func configureProcessGroup(cmd *exec.Cmd) {}
