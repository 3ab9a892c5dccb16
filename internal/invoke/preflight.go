package invoke

import (
	"fmt"
	"os/exec"

	"github.com/jorge-barreto/docchain/internal/config"
)

// Preflight checks that the binary the configured invoker needs is on PATH.
func Preflight(inv config.Invoker) error {
	bin := "claude"
	if inv.Type == config.InvokerCommand {
		bin = "bash"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("required binary not found in PATH: %s", bin)
	}
	return nil
}

// New returns the Invoker selected by inv.
func New(inv config.Invoker, env *Environment, logDir string) Invoker {
	if inv.Type == config.InvokerCommand {
		return &CommandInvoker{Env: env, Run: inv.Run, LogDir: logDir}
	}
	return &ClaudeInvoker{Env: env, LogDir: logDir}
}
