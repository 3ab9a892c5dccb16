package invoke

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
	"unicode/utf8"
)

// ClaudeInvoker runs `claude -p <prompt> --model <model>` and returns its
// stdout. Stderr is appended to LogDir/<stage>.log when LogDir is set.
type ClaudeInvoker struct {
	Env    *Environment
	Binary string // defaults to "claude"
	LogDir string
}

func (c *ClaudeInvoker) Invoke(ctx context.Context, req Request) (string, error) {
	bin := c.Binary
	if bin == "" {
		bin = "claude"
	}
	args := []string{"-p", req.Prompt}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = c.Env.ProjectRoot
	cmd.Env = BuildEnv(c.Env, req)
	return run(ctx, cmd, req, c.LogDir)
}

// CommandInvoker runs a shell command with the prompt on stdin and returns
// its stdout. Template vars in Run are substituted first; any other $NAME,
// DOCCHAIN_* included, is left for the shell to expand from the process
// environment.
type CommandInvoker struct {
	Env    *Environment
	Run    string
	LogDir string
}

func (c *CommandInvoker) Invoke(ctx context.Context, req Request) (string, error) {
	expanded := ExpandCommand(c.Run, c.Env.Vars(req.Stage, req.Attempt))
	cmd := exec.CommandContext(ctx, "bash", "-c", expanded)
	cmd.Dir = c.Env.ProjectRoot
	cmd.Env = BuildEnv(c.Env, req)
	cmd.Stdin = bytes.NewBufferString(req.Prompt)
	return run(ctx, cmd, req, c.LogDir)
}

func run(ctx context.Context, cmd *exec.Cmd, req Request, logDir string) (string, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if logDir != "" {
		logFile, err := os.OpenFile(filepath.Join(logDir, req.Stage.ID+".log"),
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return "", &InvocationError{Stage: req.Stage.ID, Err: err}
		}
		defer logFile.Close()
		fmt.Fprintf(logFile, "--- attempt %d ---\n", req.Attempt)
		cmd.Stderr = io.MultiWriter(logFile, &stderr)
	}

	code, err := exitCode(cmd.Run())
	if err != nil {
		return "", wrap(ctx, req.Stage.ID, err)
	}
	if code != 0 {
		return "", wrap(ctx, req.Stage.ID, fmt.Errorf("exit code %d: %s", code, tail(stderr.String(), 400)))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &InvocationError{Stage: req.Stage.ID, Err: ctxErr}
	}
	return stdout.String(), nil
}

// tail keeps the last n bytes of s, moved forward to a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
