// Package invoke turns a stage prompt into raw generated text. It knows
// nothing about contracts: whatever text comes back is handed to the
// validator untouched.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/jorge-barreto/docchain/internal/registry"
)

// Request is one generation attempt for one stage.
type Request struct {
	Stage   registry.Stage
	Prompt  string
	Model   string
	Attempt int // 1-based
}

// Invoker produces raw text for a request. Implementations must return
// promptly once ctx is done. Tests substitute a fake.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// InvocationError is a transport-level generation failure: a crashed or
// timed-out backend, never a contract problem. It is not retried by the
// repair loop.
type InvocationError struct {
	Stage string
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation failed for stage %q: %v", e.Stage, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// IsInvocationError reports whether err is or wraps an InvocationError.
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}

// Environment holds the values exposed to prompt templates and backend
// processes.
type Environment struct {
	ProjectRoot  string
	ArtifactsDir string
	RunID        string
	CustomVars   map[string]string

	baseOnce sync.Once
	baseEnv  []string // os.Environ minus CLAUDECODE and inherited DOCCHAIN_ vars
}

// base returns the inherited process environment. Concurrent stage attempts
// share one Environment, so it is computed exactly once.
func (e *Environment) base() []string {
	e.baseOnce.Do(func() {
		for _, kv := range os.Environ() {
			key, _, _ := strings.Cut(kv, "=")
			if strings.HasPrefix(key, "CLAUDECODE") || strings.HasPrefix(key, "DOCCHAIN_") {
				continue
			}
			e.baseEnv = append(e.baseEnv, kv)
		}
	})
	return e.baseEnv
}

// Vars returns the variable substitution map for a stage's prompt template.
// Custom vars are included first; built-ins always win.
func (e *Environment) Vars(stage registry.Stage, attempt int) map[string]string {
	m := make(map[string]string, 6+len(e.CustomVars))
	for k, v := range e.CustomVars {
		m[k] = v
	}
	m["PROJECT_ROOT"] = e.ProjectRoot
	m["ARTIFACTS_DIR"] = e.ArtifactsDir
	m["RUN_ID"] = e.RunID
	m["STAGE"] = stage.ID
	m["STAGE_TITLE"] = stage.Title
	m["ATTEMPT"] = strconv.Itoa(attempt)
	return m
}

// BuildEnv returns the environment variables for backend processes. It
// inherits the current environment, replaces any DOCCHAIN_ variables with
// this attempt's, and strips CLAUDECODE so a nested claude does not think it
// runs inside a session.
func BuildEnv(env *Environment, req Request) []string {
	base := env.base()
	vars := env.Vars(req.Stage, req.Attempt)
	result := make([]string, len(base), len(base)+len(vars)+1)
	copy(result, base)
	for k, v := range vars {
		result = append(result, "DOCCHAIN_"+k+"="+v)
	}
	result = append(result, "DOCCHAIN_MODEL="+req.Model)
	return result
}

// wrap classifies a backend failure, preferring the context's own error so
// timeouts and cancellation are recognizable with errors.Is.
func wrap(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &InvocationError{Stage: stage, Err: ctxErr}
	}
	return &InvocationError{Stage: stage, Err: err}
}
