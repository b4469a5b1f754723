// Package executor defines the contract for running snippet code in an
// isolated environment. The Docker implementation lives in executor/docker.
package executor

import (
	"context"
	"errors"
	"time"
)

// ExecutionRequest is a piece of code and the language to run it as.
// Language uses the registry names from internal/language ("python",
// "javascript", ...); aliases are accepted.
type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ExecutionResult represents the output and status of the code execution.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	// Truncated is set when stdout or stderr hit the output cap.
	Truncated bool `json:"truncated,omitempty"`
}

// ExitTimeout is the exit code reported when the run exceeded its deadline,
// matching coreutils timeout(1).
const ExitTimeout = 124

// ErrUnsupportedLanguage is returned for languages without a sandbox runtime.
var ErrUnsupportedLanguage = errors.New("executor: language is not runnable")

// Executor represents the core interface for running code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
