package docker

import (
	"time"

	"github.com/sakif/codevault/internal/language"
)

// Config holds the configuration for Docker execution.
type Config struct {
	// Runtimes maps a language name to the image and interpreter command
	// that runs it. Languages missing here are rejected.
	Runtimes map[string]language.Runtime
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Timeout is the maximum amount of time the execution can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers kept per image.
	PoolSize int
	// MaxOutputBytes caps stdout and stderr separately.
	MaxOutputBytes int
}

// DefaultConfig provides sensible defaults: every runnable language from
// the registry, 128 MB, half a CPU, 5 seconds.
func DefaultConfig() Config {
	return Config{
		Runtimes:       language.Default().Runtimes(),
		MemoryLimit:    128 * 1024 * 1024,
		CPULimit:       0.5,
		Timeout:        5 * time.Second,
		PoolSize:       2,
		MaxOutputBytes: 64 * 1024,
	}
}
