// Package agent implements the Agent Runner (§4.E): invoking external LLM
// agent CLIs as subprocesses behind one uniform contract.
package agent

import (
	"context"
	"time"
)

// Options carries the per-invocation knobs the pipeline controls.
type Options struct {
	Timeout         time.Duration
	KillGrace       time.Duration
	MaxOutputBytes  int64
	ExtraEnv        []string
}

// Metadata describes how an invocation went, independent of its transcript.
type Metadata struct {
	Provider   string
	ExitCode   int
	DurationMs int64
	Truncated  bool
}

// Runner is the uniform contract every provider adapter satisfies: run(prompt,
// workspace, options) -> (transcript, metadata) (§4.E).
type Runner interface {
	Name() string
	Available(ctx context.Context) bool
	Run(ctx context.Context, prompt, workspaceDir string, opts Options) (transcript string, meta Metadata, err error)
}
