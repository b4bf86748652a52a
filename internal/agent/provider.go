package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CLIProvider runs a single agent CLI binary in non-interactive mode,
// feeding the prompt over stdin and capturing stdout+stderr as the
// transcript. Both bundled providers (claude_code, codex) share this
// shape; only the binary name, resolution env var, and invocation flags
// differ (§4.E: "uniform run(prompt, workspace, options) contract").
type CLIProvider struct {
	name        string
	envVar      string
	defaultBin  string
	buildArgs   func(workspaceDir string) []string
	readyArgs   []string
}

func NewClaudeCodeProvider(configuredBin string) *CLIProvider {
	return &CLIProvider{
		name:       "claude_code",
		envVar:     "TRIAGE_CLAUDE_CODE_BIN",
		defaultBin: firstNonEmpty(configuredBin, "claude"),
		buildArgs: func(workspaceDir string) []string {
			return []string{"--print", "--dangerously-skip-permissions", "--add-dir", workspaceDir}
		},
		readyArgs: []string{"--version"},
	}
}

func NewCodexProvider(configuredBin string) *CLIProvider {
	return &CLIProvider{
		name:       "codex",
		envVar:     "TRIAGE_CODEX_BIN",
		defaultBin: firstNonEmpty(configuredBin, "codex"),
		buildArgs: func(workspaceDir string) []string {
			return []string{"exec", "--cd", workspaceDir, "--skip-git-repo-check"}
		},
		readyArgs: []string{"--version"},
	}
}

func (p *CLIProvider) Name() string { return p.name }

// Available probes whether the provider's binary resolves and responds,
// without running a real analysis (§4.E readiness probe; /health/agents).
func (p *CLIProvider) Available(ctx context.Context) bool {
	bin, err := p.resolveBinary()
	if err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(probeCtx, bin, p.readyArgs...)
	return cmd.Run() == nil
}

func (p *CLIProvider) Run(ctx context.Context, prompt, workspaceDir string, opts Options) (string, Metadata, error) {
	start := time.Now()
	bin, err := p.resolveBinary()
	if err != nil {
		return "", Metadata{Provider: p.name}, fmt.Errorf("%s: %w", p.name, err)
	}

	args := p.buildArgs(workspaceDir)
	transcript, exitCode, truncated, err := runSubprocess(ctx, bin, args, prompt, workspaceDir, opts)
	meta := Metadata{
		Provider:   p.name,
		ExitCode:   exitCode,
		DurationMs: time.Since(start).Milliseconds(),
		Truncated:  truncated,
	}
	return transcript, meta, err
}

// resolveBinary follows the teacher's KCLI_BIN lookup idiom: an explicit env
// override, then PATH, then the configured default.
func (p *CLIProvider) resolveBinary() (string, error) {
	if v := strings.TrimSpace(os.Getenv(p.envVar)); v != "" {
		if st, err := os.Stat(v); err == nil && !st.IsDir() {
			return v, nil
		}
		return "", fmt.Errorf("%s is set but not executable: %s", p.envVar, v)
	}
	if path, err := exec.LookPath(p.defaultBin); err == nil {
		return path, nil
	}
	if filepath.IsAbs(p.defaultBin) {
		if st, err := os.Stat(p.defaultBin); err == nil && !st.IsDir() {
			return p.defaultBin, nil
		}
	}
	return "", fmt.Errorf("%s binary %q not found in PATH; set %s", p.name, p.defaultBin, p.envVar)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
